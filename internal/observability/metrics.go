package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	ledgerWrites       *prometheus.CounterVec
	reconciliationRuns *prometheus.CounterVec
	reconciliationGap  prometheus.Gauge
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gerai_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gerai_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	ledgerWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gerai_ledger_movements_total",
		Help: "Jumlah mutasi kas yang tercatat per arah.",
	}, []string{"direction"})
	reconciliationRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gerai_reconciliation_runs_total",
		Help: "Jumlah rekonsiliasi saldo per hasil.",
	}, []string{"result"})
	reconciliationGap := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gerai_reconciliation_drift_minor_units",
		Help: "Selisih absolut terakhir antara saldo cache dan buku besar.",
	})
	registry.MustRegister(requests, duration, ledgerWrites, reconciliationRuns, reconciliationGap)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		ledgerWrites:       ledgerWrites,
		reconciliationRuns: reconciliationRuns,
		reconciliationGap:  reconciliationGap,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveLedgerWrite mencatat satu mutasi kas yang berhasil.
func (m *Metrics) ObserveLedgerWrite(direction string) {
	if m == nil {
		return
	}
	m.ledgerWrites.WithLabelValues(direction).Inc()
}

// ObserveReconciliation mencatat hasil satu rekonsiliasi saldo.
func (m *Metrics) ObserveReconciliation(consistent bool, drift int64) {
	if m == nil {
		return
	}
	result := "consistent"
	if !consistent {
		result = "drift"
	}
	m.reconciliationRuns.WithLabelValues(result).Inc()
	if drift < 0 {
		drift = -drift
	}
	m.reconciliationGap.Set(float64(drift))
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
