package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gerai-ops/gerai/internal/expense"
	"github.com/gerai-ops/gerai/internal/finance"
	"github.com/gerai-ops/gerai/internal/ledger"
	"github.com/gerai-ops/gerai/internal/observability"
	"github.com/gerai-ops/gerai/internal/profit"
	"github.com/gerai-ops/gerai/internal/purchasing"
	"github.com/gerai-ops/gerai/internal/reporting"
	"github.com/gerai-ops/gerai/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	LedgerHandler     *ledger.Handler
	ExpenseHandler    *expense.Handler
	FinanceHandler    *finance.Handler
	ProfitHandler     *profit.Handler
	PurchasingHandler *purchasing.Handler
	ReportingHandler  *reporting.Handler
	JobsHandler       *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with engine defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/ledger", params.LedgerHandler.MountRoutes)
		r.Route("/expenses", params.ExpenseHandler.MountRoutes)
		r.Route("/finance", params.FinanceHandler.MountRoutes)
		r.Route("/profits", params.ProfitHandler.MountRoutes)
		r.Route("/purchases", params.PurchasingHandler.MountRoutes)
		r.Route("/reports", params.ReportingHandler.MountRoutes)
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
