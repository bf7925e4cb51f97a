package reporting

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gerai-ops/gerai/internal/platform/httpx"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/top-customers", h.topCustomers)
	r.Get("/top-provinces", h.topProvinces)
	r.Get("/margins", h.margins)
}

func (h *Handler) topCustomers(w http.ResponseWriter, r *http.Request) {
	from, to, limit, ok := h.window(w, r)
	if !ok {
		return
	}
	ranks, err := h.service.TopCustomers(r.Context(), from, to, limit)
	if err != nil {
		h.logger.Error("top customers", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"customers": ranks})
}

func (h *Handler) topProvinces(w http.ResponseWriter, r *http.Request) {
	from, to, limit, ok := h.window(w, r)
	if !ok {
		return
	}
	ranks, err := h.service.TopProvinces(r.Context(), from, to, limit)
	if err != nil {
		h.logger.Error("top provinces", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"provinces": ranks})
}

func (h *Handler) margins(w http.ResponseWriter, r *http.Request) {
	from, to, _, ok := h.window(w, r)
	if !ok {
		return
	}
	rows, err := h.service.Margins(r.Context(), from, to)
	if err != nil {
		h.logger.Error("margins", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"margins": rows})
}

func (h *Handler) window(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, int, bool) {
	q := r.URL.Query()

	now := time.Now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	to := from.AddDate(0, 1, 0)

	if v := q.Get("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be RFC3339")
			return time.Time{}, time.Time{}, 0, false
		}
		from = ts
	}
	if v := q.Get("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be RFC3339")
			return time.Time{}, time.Time{}, 0, false
		}
		to = ts
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	return from, to, limit, true
}
