package expense

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gerai-ops/gerai/internal/platform/httpx"
	"github.com/gerai-ops/gerai/internal/shared"
)

// Handler exposes expenses over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers expense routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Post("/{id}/approve", h.approve)
	r.Post("/{id}/reject", h.reject)
}

type createExpenseRequest struct {
	Category string         `json:"category" validate:"required,max=100"`
	Amount   int64          `json:"amount" validate:"required,gt=0"`
	Vendor   string         `json:"vendor" validate:"max=200"`
	Meta     map[string]any `json:"meta,omitempty"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	e, err := h.service.Create(r.Context(), CreateInput{
		Category:  req.Category,
		Type:      TypeOrdinary,
		Amount:    req.Amount,
		Vendor:    req.Vendor,
		Meta:      req.Meta,
		CreatedBy: shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Error("create expense", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, e)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	filter := ListFilter{
		Status: Status(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	}
	if from := r.URL.Query().Get("from"); from != "" {
		filter.From, _ = time.Parse(time.RFC3339, from)
	}
	if to := r.URL.Query().Get("to"); to != "" {
		filter.To, _ = time.Parse(time.RFC3339, to)
	}
	expenses, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list expenses", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"expenses": expenses})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Approve)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Reject)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64, int64) error) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err := fn(r.Context(), id, shared.ActorFromContext(r.Context())); err != nil {
		h.logger.Error("expense transition", slog.Any("error", err), slog.Int64("id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id})
}
