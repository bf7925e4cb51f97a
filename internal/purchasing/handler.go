package purchasing

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gerai-ops/gerai/internal/platform/httpx"
	"github.com/gerai-ops/gerai/internal/shared"
)

// Handler exposes the purchase pipeline over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers purchasing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.submit)
	r.Get("/{id}", h.get)
	r.Post("/{id}/reverse", h.reverse)
}

type submitLineRequest struct {
	VariantID int64 `json:"variant_id" validate:"required,gt=0"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
	UnitCost  int64 `json:"unit_cost" validate:"gte=0"`
}

type submitRequest struct {
	Supplier       string              `json:"supplier" validate:"required"`
	SupplierPhone  string              `json:"supplier_phone"`
	ShippingCost   int64               `json:"shipping_cost" validate:"gte=0"`
	TransferCost   int64               `json:"transfer_cost" validate:"gte=0"`
	SourceID       int64               `json:"source_id" validate:"required,gt=0"`
	IdempotencyKey string              `json:"idempotency_key"`
	Lines          []submitLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := SubmitInput{
		Supplier:       req.Supplier,
		SupplierPhone:  req.SupplierPhone,
		ShippingCost:   req.ShippingCost,
		TransferCost:   req.TransferCost,
		SourceID:       req.SourceID,
		IdempotencyKey: req.IdempotencyKey,
		ActorID:        shared.ActorFromContext(r.Context()),
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, LineInput{VariantID: line.VariantID, Quantity: line.Quantity, UnitCost: line.UnitCost})
	}

	result, err := h.service.Submit(r.Context(), input)
	if err != nil {
		h.logger.Error("submit purchase", slog.Any("error", err), slog.String("supplier", req.Supplier))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "purchase id must be numeric")
		return
	}
	purchase, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchase)
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "purchase id must be numeric")
		return
	}
	result, err := h.service.Reverse(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil && result.Purchase.Status != StatusReversalIncomplete {
		h.logger.Error("reverse purchase", slog.Any("error", err), slog.Int64("purchase_id", id))
		httpx.RespondError(w, err)
		return
	}
	// A partial reversal still returns the result so the operator sees
	// which steps need manual follow-up.
	status := http.StatusOK
	if result.Purchase.Status == StatusReversalIncomplete {
		status = http.StatusConflict
	}
	httpx.JSON(w, status, result)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	filter := ListFilter{
		Status: Status(q.Get("status")),
		Limit:  limit,
		Offset: offset,
	}
	if v := q.Get("from"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			filter.From = &ts
		}
	}
	if v := q.Get("to"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			filter.To = &ts
		}
	}

	purchases, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list purchases", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"purchases":  purchases,
		"pagination": shared.NewPagination(limit, offset, int(total)),
	})
}
