package profit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gerai-ops/gerai/internal/platform/httpx"
	"github.com/gerai-ops/gerai/internal/shared"
)

// Handler exposes profit records over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers profit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Post("/settle", h.settle)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	employeeID, _ := strconv.ParseInt(r.URL.Query().Get("employee_id"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	records, err := h.service.List(r.Context(), ListFilter{
		EmployeeID: employeeID,
		Status:     Status(r.URL.Query().Get("status")),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		h.logger.Error("list profit records", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"records": records})
}

type createRecordRequest struct {
	OrderID        int64 `json:"order_id" validate:"required,gt=0"`
	EmployeeID     int64 `json:"employee_id" validate:"required,gt=0"`
	ProfitAmount   int64 `json:"profit_amount" validate:"gte=0"`
	EmployeeProfit int64 `json:"employee_profit" validate:"gte=0"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRecordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rec, err := h.service.CreateProfitRecord(r.Context(), CreateInput{
		OrderID:        req.OrderID,
		EmployeeID:     req.EmployeeID,
		ProfitAmount:   req.ProfitAmount,
		EmployeeProfit: req.EmployeeProfit,
	})
	if err != nil {
		h.logger.Error("create profit record", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

type settleRequest struct {
	RecordIDs []int64 `json:"record_ids" validate:"required,min=1,dive,gt=0"`
	SourceID  int64   `json:"source_id" validate:"gte=0"`
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.Settle(r.Context(), SettleInput{
		RecordIDs: req.RecordIDs,
		SourceID:  req.SourceID,
		ActorID:   shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Error("settle profits", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
