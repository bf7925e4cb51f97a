package ledger

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gerai-ops/gerai/internal/platform/httpx"
	"github.com/gerai-ops/gerai/internal/shared"
)

// Handler exposes the ledger over JSON.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/sources", h.listSources)
	r.Get("/sources/{id}/balance", h.getBalance)
	r.Post("/sources/{id}/reconcile", h.reconcile)
	r.Get("/movements", h.listMovements)
	r.Post("/movements", h.applyMovement)
	r.Post("/transfer", h.transfer)
}

func (h *Handler) listSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.service.ListSources(r.Context())
	if err != nil {
		h.logger.Error("list sources", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	balance, err := h.service.GetBalance(r.Context(), id)
	if err != nil {
		h.logger.Error("get balance", slog.Any("error", err), slog.Int64("source_id", id))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"source_id": id, "balance": balance})
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	sourceID, _ := strconv.ParseInt(r.URL.Query().Get("source_id"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	movements, total, err := h.service.ListMovements(r.Context(), MovementFilter{
		SourceID: sourceID,
		RefType:  ReferenceType(r.URL.Query().Get("ref_type")),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		h.logger.Error("list movements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"movements":  movements,
		"pagination": shared.NewPagination(limit, offset, total),
	})
}

type applyMovementRequest struct {
	SourceID    int64  `json:"source_id" validate:"required,gt=0"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Direction   string `json:"direction" validate:"required,oneof=IN OUT"`
	RefType     string `json:"ref_type" validate:"required"`
	RefID       *int64 `json:"ref_id,omitempty"`
	Description string `json:"description" validate:"max=500"`
}

func (h *Handler) applyMovement(w http.ResponseWriter, r *http.Request) {
	var req applyMovementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	movement, err := h.service.ApplyMovement(r.Context(), ApplyInput{
		SourceID:    req.SourceID,
		Amount:      req.Amount,
		Direction:   Direction(req.Direction),
		RefType:     ReferenceType(req.RefType),
		RefID:       req.RefID,
		Description: req.Description,
		ActorID:     shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Error("apply movement", slog.Any("error", err), slog.Int64("source_id", req.SourceID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

type transferRequest struct {
	FromSourceID int64  `json:"from_source_id" validate:"required,gt=0"`
	ToSourceID   int64  `json:"to_source_id" validate:"required,gt=0"`
	Amount       int64  `json:"amount" validate:"required,gt=0"`
	Description  string `json:"description" validate:"max=500"`
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	out, in, err := h.service.Transfer(r.Context(), TransferInput{
		FromSourceID: req.FromSourceID,
		ToSourceID:   req.ToSourceID,
		Amount:       req.Amount,
		Description:  req.Description,
		ActorID:      shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Error("transfer", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"out": out, "in": in})
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	repair := r.URL.Query().Get("repair") == "true"
	var (
		report ReconcileReport
		err    error
	)
	if repair {
		report, err = h.service.Repair(r.Context(), id, shared.ActorFromContext(r.Context()))
	} else {
		report, err = h.service.Reconcile(r.Context(), id)
	}
	if err != nil && !isReconciliationRequired(err) {
		h.logger.Error("reconcile", slog.Any("error", err), slog.Int64("source_id", id))
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusOK
	if !report.Consistent {
		status = http.StatusConflict
	}
	httpx.JSON(w, status, report)
}
