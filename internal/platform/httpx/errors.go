// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/gerai-ops/gerai/internal/shared"
)

// RespondError maps engine errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrSourceNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInvalidAmount), errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrOperationInProgress):
		Problem(w, http.StatusConflict, "Operation In Progress", err.Error())
	case errors.Is(err, shared.ErrAlreadySettled), errors.Is(err, shared.ErrInvalidState):
		Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrReconciliationRequired):
		Problem(w, http.StatusConflict, "Reconciliation Required", err.Error())
	case errors.Is(err, shared.ErrLedgerWriteFailed):
		Problem(w, http.StatusBadGateway, "Ledger Write Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
