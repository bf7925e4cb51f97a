package shared

import "errors"

// Sentinel errors shared by the finance engine packages. Domain packages
// wrap these with their own context so callers can match with errors.Is.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidAmount indicates a zero or negative money amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrSourceNotFound indicates an unknown cash source.
	ErrSourceNotFound = errors.New("cash source not found")
	// ErrOperationInProgress indicates a duplicate in-flight submission.
	ErrOperationInProgress = errors.New("operation already in progress")
	// ErrAlreadySettled indicates a profit record is not pending anymore.
	ErrAlreadySettled = errors.New("profit record already settled")
	// ErrLedgerWriteFailed indicates the authoritative cash debit failed.
	ErrLedgerWriteFailed = errors.New("ledger write failed")
	// ErrReconciliationRequired indicates a cached balance diverged from its movement sum.
	ErrReconciliationRequired = errors.New("reconciliation required")
	// ErrInvalidState occurs when an action violates a status workflow.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("invalid input")
)
