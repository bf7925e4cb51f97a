package profit

import (
	"fmt"
	"time"

	"github.com/gerai-ops/gerai/internal/shared"
)

// Status enumerates the settlement state machine. Settled is terminal;
// corrections append a compensating record, never a flip back to pending.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSettled Status = "SETTLED"
)

// Record tracks one order's profit split for one employee. Amounts are
// minor units; the system share is ProfitAmount minus EmployeeProfit.
// Records are never deleted, they are the settlement audit trail.
type Record struct {
	ID             int64
	OrderID        int64
	EmployeeID     int64
	ProfitAmount   int64
	EmployeeProfit int64
	Status         Status
	SettledAt      *time.Time
	SettledBy      *int64
	CreatedAt      time.Time
}

// SystemShare returns the portion retained by the business.
func (r Record) SystemShare() int64 {
	return r.ProfitAmount - r.EmployeeProfit
}

var (
	// ErrAlreadySettled rejects settlement batches containing a non-pending record.
	ErrAlreadySettled = fmt.Errorf("profit: %w", shared.ErrAlreadySettled)
	// ErrNotFound indicates a missing profit record.
	ErrNotFound = fmt.Errorf("profit: %w", shared.ErrNotFound)
	// ErrInvalidShare rejects an employee share outside [0, profit].
	ErrInvalidShare = fmt.Errorf("profit: employee share exceeds profit: %w", shared.ErrValidation)
	// ErrEmptyBatch rejects settlement with no record ids.
	ErrEmptyBatch = fmt.Errorf("profit: settlement batch is empty: %w", shared.ErrValidation)
)
