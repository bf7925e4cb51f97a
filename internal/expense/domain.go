package expense

import (
	"fmt"
	"time"

	"github.com/gerai-ops/gerai/internal/shared"
)

// Type separates operator-entered expenses from engine-generated ones.
type Type string

const (
	TypeOrdinary Type = "ORDINARY"
	TypeSystem   Type = "SYSTEM"
)

// Status enumerates the approval workflow.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Category markers recognised by the classifier.
const (
	CategoryEmployeeDues = "employee_dues"
	CategoryPurchase     = "purchase"
)

// RefKind names the entity an expense originates from.
type RefKind string

const (
	RefKindNone       RefKind = ""
	RefKindPurchase   RefKind = "PURCHASE"
	RefKindSettlement RefKind = "SETTLEMENT"
)

// Expense is a cost record. Amount is immutable after creation; only the
// approval status transitions.
type Expense struct {
	ID         int64
	Category   string
	Type       Type
	Amount     int64
	Vendor     string
	Status     Status
	Meta       map[string]any
	RefKind    RefKind
	RefID      *int64
	CreatedBy  int64
	ApprovedBy *int64
	VoidedAt   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

var (
	// ErrInvalidAmount rejects zero or negative expense amounts.
	ErrInvalidAmount = fmt.Errorf("expense: %w", shared.ErrInvalidAmount)
	// ErrNotFound indicates a missing expense.
	ErrNotFound = fmt.Errorf("expense: %w", shared.ErrNotFound)
	// ErrInvalidState occurs when a status transition is not allowed.
	ErrInvalidState = fmt.Errorf("expense: %w", shared.ErrInvalidState)
)
