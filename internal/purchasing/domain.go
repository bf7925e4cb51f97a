package purchasing

import (
	"fmt"
	"time"

	"github.com/gerai-ops/gerai/internal/shared"
)

// Status enumerates the purchase lifecycle. A reversal that could not
// complete every compensation step parks in REVERSAL_INCOMPLETE so the
// inconsistency stays visible to the operator.
type Status string

const (
	StatusRecorded           Status = "RECORDED"
	StatusReversed           Status = "REVERSED"
	StatusReversalIncomplete Status = "REVERSAL_INCOMPLETE"
)

// Purchase is a supplier invoice. Costs are minor units.
type Purchase struct {
	ID            int64
	Supplier      string
	SupplierPhone string
	ShippingCost  int64
	TransferCost  int64
	SourceID      int64
	Status        Status
	Paid          bool
	CreatedBy     int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Lines         []Line
}

// Line is one invoice line. Lines are owned by the purchase and reversed
// together with it.
type Line struct {
	ID         int64
	PurchaseID int64
	VariantID  int64
	Quantity   int64
	UnitCost   int64
}

// ItemsTotal sums quantity times unit cost over the lines.
func (p Purchase) ItemsTotal() int64 {
	var total int64
	for _, line := range p.Lines {
		total += line.Quantity * line.UnitCost
	}
	return total
}

// GrandTotal is the full invoice value including shipping and transfer.
func (p Purchase) GrandTotal() int64 {
	return p.ItemsTotal() + p.ShippingCost + p.TransferCost
}

// StepFailure records one non-authoritative pipeline step that failed.
// The caller surfaces these to an operator; nothing retries automatically.
type StepFailure struct {
	Step   string `json:"step"`
	Ref    string `json:"ref"`
	Reason string `json:"reason"`
}

var (
	// ErrInvalidAmount rejects invoices with a non-positive grand total.
	ErrInvalidAmount = fmt.Errorf("purchasing: %w", shared.ErrInvalidAmount)
	// ErrNotFound indicates a missing purchase.
	ErrNotFound = fmt.Errorf("purchasing: %w", shared.ErrNotFound)
	// ErrOperationInProgress rejects a submit while another is in flight.
	ErrOperationInProgress = fmt.Errorf("purchasing: %w", shared.ErrOperationInProgress)
	// ErrLedgerWriteFailed aborts the pipeline when the cash debit fails.
	ErrLedgerWriteFailed = fmt.Errorf("purchasing: %w", shared.ErrLedgerWriteFailed)
	// ErrInvalidState occurs when reversing an already reversed purchase.
	ErrInvalidState = fmt.Errorf("purchasing: %w", shared.ErrInvalidState)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("purchasing: %w", shared.ErrValidation)
)
