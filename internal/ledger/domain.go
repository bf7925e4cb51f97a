package ledger

import (
	"fmt"
	"time"

	"github.com/gerai-ops/gerai/internal/shared"
)

// SourceKind enumerates supported cash source kinds.
type SourceKind string

const (
	SourceKindCash    SourceKind = "CASH"
	SourceKindBank    SourceKind = "BANK"
	SourceKindEwallet SourceKind = "EWALLET"
)

// Direction marks whether a movement adds to or removes from a source.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// ReferenceType links a movement to its originating entity.
type ReferenceType string

const (
	RefPurchase   ReferenceType = "PURCHASE"
	RefOrder      ReferenceType = "ORDER"
	RefExpense    ReferenceType = "EXPENSE"
	RefCapitalIn  ReferenceType = "CAPITAL_IN"
	RefCapitalOut ReferenceType = "CAPITAL_OUT"
	RefSettlement ReferenceType = "SETTLEMENT"
	RefTransfer   ReferenceType = "TRANSFER"
	RefAdjustment ReferenceType = "ADJUSTMENT"
)

// CashSource is a named pool of money. Balance is a denormalised cache of
// the movement sum, except for the primary source whose balance is derived
// from capital plus lifetime realized profit.
type CashSource struct {
	ID        int64
	Name      string
	Kind      SourceKind
	Balance   int64
	Primary   bool
	Active    bool
	CreatedAt time.Time
}

// CashMovement is one immutable, append-only ledger entry. Amounts are in
// minor currency units. Corrections append a compensating movement; rows
// are never updated or deleted.
type CashMovement struct {
	ID           int64
	SourceID     int64
	Amount       int64
	Direction    Direction
	RefType      ReferenceType
	RefID        *int64
	Description  string
	BalanceAfter int64
	ActorID      int64
	CreatedAt    time.Time
}

// Signed returns the movement amount with its direction applied.
func (m CashMovement) Signed() int64 {
	if m.Direction == DirectionOut {
		return -m.Amount
	}
	return m.Amount
}

var (
	// ErrInvalidAmount rejects zero or negative movement amounts.
	ErrInvalidAmount = fmt.Errorf("ledger: %w", shared.ErrInvalidAmount)
	// ErrSourceNotFound indicates an unknown or inactive cash source.
	ErrSourceNotFound = fmt.Errorf("ledger: %w", shared.ErrSourceNotFound)
	// ErrReconciliationRequired indicates cache/ledger divergence.
	ErrReconciliationRequired = fmt.Errorf("ledger: %w", shared.ErrReconciliationRequired)
	// ErrInvalidTransfer rejects transfers between the same source.
	ErrInvalidTransfer = fmt.Errorf("ledger: transfer needs two distinct sources: %w", shared.ErrValidation)
)
