package profit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gerai-ops/gerai/internal/ledger"
	"github.com/gerai-ops/gerai/internal/orders"
	"github.com/gerai-ops/gerai/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateIfAbsent(ctx context.Context, rec Record) (Record, bool, error)
	GetByOrderEmployee(ctx context.Context, orderID, employeeID int64) (Record, error)
	List(ctx context.Context, filter ListFilter) ([]Record, error)
	SumRealized(ctx context.Context) (int64, error)
	ListOrderIDs(ctx context.Context) (map[int64]struct{}, error)
	SettledOrderIDs(ctx context.Context, orderIDs []int64) (map[int64]bool, error)
}

// LedgerPort pays settled dues out of a cash source.
type LedgerPort interface {
	ApplyMovement(ctx context.Context, input ledger.ApplyInput) (ledger.CashMovement, error)
}

// OrdersPort supplies countable orders for the backfill procedure.
type OrdersPort interface {
	ListCountable(ctx context.Context, from, to time.Time) ([]orders.Order, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives the pending to settled state machine for profit records.
// It is the only writer of profit_records.
type Service struct {
	repo    RepositoryPort
	ledger  LedgerPort
	orders  OrdersPort
	audit   AuditPort
	logger  *slog.Logger
	shareBP int64
}

// Config groups optional settings.
type Config struct {
	// EmployeeShareBasisPoints is the default employee cut used when the
	// backfill derives records from order lines, in basis points.
	EmployeeShareBasisPoints int64
}

// NewService constructs the settlement service.
func NewService(repo RepositoryPort, ledgerPort LedgerPort, ordersPort OrdersPort, audit AuditPort, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ledger: ledgerPort, orders: ordersPort, audit: audit, logger: logger, shareBP: cfg.EmployeeShareBasisPoints}
}

// CreateInput describes one profit record.
type CreateInput struct {
	OrderID        int64
	EmployeeID     int64
	ProfitAmount   int64
	EmployeeProfit int64
}

// CreateProfitRecord creates the record for an order that became
// financially countable. Idempotent per (order, employee): a repeat call
// returns the existing record without inserting a second row.
func (s *Service) CreateProfitRecord(ctx context.Context, input CreateInput) (Record, error) {
	if input.EmployeeProfit < 0 || input.EmployeeProfit > input.ProfitAmount {
		return Record{}, ErrInvalidShare
	}
	rec, created, err := s.repo.CreateIfAbsent(ctx, Record{
		OrderID:        input.OrderID,
		EmployeeID:     input.EmployeeID,
		ProfitAmount:   input.ProfitAmount,
		EmployeeProfit: input.EmployeeProfit,
	})
	if err != nil {
		return Record{}, err
	}
	if created {
		s.recordAudit(ctx, 0, "PROFIT_CREATE", rec.ID, map[string]any{"order_id": rec.OrderID, "employee_id": rec.EmployeeID})
	}
	return rec, nil
}

// SettleInput describes one settlement batch.
type SettleInput struct {
	RecordIDs []int64
	SourceID  int64
	ActorID   int64
}

// SettlementResult reports what a settlement produced.
type SettlementResult struct {
	Records   []Record
	ExpenseID int64
	Total     int64
	Movement  *ledger.CashMovement
}

// Settle transitions the batch to settled and writes exactly one
// employee-dues expense in the same transaction. The batch is
// all-or-nothing: one non-pending record rejects the whole batch. The cash
// payout movement follows the commit; if it fails the batch stays settled
// and the error carries the dues expense id so the operator can reissue
// the payout as a manual SETTLEMENT movement referencing that expense.
func (s *Service) Settle(ctx context.Context, input SettleInput) (SettlementResult, error) {
	if len(input.RecordIDs) == 0 {
		return SettlementResult{}, ErrEmptyBatch
	}
	var result SettlementResult
	now := time.Now()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		records, err := tx.LockRecords(ctx, input.RecordIDs)
		if err != nil {
			return err
		}
		if len(records) != len(input.RecordIDs) {
			return ErrNotFound
		}
		var total int64
		for _, rec := range records {
			if rec.Status != StatusPending {
				return fmt.Errorf("record %d: %w", rec.ID, ErrAlreadySettled)
			}
			total += rec.EmployeeProfit
		}
		if err := tx.MarkSettled(ctx, input.RecordIDs, now, input.ActorID); err != nil {
			return err
		}
		expenseID, err := tx.InsertDuesExpense(ctx, DuesExpense{Amount: total, ActorID: input.ActorID, RecordID: input.RecordIDs})
		if err != nil {
			return err
		}
		for i := range records {
			records[i].Status = StatusSettled
			records[i].SettledAt = &now
			records[i].SettledBy = &input.ActorID
		}
		result = SettlementResult{Records: records, ExpenseID: expenseID, Total: total}
		return nil
	})
	if err != nil {
		return SettlementResult{}, err
	}
	s.recordAudit(ctx, input.ActorID, "PROFIT_SETTLE", result.ExpenseID, map[string]any{"records": input.RecordIDs, "total": result.Total})

	if input.SourceID > 0 && s.ledger != nil && result.Total > 0 {
		movement, err := s.ledger.ApplyMovement(ctx, ledger.ApplyInput{
			SourceID:    input.SourceID,
			Amount:      result.Total,
			Direction:   ledger.DirectionOut,
			RefType:     ledger.RefSettlement,
			RefID:       &result.ExpenseID,
			Description: "Pembayaran bagi hasil karyawan",
			ActorID:     input.ActorID,
		})
		if err != nil {
			s.logger.Error("dues payout movement failed", slog.Any("error", err), slog.Int64("expense_id", result.ExpenseID))
			return result, fmt.Errorf("%w: dues payout for expense %d: %v", shared.ErrLedgerWriteFailed, result.ExpenseID, err)
		}
		result.Movement = &movement
	}
	return result, nil
}

// List returns records matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	return s.repo.List(ctx, filter)
}

// SettledOrders reports which of the given orders have at least one settled
// record. The lookup is keyed by order id, so it is not capped by the List
// page size.
func (s *Service) SettledOrders(ctx context.Context, orderIDs []int64) (map[int64]bool, error) {
	return s.repo.SettledOrderIDs(ctx, orderIDs)
}

// NetRealizedProfit totals the system share over all records, unbounded by
// any reporting window.
func (s *Service) NetRealizedProfit(ctx context.Context) (int64, error) {
	return s.repo.SumRealized(ctx)
}

// Backfill creates missing profit records for countable orders. Missing
// records are a data-migration concern handled here, never an ad-hoc
// runtime recomputation inside the aggregator.
func (s *Service) Backfill(ctx context.Context, from, to time.Time) (int, error) {
	if s.orders == nil {
		return 0, fmt.Errorf("profit: orders port not configured")
	}
	countable, err := s.orders.ListCountable(ctx, from, to)
	if err != nil {
		return 0, err
	}
	existing, err := s.repo.ListOrderIDs(ctx)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, o := range countable {
		if _, ok := existing[o.ID]; ok {
			continue
		}
		gross := o.FinalAmount - o.DeliveryFee - o.COGS()
		if gross < 0 {
			gross = 0
		}
		share := gross * s.shareBP / 10000
		_, wasNew, err := s.repo.CreateIfAbsent(ctx, Record{
			OrderID:        o.ID,
			EmployeeID:     o.EmployeeID,
			ProfitAmount:   gross,
			EmployeeProfit: share,
		})
		if err != nil {
			return created, err
		}
		if wasNew {
			created++
		}
	}
	if created > 0 {
		s.logger.Info("profit backfill created records", slog.Int("created", created))
	}
	return created, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "profit", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
