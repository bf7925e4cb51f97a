package purchasing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gerai-ops/gerai/internal/expense"
	"github.com/gerai-ops/gerai/internal/ledger"
	"github.com/gerai-ops/gerai/internal/shared"
)

// LedgerPort is the slice of the ledger the pipeline needs.
type LedgerPort interface {
	ApplyMovement(ctx context.Context, input ledger.ApplyInput) (ledger.CashMovement, error)
}

// ExpensePort creates and voids the expense records derived from a purchase.
type ExpensePort interface {
	Create(ctx context.Context, input expense.CreateInput) (expense.Expense, error)
	VoidByRef(ctx context.Context, kind expense.RefKind, refID int64, actorID int64) (int64, error)
}

// CatalogPort adjusts stock levels. Stock is a collaborator, not an
// authoritative step: a failed adjustment is reported, never fatal.
type CatalogPort interface {
	AdjustStock(ctx context.Context, variantID int64, delta int64) error
}

// LockerPort guards against concurrent pipeline runs on the same source.
type LockerPort interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// IdempotencyPort deduplicates retried submissions. Delete rolls a key back
// when the submission failed before anything was persisted.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort is implemented by shared.AuditLogger.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives the purchase ingestion pipeline. The purchase row and the
// cash debit are authoritative; stock and the derived expenses are
// best-effort and surface as SoftFailures.
type Service struct {
	repo     RepositoryPort
	ledger   LedgerPort
	expenses ExpensePort
	catalog  CatalogPort
	locker   LockerPort
	idem     IdempotencyPort
	audit    AuditPort
	logger   *slog.Logger
}

func NewService(repo RepositoryPort, ledgerSvc LedgerPort, expenses ExpensePort, catalog CatalogPort, locker LockerPort, idem IdempotencyPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		ledger:   ledgerSvc,
		expenses: expenses,
		catalog:  catalog,
		locker:   locker,
		idem:     idem,
		audit:    audit,
		logger:   logger,
	}
}

// SubmitInput carries one supplier invoice.
type SubmitInput struct {
	Supplier       string
	SupplierPhone  string
	ShippingCost   int64
	TransferCost   int64
	SourceID       int64
	Lines          []LineInput
	IdempotencyKey string
	ActorID        int64
}

type LineInput struct {
	VariantID int64
	Quantity  int64
	UnitCost  int64
}

// SubmitResult reports the recorded purchase plus whatever side effects
// did not complete. Callers must show SoftFailures to the operator.
type SubmitResult struct {
	Purchase     Purchase
	Movement     *ledger.CashMovement
	ExpenseIDs   []int64
	SoftFailures []StepFailure
}

// Submit runs the ingestion pipeline in order: record the purchase, adjust
// stock, debit the cash source, derive the expense records. The debit is
// the point of no return: if it fails the purchase stays recorded but
// unpaid and no expenses are written.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (SubmitResult, error) {
	if err := validateSubmit(input); err != nil {
		return SubmitResult{}, err
	}

	release, err := s.locker.Acquire(ctx, shared.PurchaseLockKey(input.SourceID))
	if errors.Is(err, shared.ErrLockHeld) {
		return SubmitResult{}, ErrOperationInProgress
	}
	if err != nil {
		return SubmitResult{}, fmt.Errorf("acquire purchase lock: %w", err)
	}
	defer release()

	if input.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, input.IdempotencyKey, "purchasing"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return SubmitResult{}, ErrOperationInProgress
			}
			return SubmitResult{}, err
		}
	}

	purchase, err := s.recordPurchase(ctx, input)
	if err != nil {
		// Nothing persisted yet, so the same key may retry. Once the
		// purchase row exists the key stays consumed: a retry would
		// record the invoice twice.
		s.releaseIdempotencyKey(ctx, input.IdempotencyKey)
		return SubmitResult{}, err
	}

	result := SubmitResult{Purchase: purchase}

	// Stock before money. A failed adjustment never blocks the debit.
	for _, line := range purchase.Lines {
		if err := s.catalog.AdjustStock(ctx, line.VariantID, line.Quantity); err != nil {
			result.SoftFailures = append(result.SoftFailures, StepFailure{
				Step:   "stock_adjust",
				Ref:    fmt.Sprintf("variant:%d", line.VariantID),
				Reason: err.Error(),
			})
			s.logger.Warn("stock adjust failed", "purchase_id", purchase.ID, "variant_id", line.VariantID, "error", err)
		}
	}

	movement, err := s.ledger.ApplyMovement(ctx, ledger.ApplyInput{
		SourceID:    input.SourceID,
		Amount:      purchase.GrandTotal(),
		Direction:   ledger.DirectionOut,
		RefType:     ledger.RefPurchase,
		RefID:       &purchase.ID,
		Description: fmt.Sprintf("Pembelian %s", purchase.Supplier),
		ActorID:     input.ActorID,
	})
	if err != nil {
		// Recorded but unpaid. The operator retries the payment, not the
		// whole invoice.
		s.logger.Error("purchase debit failed", "purchase_id", purchase.ID, "error", err)
		return result, fmt.Errorf("debit purchase %d: %w: %v", purchase.ID, ErrLedgerWriteFailed, err)
	}
	result.Movement = &movement

	if err := s.repo.MarkPaid(ctx, purchase.ID); err != nil {
		result.SoftFailures = append(result.SoftFailures, StepFailure{
			Step:   "mark_paid",
			Ref:    fmt.Sprintf("purchase:%d", purchase.ID),
			Reason: err.Error(),
		})
	} else {
		result.Purchase.Paid = true
	}

	result.ExpenseIDs, result.SoftFailures = s.deriveExpenses(ctx, purchase, input.ActorID, result.SoftFailures)

	s.recordAudit(ctx, input.ActorID, "PURCHASE_SUBMIT", purchase.ID, map[string]any{
		"grand_total":   purchase.GrandTotal(),
		"source_id":     input.SourceID,
		"soft_failures": len(result.SoftFailures),
	})
	return result, nil
}

func (s *Service) releaseIdempotencyKey(ctx context.Context, key string) {
	if key == "" || s.idem == nil {
		return
	}
	if err := s.idem.Delete(ctx, key); err != nil {
		s.logger.Warn("release idempotency key failed", "key", key, "error", err)
	}
}

func validateSubmit(input SubmitInput) error {
	if len(input.Lines) == 0 {
		return fmt.Errorf("%w: invoice has no lines", ErrValidation)
	}
	for _, line := range input.Lines {
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: line quantity must be positive", ErrValidation)
		}
		if line.UnitCost < 0 {
			return fmt.Errorf("%w: line unit cost cannot be negative", ErrValidation)
		}
	}
	if input.ShippingCost < 0 || input.TransferCost < 0 {
		return fmt.Errorf("%w: costs cannot be negative", ErrValidation)
	}
	p := Purchase{ShippingCost: input.ShippingCost, TransferCost: input.TransferCost}
	for _, line := range input.Lines {
		p.Lines = append(p.Lines, Line{Quantity: line.Quantity, UnitCost: line.UnitCost})
	}
	if p.GrandTotal() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (s *Service) recordPurchase(ctx context.Context, input SubmitInput) (Purchase, error) {
	var purchase Purchase
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.CreatePurchase(ctx, Purchase{
			Supplier:      input.Supplier,
			SupplierPhone: input.SupplierPhone,
			ShippingCost:  input.ShippingCost,
			TransferCost:  input.TransferCost,
			SourceID:      input.SourceID,
			Status:        StatusRecorded,
			CreatedBy:     input.ActorID,
		})
		if err != nil {
			return err
		}
		for _, in := range input.Lines {
			line, err := tx.InsertLine(ctx, Line{
				PurchaseID: created.ID,
				VariantID:  in.VariantID,
				Quantity:   in.Quantity,
				UnitCost:   in.UnitCost,
			})
			if err != nil {
				return err
			}
			created.Lines = append(created.Lines, line)
		}
		purchase = created
		return nil
	})
	if err != nil {
		return Purchase{}, fmt.Errorf("record purchase: %w", err)
	}
	return purchase, nil
}

// deriveExpenses writes the expense components of the invoice in parallel.
// Each component is independent; a failure is collected, not propagated.
func (s *Service) deriveExpenses(ctx context.Context, purchase Purchase, actorID int64, failures []StepFailure) ([]int64, []StepFailure) {
	type component struct {
		name   string
		amount int64
	}
	components := []component{
		{name: "items", amount: purchase.ItemsTotal()},
		{name: "shipping", amount: purchase.ShippingCost},
		{name: "transfer", amount: purchase.TransferCost},
	}

	var (
		mu  sync.Mutex
		ids []int64
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range components {
		if c.amount <= 0 {
			continue
		}
		c := c
		g.Go(func() error {
			created, err := s.expenses.Create(gctx, expense.CreateInput{
				Category:     expense.CategoryPurchase,
				Type:         expense.TypeOrdinary,
				Amount:       c.amount,
				Vendor:       purchase.Supplier,
				Meta:         map[string]any{"component": c.name, "purchase_id": purchase.ID},
				RefKind:      expense.RefKindPurchase,
				RefID:        &purchase.ID,
				CreatedBy:    actorID,
				AutoApproved: true,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, StepFailure{
					Step:   "expense_" + c.name,
					Ref:    fmt.Sprintf("purchase:%d", purchase.ID),
					Reason: err.Error(),
				})
				return nil
			}
			ids = append(ids, created.ID)
			return nil
		})
	}
	_ = g.Wait()
	return ids, failures
}

// ReverseResult reports the compensation run.
type ReverseResult struct {
	Purchase     Purchase
	Refund       *ledger.CashMovement
	VoidedCount  int64
	SoftFailures []StepFailure
}

// Reverse compensates a recorded purchase: refund the cash, void the
// derived expenses, revert the stock, then flip the status. A partial
// compensation parks the purchase in REVERSAL_INCOMPLETE and returns an
// error so the operator knows to intervene.
func (s *Service) Reverse(ctx context.Context, id int64, actorID int64) (ReverseResult, error) {
	purchase, err := s.repo.Get(ctx, id)
	if err != nil {
		return ReverseResult{}, err
	}
	if purchase.Status != StatusRecorded {
		return ReverseResult{}, fmt.Errorf("%w: purchase %d is %s", ErrInvalidState, id, purchase.Status)
	}

	release, err := s.locker.Acquire(ctx, shared.PurchaseLockKey(purchase.SourceID))
	if errors.Is(err, shared.ErrLockHeld) {
		return ReverseResult{}, ErrOperationInProgress
	}
	if err != nil {
		return ReverseResult{}, fmt.Errorf("acquire purchase lock: %w", err)
	}
	defer release()

	result := ReverseResult{Purchase: purchase}

	if purchase.Paid {
		refund, err := s.ledger.ApplyMovement(ctx, ledger.ApplyInput{
			SourceID:    purchase.SourceID,
			Amount:      purchase.GrandTotal(),
			Direction:   ledger.DirectionIn,
			RefType:     ledger.RefPurchase,
			RefID:       &purchase.ID,
			Description: fmt.Sprintf("Pembatalan pembelian %s", purchase.Supplier),
			ActorID:     actorID,
		})
		if err != nil {
			result.SoftFailures = append(result.SoftFailures, StepFailure{
				Step:   "refund",
				Ref:    fmt.Sprintf("purchase:%d", purchase.ID),
				Reason: err.Error(),
			})
		} else {
			result.Refund = &refund
		}
	}

	voided, err := s.expenses.VoidByRef(ctx, expense.RefKindPurchase, purchase.ID, actorID)
	if err != nil {
		result.SoftFailures = append(result.SoftFailures, StepFailure{
			Step:   "void_expenses",
			Ref:    fmt.Sprintf("purchase:%d", purchase.ID),
			Reason: err.Error(),
		})
	}
	result.VoidedCount = voided

	for _, line := range purchase.Lines {
		if err := s.catalog.AdjustStock(ctx, line.VariantID, -line.Quantity); err != nil {
			result.SoftFailures = append(result.SoftFailures, StepFailure{
				Step:   "stock_revert",
				Ref:    fmt.Sprintf("variant:%d", line.VariantID),
				Reason: err.Error(),
			})
		}
	}

	status := StatusReversed
	if len(result.SoftFailures) > 0 {
		status = StatusReversalIncomplete
	}
	if err := s.repo.SetStatus(ctx, purchase.ID, status); err != nil {
		return result, err
	}
	result.Purchase.Status = status

	s.recordAudit(ctx, actorID, "PURCHASE_REVERSE", purchase.ID, map[string]any{
		"status": status,
		"voided": voided,
	})
	if status == StatusReversalIncomplete {
		return result, fmt.Errorf("reverse purchase %d: %d compensation step(s) failed", purchase.ID, len(result.SoftFailures))
	}
	return result, nil
}

// Get returns one purchase with its lines.
func (s *Service) Get(ctx context.Context, id int64) (Purchase, error) {
	return s.repo.Get(ctx, id)
}

// List returns purchases matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Purchase, int64, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "purchase", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
