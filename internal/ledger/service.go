package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gerai-ops/gerai/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSource(ctx context.Context, id int64) (CashSource, error)
	GetPrimarySource(ctx context.Context) (CashSource, error)
	ListSources(ctx context.Context) ([]CashSource, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]CashMovement, int, error)
	SumMovements(ctx context.Context, sourceID int64) (int64, error)
	SumByRefType(ctx context.Context, sourceID int64, refType ReferenceType) (int64, error)
	UpdateSourceBalance(ctx context.Context, id int64, balance int64) error
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// PrimaryBalancer derives the primary source balance from capital plus
// lifetime realized profit. The primary source never reports its own
// movement sum.
type PrimaryBalancer interface {
	PrimaryBalance(ctx context.Context) (int64, error)
}

// WriteObserver counts successful ledger mutations per direction.
type WriteObserver interface {
	ObserveLedgerWrite(direction string)
}

// Service owns cash sources and their append-only movement ledger. It is
// the single writer for cash_movements.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	primary  PrimaryBalancer
	observer WriteObserver

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, locks: make(map[int64]*sync.Mutex)}
}

// SetPrimaryBalancer wires the profit-derived balance calculation. Set once
// during startup, before the service handles requests.
func (s *Service) SetPrimaryBalancer(b PrimaryBalancer) {
	s.primary = b
}

// SetWriteObserver wires movement counters. Optional.
func (s *Service) SetWriteObserver(o WriteObserver) {
	s.observer = o
}

// sourceLock returns the per-source mutex so balance read-modify-write is
// serialised within the process. The row lock inside the transaction covers
// other instances.
func (s *Service) sourceLock(sourceID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[sourceID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sourceID] = lock
	}
	return lock
}

// ApplyInput describes one movement application.
type ApplyInput struct {
	SourceID    int64
	Amount      int64
	Direction   Direction
	RefType     ReferenceType
	RefID       *int64
	Description string
	ActorID     int64
}

// ApplyMovement validates the input, computes the new balance and persists
// the movement plus the cached balance as a single atomic unit. Sources may
// go negative; callers that need a floor must check before calling.
func (s *Service) ApplyMovement(ctx context.Context, input ApplyInput) (CashMovement, error) {
	if input.Amount <= 0 {
		return CashMovement{}, ErrInvalidAmount
	}
	if input.Direction != DirectionIn && input.Direction != DirectionOut {
		return CashMovement{}, fmt.Errorf("ledger: unknown direction %q: %w", input.Direction, shared.ErrValidation)
	}

	lock := s.sourceLock(input.SourceID)
	lock.Lock()
	defer lock.Unlock()

	var created CashMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		src, err := tx.GetSourceForUpdate(ctx, input.SourceID)
		if err != nil {
			return err
		}
		movement := CashMovement{
			SourceID:    src.ID,
			Amount:      input.Amount,
			Direction:   input.Direction,
			RefType:     input.RefType,
			RefID:       input.RefID,
			Description: input.Description,
			ActorID:     input.ActorID,
		}
		movement.BalanceAfter = src.Balance + movement.Signed()
		id, err := tx.InsertMovement(ctx, movement)
		if err != nil {
			return err
		}
		if err := tx.UpdateSourceBalance(ctx, src.ID, movement.BalanceAfter); err != nil {
			return err
		}
		movement.ID = id
		created = movement
		return nil
	})
	if err != nil {
		return CashMovement{}, err
	}
	if s.observer != nil {
		s.observer.ObserveLedgerWrite(string(created.Direction))
	}
	s.recordAudit(ctx, input.ActorID, "MOVEMENT_APPLY", created.ID, map[string]any{
		"source_id": created.SourceID,
		"amount":    created.Amount,
		"direction": created.Direction,
		"ref_type":  created.RefType,
	})
	return created, nil
}

// GetBalance returns the balance for one source. The primary source
// delegates to the profit-derived calculation; all others report their
// cached ledger balance.
func (s *Service) GetBalance(ctx context.Context, sourceID int64) (int64, error) {
	src, err := s.repo.GetSource(ctx, sourceID)
	if err != nil {
		return 0, err
	}
	if src.Primary && s.primary != nil {
		return s.primary.PrimaryBalance(ctx)
	}
	return src.Balance, nil
}

// GetSource fetches one source.
func (s *Service) GetSource(ctx context.Context, sourceID int64) (CashSource, error) {
	return s.repo.GetSource(ctx, sourceID)
}

// ListSources returns the active sources. The primary source's balance is
// replaced with its derived value when the balancer is wired.
func (s *Service) ListSources(ctx context.Context) ([]CashSource, error) {
	sources, err := s.repo.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	if s.primary == nil {
		return sources, nil
	}
	for i := range sources {
		if !sources[i].Primary {
			continue
		}
		balance, err := s.primary.PrimaryBalance(ctx)
		if err != nil {
			return nil, err
		}
		sources[i].Balance = balance
	}
	return sources, nil
}

// ListMovements returns movements newest-first with the total count.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]CashMovement, int, error) {
	return s.repo.ListMovements(ctx, filter)
}

// Capital returns net injected capital on the primary source.
func (s *Service) Capital(ctx context.Context) (int64, error) {
	src, err := s.repo.GetPrimarySource(ctx)
	if err != nil {
		return 0, err
	}
	in, err := s.repo.SumByRefType(ctx, src.ID, RefCapitalIn)
	if err != nil {
		return 0, err
	}
	out, err := s.repo.SumByRefType(ctx, src.ID, RefCapitalOut)
	if err != nil {
		return 0, err
	}
	// Capital movements are stored signed already; IN sums positive and
	// OUT sums negative, so the net is a plain addition.
	return in + out, nil
}

// TransferInput moves money between two sources.
type TransferInput struct {
	FromSourceID int64
	ToSourceID   int64
	Amount       int64
	Description  string
	ActorID      int64
}

// Transfer applies an OUT movement on the origin followed by an IN movement
// on the destination. The two writes are independent ledger applications;
// a failed second leg leaves a visible one-sided transfer for the operator
// to compensate rather than a silent rollback.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (CashMovement, CashMovement, error) {
	if input.FromSourceID == input.ToSourceID {
		return CashMovement{}, CashMovement{}, ErrInvalidTransfer
	}
	out, err := s.ApplyMovement(ctx, ApplyInput{
		SourceID:    input.FromSourceID,
		Amount:      input.Amount,
		Direction:   DirectionOut,
		RefType:     RefTransfer,
		Description: input.Description,
		ActorID:     input.ActorID,
	})
	if err != nil {
		return CashMovement{}, CashMovement{}, err
	}
	in, err := s.ApplyMovement(ctx, ApplyInput{
		SourceID:    input.ToSourceID,
		Amount:      input.Amount,
		Direction:   DirectionIn,
		RefType:     RefTransfer,
		RefID:       &out.ID,
		Description: input.Description,
		ActorID:     input.ActorID,
	})
	if err != nil {
		return out, CashMovement{}, fmt.Errorf("ledger: transfer second leg: %w", err)
	}
	return out, in, nil
}

// ReconcileReport compares a cached balance against its movement sum.
type ReconcileReport struct {
	SourceID    int64
	Cached      int64
	LedgerSum   int64
	Drift       int64
	Consistent  bool
	PrimarySkip bool
}

// Reconcile verifies a non-primary source's cached balance against the sum
// of its movements. Divergence is reported, never silently overwritten.
func (s *Service) Reconcile(ctx context.Context, sourceID int64) (ReconcileReport, error) {
	src, err := s.repo.GetSource(ctx, sourceID)
	if err != nil {
		return ReconcileReport{}, err
	}
	if src.Primary {
		return ReconcileReport{SourceID: src.ID, PrimarySkip: true, Consistent: true}, nil
	}
	sum, err := s.repo.SumMovements(ctx, src.ID)
	if err != nil {
		return ReconcileReport{}, err
	}
	report := ReconcileReport{
		SourceID:   src.ID,
		Cached:     src.Balance,
		LedgerSum:  sum,
		Drift:      src.Balance - sum,
		Consistent: src.Balance == sum,
	}
	if !report.Consistent {
		return report, ErrReconciliationRequired
	}
	return report, nil
}

// Repair rewrites the cached balance from the movement sum and audit-logs
// the correction. Only valid for non-primary sources. The sum is recomputed
// under the per-source lock inside the same row-locked transaction as the
// cache rewrite, so a concurrent movement is either already in the sum or
// blocked until the repair commits.
func (s *Service) Repair(ctx context.Context, sourceID int64, actorID int64) (ReconcileReport, error) {
	lock := s.sourceLock(sourceID)
	lock.Lock()
	defer lock.Unlock()

	var report ReconcileReport
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		src, err := tx.GetSourceForUpdate(ctx, sourceID)
		if err != nil {
			return err
		}
		if src.Primary {
			report = ReconcileReport{SourceID: src.ID, PrimarySkip: true, Consistent: true}
			return nil
		}
		sum, err := tx.SumMovements(ctx, src.ID)
		if err != nil {
			return err
		}
		report = ReconcileReport{
			SourceID:   src.ID,
			Cached:     src.Balance,
			LedgerSum:  sum,
			Drift:      src.Balance - sum,
			Consistent: src.Balance == sum,
		}
		if report.Consistent {
			return nil
		}
		return tx.UpdateSourceBalance(ctx, src.ID, sum)
	})
	if err != nil {
		return report, err
	}
	if !report.Consistent {
		s.recordAudit(ctx, actorID, "BALANCE_REPAIR", sourceID, map[string]any{
			"cached":     report.Cached,
			"ledger_sum": report.LedgerSum,
			"drift":      report.Drift,
		})
		report.Cached = report.LedgerSum
		report.Drift = 0
		report.Consistent = true
	}
	return report, nil
}

func isReconciliationRequired(err error) bool {
	return errors.Is(err, shared.ErrReconciliationRequired)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "ledger", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
