package profit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gerai-ops/gerai/internal/ledger"
	"github.com/gerai-ops/gerai/internal/orders"
	"github.com/gerai-ops/gerai/internal/shared"
)

type memoryProfitRepo struct {
	records  map[int64]Record
	expenses []DuesExpense
	nextID   int64
}

type memoryProfitTx struct {
	repo    *memoryProfitRepo
	staged  map[int64]Record
	expense []DuesExpense
}

func newMemoryProfitRepo() *memoryProfitRepo {
	return &memoryProfitRepo{records: make(map[int64]Record)}
}

func (r *memoryProfitRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryProfitTx{repo: r, staged: make(map[int64]Record)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	// Commit staged mutations only when the callback succeeds, so a
	// rejected batch leaves every record untouched.
	for id, rec := range tx.staged {
		r.records[id] = rec
	}
	r.expenses = append(r.expenses, tx.expense...)
	return nil
}

func (r *memoryProfitRepo) CreateIfAbsent(ctx context.Context, rec Record) (Record, bool, error) {
	for _, existing := range r.records {
		if existing.OrderID == rec.OrderID && existing.EmployeeID == rec.EmployeeID {
			return existing, false, nil
		}
	}
	r.nextID++
	rec.ID = r.nextID
	rec.Status = StatusPending
	rec.CreatedAt = time.Now()
	r.records[rec.ID] = rec
	return rec, true, nil
}

func (r *memoryProfitRepo) GetByOrderEmployee(ctx context.Context, orderID, employeeID int64) (Record, error) {
	for _, rec := range r.records {
		if rec.OrderID == orderID && rec.EmployeeID == employeeID {
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

func (r *memoryProfitRepo) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	var out []Record
	for _, rec := range r.records {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.EmployeeID != 0 && rec.EmployeeID != filter.EmployeeID {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *memoryProfitRepo) SumRealized(ctx context.Context) (int64, error) {
	var sum int64
	for _, rec := range r.records {
		sum += rec.SystemShare()
	}
	return sum, nil
}

func (r *memoryProfitRepo) ListOrderIDs(ctx context.Context) (map[int64]struct{}, error) {
	ids := make(map[int64]struct{})
	for _, rec := range r.records {
		ids[rec.OrderID] = struct{}{}
	}
	return ids, nil
}

func (r *memoryProfitRepo) SettledOrderIDs(ctx context.Context, orderIDs []int64) (map[int64]bool, error) {
	settled := make(map[int64]bool, len(orderIDs))
	for _, id := range orderIDs {
		for _, rec := range r.records {
			if rec.OrderID == id && rec.Status == StatusSettled {
				settled[id] = true
			}
		}
	}
	return settled, nil
}

func (tx *memoryProfitTx) LockRecords(ctx context.Context, ids []int64) ([]Record, error) {
	var records []Record
	for _, id := range ids {
		rec, ok := tx.repo.records[id]
		if !ok {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (tx *memoryProfitTx) MarkSettled(ctx context.Context, ids []int64, settledAt time.Time, actorID int64) error {
	for _, id := range ids {
		rec := tx.repo.records[id]
		rec.Status = StatusSettled
		rec.SettledAt = &settledAt
		rec.SettledBy = &actorID
		tx.staged[id] = rec
	}
	return nil
}

func (tx *memoryProfitTx) InsertDuesExpense(ctx context.Context, e DuesExpense) (int64, error) {
	e.ID = int64(len(tx.repo.expenses) + len(tx.expense) + 1)
	tx.expense = append(tx.expense, e)
	return e.ID, nil
}

type stubLedger struct {
	movements []ledger.ApplyInput
	err       error
}

func (s *stubLedger) ApplyMovement(ctx context.Context, input ledger.ApplyInput) (ledger.CashMovement, error) {
	if s.err != nil {
		return ledger.CashMovement{}, s.err
	}
	s.movements = append(s.movements, input)
	return ledger.CashMovement{ID: int64(len(s.movements)), SourceID: input.SourceID, Amount: input.Amount, Direction: input.Direction}, nil
}

type stubOrders struct {
	orders []orders.Order
}

func (s *stubOrders) ListCountable(ctx context.Context, from, to time.Time) ([]orders.Order, error) {
	return s.orders, nil
}

func newTestService(repo *memoryProfitRepo, led *stubLedger, ord *stubOrders) *Service {
	return NewService(repo, led, ord, nil, nil, Config{EmployeeShareBasisPoints: 2000})
}

func TestCreateProfitRecordIdempotent(t *testing.T) {
	repo := newMemoryProfitRepo()
	svc := newTestService(repo, &stubLedger{}, nil)
	ctx := context.Background()

	first, err := svc.CreateProfitRecord(ctx, CreateInput{OrderID: 10, EmployeeID: 3, ProfitAmount: 50000, EmployeeProfit: 10000})
	require.NoError(t, err)

	second, err := svc.CreateProfitRecord(ctx, CreateInput{OrderID: 10, EmployeeID: 3, ProfitAmount: 50000, EmployeeProfit: 10000})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, repo.records, 1)
}

func TestCreateProfitRecordValidatesShare(t *testing.T) {
	svc := newTestService(newMemoryProfitRepo(), &stubLedger{}, nil)

	_, err := svc.CreateProfitRecord(context.Background(), CreateInput{OrderID: 1, EmployeeID: 1, ProfitAmount: 1000, EmployeeProfit: 2000})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateProfitRecord(context.Background(), CreateInput{OrderID: 1, EmployeeID: 1, ProfitAmount: 1000, EmployeeProfit: -1})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSettleBatch(t *testing.T) {
	repo := newMemoryProfitRepo()
	led := &stubLedger{}
	svc := newTestService(repo, led, nil)
	ctx := context.Background()

	var ids []int64
	for i := int64(1); i <= 3; i++ {
		rec, err := svc.CreateProfitRecord(ctx, CreateInput{OrderID: i, EmployeeID: 9, ProfitAmount: 10000, EmployeeProfit: 2000})
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	result, err := svc.Settle(ctx, SettleInput{RecordIDs: ids, SourceID: 1, ActorID: 42})
	require.NoError(t, err)
	require.Equal(t, int64(6000), result.Total)
	require.Len(t, repo.expenses, 1)
	require.Equal(t, int64(6000), repo.expenses[0].Amount)
	require.NotNil(t, result.Movement)
	require.Len(t, led.movements, 1)
	require.Equal(t, ledger.DirectionOut, led.movements[0].Direction)
	require.Equal(t, ledger.RefSettlement, led.movements[0].RefType)

	for _, id := range ids {
		require.Equal(t, StatusSettled, repo.records[id].Status)
		require.NotNil(t, repo.records[id].SettledAt)
	}
}

func TestSettlePayoutFailureKeepsBatchSettled(t *testing.T) {
	repo := newMemoryProfitRepo()
	led := &stubLedger{err: errors.New("redis timeout")}
	svc := newTestService(repo, led, nil)
	ctx := context.Background()

	rec, err := svc.CreateProfitRecord(ctx, CreateInput{OrderID: 1, EmployeeID: 9, ProfitAmount: 10000, EmployeeProfit: 2000})
	require.NoError(t, err)

	result, err := svc.Settle(ctx, SettleInput{RecordIDs: []int64{rec.ID}, SourceID: 1, ActorID: 42})
	require.ErrorIs(t, err, shared.ErrLedgerWriteFailed)

	// The settlement committed; only the payout is missing. The error
	// names the dues expense so the operator can reissue the movement.
	require.Equal(t, StatusSettled, repo.records[rec.ID].Status)
	require.Len(t, repo.expenses, 1)
	require.Equal(t, result.ExpenseID, repo.expenses[0].ID)
	require.Contains(t, err.Error(), "expense 1")
}

func TestSettleAllOrNothing(t *testing.T) {
	repo := newMemoryProfitRepo()
	svc := newTestService(repo, &stubLedger{}, nil)
	ctx := context.Background()

	var ids []int64
	for i := int64(1); i <= 4; i++ {
		rec, err := svc.CreateProfitRecord(ctx, CreateInput{OrderID: i, EmployeeID: 2, ProfitAmount: 5000, EmployeeProfit: 1000})
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}
	_, err := svc.Settle(ctx, SettleInput{RecordIDs: ids[3:], ActorID: 1})
	require.NoError(t, err)

	// Batch containing the already-settled record fails whole.
	_, err = svc.Settle(ctx, SettleInput{RecordIDs: ids, ActorID: 1})
	require.ErrorIs(t, err, shared.ErrAlreadySettled)

	for _, id := range ids[:3] {
		require.Equal(t, StatusPending, repo.records[id].Status)
	}
	require.Len(t, repo.expenses, 1)
}

func TestSettleEmptyBatchRejected(t *testing.T) {
	svc := newTestService(newMemoryProfitRepo(), &stubLedger{}, nil)
	_, err := svc.Settle(context.Background(), SettleInput{})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSettleUnknownRecordRejected(t *testing.T) {
	svc := newTestService(newMemoryProfitRepo(), &stubLedger{}, nil)
	_, err := svc.Settle(context.Background(), SettleInput{RecordIDs: []int64{99}, ActorID: 1})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestNetRealizedProfitIgnoresSettlementStatus(t *testing.T) {
	repo := newMemoryProfitRepo()
	svc := newTestService(repo, &stubLedger{}, nil)
	ctx := context.Background()

	a, err := svc.CreateProfitRecord(ctx, CreateInput{OrderID: 1, EmployeeID: 1, ProfitAmount: 10000, EmployeeProfit: 3000})
	require.NoError(t, err)
	_, err = svc.CreateProfitRecord(ctx, CreateInput{OrderID: 2, EmployeeID: 1, ProfitAmount: 20000, EmployeeProfit: 5000})
	require.NoError(t, err)

	realized, err := svc.NetRealizedProfit(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(22000), realized)

	_, err = svc.Settle(ctx, SettleInput{RecordIDs: []int64{a.ID}, ActorID: 1})
	require.NoError(t, err)

	// Settlement pays out the employee share; the system share stays realized.
	realized, err = svc.NetRealizedProfit(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(22000), realized)
}

func TestBackfillCreatesMissingRecords(t *testing.T) {
	repo := newMemoryProfitRepo()
	delivered := time.Now()
	ord := &stubOrders{orders: []orders.Order{
		{
			ID: 1, FinalAmount: 100000, DeliveryFee: 10000, ReceiptReceived: true,
			Status: orders.StatusDelivered, EmployeeID: 5, DeliveredAt: &delivered,
			Items: []orders.OrderItem{{Quantity: 2, UnitCost: 20000}},
		},
		{
			ID: 2, FinalAmount: 50000, ReceiptReceived: true,
			Status: orders.StatusCompleted, EmployeeID: 5,
			Items: []orders.OrderItem{{Quantity: 1, UnitCost: 30000}},
		},
	}}
	svc := newTestService(repo, &stubLedger{}, ord)
	ctx := context.Background()

	// Order 2 already has a record.
	_, err := svc.CreateProfitRecord(ctx, CreateInput{OrderID: 2, EmployeeID: 5, ProfitAmount: 20000, EmployeeProfit: 4000})
	require.NoError(t, err)

	created, err := svc.Backfill(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 1, created)

	rec, err := repo.GetByOrderEmployee(ctx, 1, 5)
	require.NoError(t, err)
	// gross = 100000 - 10000 - 40000, share = 20% of gross
	require.Equal(t, int64(50000), rec.ProfitAmount)
	require.Equal(t, int64(10000), rec.EmployeeProfit)

	// Second run is a no-op.
	created, err = svc.Backfill(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Zero(t, created)
}
