package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gerai-ops/gerai/internal/shared"
)

type memoryLedgerRepo struct {
	mu        sync.Mutex
	sources   map[int64]CashSource
	movements []CashMovement
	nextID    int64

	failInsert bool

	// sumEntered/sumResume park SumMovements mid-flight so tests can
	// interleave a concurrent write at that exact point.
	sumEntered chan struct{}
	sumResume  chan struct{}
}

type memoryLedgerTx struct {
	repo *memoryLedgerRepo
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{sources: make(map[int64]CashSource)}
}

func (r *memoryLedgerRepo) addSource(src CashSource) CashSource {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	src.ID = r.nextID
	src.Active = true
	r.sources[src.ID] = src
	return src
}

func (r *memoryLedgerRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryLedgerTx{repo: r})
}

func (r *memoryLedgerRepo) GetSource(ctx context.Context, id int64) (CashSource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.sources[id]
	if !ok {
		return CashSource{}, ErrSourceNotFound
	}
	return src, nil
}

func (r *memoryLedgerRepo) GetPrimarySource(ctx context.Context) (CashSource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, src := range r.sources {
		if src.Primary {
			return src, nil
		}
	}
	return CashSource{}, ErrSourceNotFound
}

func (r *memoryLedgerRepo) ListSources(ctx context.Context) ([]CashSource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sources := make([]CashSource, 0, len(r.sources))
	for _, src := range r.sources {
		sources = append(sources, src)
	}
	return sources, nil
}

func (r *memoryLedgerRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]CashMovement, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CashMovement
	for i := len(r.movements) - 1; i >= 0; i-- {
		m := r.movements[i]
		if filter.SourceID != 0 && m.SourceID != filter.SourceID {
			continue
		}
		if filter.RefType != "" && m.RefType != filter.RefType {
			continue
		}
		out = append(out, m)
	}
	return out, len(out), nil
}

func (r *memoryLedgerRepo) SumMovements(ctx context.Context, sourceID int64) (int64, error) {
	r.mu.Lock()
	var sum int64
	for _, m := range r.movements {
		if m.SourceID == sourceID {
			sum += m.Signed()
		}
	}
	r.mu.Unlock()
	// Park after the sum is read so tests can squeeze a write into the
	// window between reading the sum and acting on it.
	if r.sumEntered != nil {
		r.sumEntered <- struct{}{}
		<-r.sumResume
	}
	return sum, nil
}

func (r *memoryLedgerRepo) SumByRefType(ctx context.Context, sourceID int64, refType ReferenceType) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, m := range r.movements {
		if m.SourceID == sourceID && m.RefType == refType {
			sum += m.Signed()
		}
	}
	return sum, nil
}

func (r *memoryLedgerRepo) UpdateSourceBalance(ctx context.Context, id int64, balance int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.sources[id]
	if !ok {
		return ErrSourceNotFound
	}
	src.Balance = balance
	r.sources[id] = src
	return nil
}

func (tx *memoryLedgerTx) GetSourceForUpdate(ctx context.Context, id int64) (CashSource, error) {
	return tx.repo.GetSource(ctx, id)
}

func (tx *memoryLedgerTx) InsertMovement(ctx context.Context, m CashMovement) (int64, error) {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	if tx.repo.failInsert {
		return 0, errors.New("insert failed")
	}
	tx.repo.nextID++
	m.ID = tx.repo.nextID
	tx.repo.movements = append(tx.repo.movements, m)
	return m.ID, nil
}

func (tx *memoryLedgerTx) UpdateSourceBalance(ctx context.Context, id int64, balance int64) error {
	return tx.repo.UpdateSourceBalance(ctx, id, balance)
}

func (tx *memoryLedgerTx) SumMovements(ctx context.Context, sourceID int64) (int64, error) {
	return tx.repo.SumMovements(ctx, sourceID)
}

func TestApplyMovementConservation(t *testing.T) {
	repo := newMemoryLedgerRepo()
	src := repo.addSource(CashSource{Name: "Kas Toko", Kind: SourceKindCash})
	svc := NewService(repo, nil)
	ctx := context.Background()

	steps := []struct {
		amount    int64
		direction Direction
	}{
		{50000, DirectionIn},
		{12000, DirectionOut},
		{3000, DirectionIn},
		{60000, DirectionOut},
	}
	for _, step := range steps {
		_, err := svc.ApplyMovement(ctx, ApplyInput{
			SourceID:  src.ID,
			Amount:    step.amount,
			Direction: step.direction,
			RefType:   RefAdjustment,
		})
		require.NoError(t, err)
	}

	sum, err := repo.SumMovements(ctx, src.ID)
	require.NoError(t, err)
	balance, err := svc.GetBalance(ctx, src.ID)
	require.NoError(t, err)
	require.Equal(t, sum, balance)
	// Insufficient balance is not enforced; the source may go negative.
	require.Equal(t, int64(-19000), balance)
}

func TestApplyMovementRejectsNonPositiveAmounts(t *testing.T) {
	repo := newMemoryLedgerRepo()
	src := repo.addSource(CashSource{Name: "Bank", Kind: SourceKindBank})
	svc := NewService(repo, nil)
	ctx := context.Background()

	for _, amount := range []int64{0, -500} {
		_, err := svc.ApplyMovement(ctx, ApplyInput{SourceID: src.ID, Amount: amount, Direction: DirectionIn, RefType: RefAdjustment})
		require.ErrorIs(t, err, shared.ErrInvalidAmount)
	}
	require.Empty(t, repo.movements)
}

func TestApplyMovementUnknownSource(t *testing.T) {
	repo := newMemoryLedgerRepo()
	svc := NewService(repo, nil)

	_, err := svc.ApplyMovement(context.Background(), ApplyInput{SourceID: 404, Amount: 1000, Direction: DirectionIn, RefType: RefAdjustment})
	require.ErrorIs(t, err, shared.ErrSourceNotFound)
}

func TestApplyMovementFailureWritesNothing(t *testing.T) {
	repo := newMemoryLedgerRepo()
	src := repo.addSource(CashSource{Name: "Kas", Kind: SourceKindCash, Balance: 1000})
	repo.failInsert = true
	svc := NewService(repo, nil)

	_, err := svc.ApplyMovement(context.Background(), ApplyInput{SourceID: src.ID, Amount: 500, Direction: DirectionOut, RefType: RefExpense})
	require.Error(t, err)
	require.Empty(t, repo.movements)
	balance, err := svc.GetBalance(context.Background(), src.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1000), balance)
}

type fixedBalancer struct {
	balance int64
}

func (b fixedBalancer) PrimaryBalance(ctx context.Context) (int64, error) {
	return b.balance, nil
}

func TestPrimaryBalanceIsDerived(t *testing.T) {
	repo := newMemoryLedgerRepo()
	primary := repo.addSource(CashSource{Name: "Kas Utama", Kind: SourceKindCash, Primary: true, Balance: 999})
	svc := NewService(repo, nil)
	svc.SetPrimaryBalancer(fixedBalancer{balance: 777000})

	balance, err := svc.GetBalance(context.Background(), primary.ID)
	require.NoError(t, err)
	// Never the cached movement balance for the primary source.
	require.Equal(t, int64(777000), balance)
}

func TestTransferAppliesBothLegs(t *testing.T) {
	repo := newMemoryLedgerRepo()
	from := repo.addSource(CashSource{Name: "Kas", Kind: SourceKindCash, Balance: 100000})
	to := repo.addSource(CashSource{Name: "Bank", Kind: SourceKindBank})
	svc := NewService(repo, nil)

	out, in, err := svc.Transfer(context.Background(), TransferInput{FromSourceID: from.ID, ToSourceID: to.ID, Amount: 40000})
	require.NoError(t, err)
	require.Equal(t, DirectionOut, out.Direction)
	require.Equal(t, DirectionIn, in.Direction)
	require.Equal(t, out.ID, *in.RefID)

	fromBalance, _ := svc.GetBalance(context.Background(), from.ID)
	toBalance, _ := svc.GetBalance(context.Background(), to.ID)
	require.Equal(t, int64(60000), fromBalance)
	require.Equal(t, int64(40000), toBalance)
}

func TestTransferSameSourceRejected(t *testing.T) {
	repo := newMemoryLedgerRepo()
	src := repo.addSource(CashSource{Name: "Kas", Kind: SourceKindCash})
	svc := NewService(repo, nil)

	_, _, err := svc.Transfer(context.Background(), TransferInput{FromSourceID: src.ID, ToSourceID: src.ID, Amount: 100})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestReconcileDetectsDriftAndRepairs(t *testing.T) {
	repo := newMemoryLedgerRepo()
	src := repo.addSource(CashSource{Name: "Bank", Kind: SourceKindBank})
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.ApplyMovement(ctx, ApplyInput{SourceID: src.ID, Amount: 25000, Direction: DirectionIn, RefType: RefAdjustment})
	require.NoError(t, err)

	report, err := svc.Reconcile(ctx, src.ID)
	require.NoError(t, err)
	require.True(t, report.Consistent)

	// Simulate a missed ledger write corrupting the cache.
	require.NoError(t, repo.UpdateSourceBalance(ctx, src.ID, 30000))

	report, err = svc.Reconcile(ctx, src.ID)
	require.ErrorIs(t, err, shared.ErrReconciliationRequired)
	require.Equal(t, int64(5000), report.Drift)

	repaired, err := svc.Repair(ctx, src.ID, 1)
	require.NoError(t, err)
	require.True(t, repaired.Consistent)

	balance, err := svc.GetBalance(ctx, src.ID)
	require.NoError(t, err)
	require.Equal(t, int64(25000), balance)
}

func TestRepairDoesNotEraseConcurrentMovement(t *testing.T) {
	repo := newMemoryLedgerRepo()
	src := repo.addSource(CashSource{Name: "Bank", Kind: SourceKindBank})
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.ApplyMovement(ctx, ApplyInput{SourceID: src.ID, Amount: 25000, Direction: DirectionIn, RefType: RefAdjustment})
	require.NoError(t, err)
	require.NoError(t, repo.UpdateSourceBalance(ctx, src.ID, 20000))

	repo.sumEntered = make(chan struct{})
	repo.sumResume = make(chan struct{})

	repairErr := make(chan error, 1)
	go func() {
		_, err := svc.Repair(ctx, src.ID, 1)
		repairErr <- err
	}()
	<-repo.sumEntered

	// A movement lands while the repair is mid-flight. It must either be
	// part of the repaired sum or applied on top of it, never erased.
	applyErr := make(chan error, 1)
	go func() {
		_, err := svc.ApplyMovement(ctx, ApplyInput{SourceID: src.ID, Amount: 1000, Direction: DirectionIn, RefType: RefAdjustment})
		applyErr <- err
	}()
	time.Sleep(50 * time.Millisecond)
	close(repo.sumResume)

	require.NoError(t, <-repairErr)
	require.NoError(t, <-applyErr)
	repo.sumEntered = nil

	sum, err := repo.SumMovements(ctx, src.ID)
	require.NoError(t, err)
	require.Equal(t, int64(26000), sum)

	balance, err := svc.GetBalance(ctx, src.ID)
	require.NoError(t, err)
	require.Equal(t, sum, balance)
}

func TestReconcileSkipsPrimarySource(t *testing.T) {
	repo := newMemoryLedgerRepo()
	primary := repo.addSource(CashSource{Name: "Kas Utama", Kind: SourceKindCash, Primary: true, Balance: 12345})
	svc := NewService(repo, nil)

	report, err := svc.Reconcile(context.Background(), primary.ID)
	require.NoError(t, err)
	require.True(t, report.PrimarySkip)
}

func TestConcurrentMovementsStaySerial(t *testing.T) {
	repo := newMemoryLedgerRepo()
	src := repo.addSource(CashSource{Name: "Kas", Kind: SourceKindCash})
	svc := NewService(repo, nil)
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, err := svc.ApplyMovement(ctx, ApplyInput{SourceID: src.ID, Amount: 1000, Direction: DirectionIn, RefType: RefAdjustment})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	balance, err := svc.GetBalance(ctx, src.ID)
	require.NoError(t, err)
	require.Equal(t, int64(writers*1000), balance)
	sum, err := repo.SumMovements(ctx, src.ID)
	require.NoError(t, err)
	require.Equal(t, balance, sum)
}
