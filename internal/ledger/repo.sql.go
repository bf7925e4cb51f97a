package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations for the write path.
type TxRepository interface {
	GetSourceForUpdate(ctx context.Context, id int64) (CashSource, error)
	InsertMovement(ctx context.Context, m CashMovement) (int64, error)
	UpdateSourceBalance(ctx context.Context, id int64, balance int64) error
	SumMovements(ctx context.Context, sourceID int64) (int64, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepo{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const sourceColumns = `id, name, kind, current_balance, is_primary, is_active, created_at`

// GetSource fetches one cash source by id.
func (r *Repository) GetSource(ctx context.Context, id int64) (CashSource, error) {
	var src CashSource
	err := r.pool.QueryRow(ctx, `SELECT `+sourceColumns+` FROM cash_sources WHERE id=$1`, id).
		Scan(&src.ID, &src.Name, &src.Kind, &src.Balance, &src.Primary, &src.Active, &src.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CashSource{}, ErrSourceNotFound
		}
		return CashSource{}, err
	}
	return src, nil
}

// GetPrimarySource fetches the distinguished primary source.
func (r *Repository) GetPrimarySource(ctx context.Context) (CashSource, error) {
	var src CashSource
	err := r.pool.QueryRow(ctx, `SELECT `+sourceColumns+` FROM cash_sources WHERE is_primary LIMIT 1`).
		Scan(&src.ID, &src.Name, &src.Kind, &src.Balance, &src.Primary, &src.Active, &src.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CashSource{}, ErrSourceNotFound
		}
		return CashSource{}, err
	}
	return src, nil
}

// ListSources returns all active sources ordered by name.
func (r *Repository) ListSources(ctx context.Context) ([]CashSource, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+sourceColumns+` FROM cash_sources WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sources []CashSource
	for rows.Next() {
		var src CashSource
		if err := rows.Scan(&src.ID, &src.Name, &src.Kind, &src.Balance, &src.Primary, &src.Active, &src.CreatedAt); err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// CreateSource inserts a new cash source.
func (r *Repository) CreateSource(ctx context.Context, src CashSource) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO cash_sources (name, kind, current_balance, is_primary, is_active, created_at)
VALUES ($1,$2,$3,$4,TRUE,NOW()) RETURNING id`, src.Name, src.Kind, src.Balance, src.Primary).Scan(&id)
	return id, err
}

// MovementFilter narrows ListMovements output.
type MovementFilter struct {
	SourceID int64
	RefType  ReferenceType
	Limit    int
	Offset   int
}

// ListMovements returns movements newest-first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]CashMovement, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	where := ` WHERE ($1 = 0 OR source_id = $1) AND ($2 = '' OR ref_type = $2)`
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cash_movements`+where, filter.SourceID, string(filter.RefType)).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, source_id, amount, direction, ref_type, ref_id, description, balance_after, actor_id, created_at
FROM cash_movements`+where+` ORDER BY id DESC LIMIT $3 OFFSET $4`, filter.SourceID, string(filter.RefType), filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var movements []CashMovement
	for rows.Next() {
		var m CashMovement
		if err := rows.Scan(&m.ID, &m.SourceID, &m.Amount, &m.Direction, &m.RefType, &m.RefID, &m.Description, &m.BalanceAfter, &m.ActorID, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		movements = append(movements, m)
	}
	return movements, total, rows.Err()
}

// SumMovements recomputes the signed movement total for a source.
func (r *Repository) SumMovements(ctx context.Context, sourceID int64) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(CASE WHEN direction='IN' THEN amount ELSE -amount END),0)
FROM cash_movements WHERE source_id=$1`, sourceID).Scan(&sum)
	return sum, err
}

// SumByRefType totals signed movements of one reference type for a source.
func (r *Repository) SumByRefType(ctx context.Context, sourceID int64, refType ReferenceType) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(CASE WHEN direction='IN' THEN amount ELSE -amount END),0)
FROM cash_movements WHERE source_id=$1 AND ref_type=$2`, sourceID, string(refType)).Scan(&sum)
	return sum, err
}

// UpdateSourceBalance rewrites the cached balance outside the write path,
// used by the reconciliation repair procedure.
func (r *Repository) UpdateSourceBalance(ctx context.Context, id int64, balance int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE cash_sources SET current_balance=$1 WHERE id=$2`, balance, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSourceNotFound
	}
	return nil
}

func (tx *txRepo) GetSourceForUpdate(ctx context.Context, id int64) (CashSource, error) {
	var src CashSource
	err := tx.tx.QueryRow(ctx, `SELECT `+sourceColumns+` FROM cash_sources WHERE id=$1 FOR UPDATE`, id).
		Scan(&src.ID, &src.Name, &src.Kind, &src.Balance, &src.Primary, &src.Active, &src.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CashSource{}, ErrSourceNotFound
		}
		return CashSource{}, err
	}
	return src, nil
}

func (tx *txRepo) InsertMovement(ctx context.Context, m CashMovement) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO cash_movements (source_id, amount, direction, ref_type, ref_id, description, balance_after, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id`,
		m.SourceID, m.Amount, m.Direction, m.RefType, m.RefID, m.Description, m.BalanceAfter, m.ActorID).Scan(&id)
	return id, err
}

func (tx *txRepo) UpdateSourceBalance(ctx context.Context, id int64, balance int64) error {
	_, err := tx.tx.Exec(ctx, `UPDATE cash_sources SET current_balance=$1 WHERE id=$2`, balance, id)
	return err
}

func (tx *txRepo) SumMovements(ctx context.Context, sourceID int64) (int64, error) {
	var sum int64
	err := tx.tx.QueryRow(ctx, `SELECT COALESCE(SUM(CASE WHEN direction='IN' THEN amount ELSE -amount END),0)
FROM cash_movements WHERE source_id=$1`, sourceID).Scan(&sum)
	return sum, err
}
