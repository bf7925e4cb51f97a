package profit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

// DuesExpense is the employee-dues expense row written in the same
// transaction as the settlement transition.
type DuesExpense struct {
	ID       int64
	Amount   int64
	ActorID  int64
	RecordID []int64
}

// TxRepository exposes transactional operations for settlement.
type TxRepository interface {
	LockRecords(ctx context.Context, ids []int64) ([]Record, error)
	MarkSettled(ctx context.Context, ids []int64, settledAt time.Time, actorID int64) error
	InsertDuesExpense(ctx context.Context, e DuesExpense) (int64, error)
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

const recordColumns = `id, order_id, employee_id, profit_amount, employee_profit, status, settled_at, settled_by, created_at`

// CreateIfAbsent inserts a record unless one exists for the same
// (order, employee) pair; the unique constraint makes creation idempotent.
// The second return reports whether a new row was inserted.
func (r *Repository) CreateIfAbsent(ctx context.Context, rec Record) (Record, bool, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO profit_records (order_id, employee_id, profit_amount, employee_profit, status, created_at)
VALUES ($1,$2,$3,$4,$5,NOW()) RETURNING id`,
		rec.OrderID, rec.EmployeeID, rec.ProfitAmount, rec.EmployeeProfit, StatusPending).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			existing, err := r.GetByOrderEmployee(ctx, rec.OrderID, rec.EmployeeID)
			return existing, false, err
		}
		return Record{}, false, err
	}
	rec.ID = id
	rec.Status = StatusPending
	return rec, true, nil
}

// GetByOrderEmployee fetches the record for one (order, employee) pair.
func (r *Repository) GetByOrderEmployee(ctx context.Context, orderID, employeeID int64) (Record, error) {
	var rec Record
	err := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM profit_records WHERE order_id=$1 AND employee_id=$2`, orderID, employeeID).
		Scan(&rec.ID, &rec.OrderID, &rec.EmployeeID, &rec.ProfitAmount, &rec.EmployeeProfit, &rec.Status, &rec.SettledAt, &rec.SettledBy, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

// ListFilter narrows List output.
type ListFilter struct {
	EmployeeID int64
	Status     Status
	Limit      int
	Offset     int
}

// List returns records newest-first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Record, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+` FROM profit_records
WHERE ($1 = 0 OR employee_id = $1) AND ($2 = '' OR status = $2)
ORDER BY id DESC LIMIT $3 OFFSET $4`, filter.EmployeeID, string(filter.Status), filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.OrderID, &rec.EmployeeID, &rec.ProfitAmount, &rec.EmployeeProfit, &rec.Status, &rec.SettledAt, &rec.SettledBy, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SumRealized totals the system share over every record, the lifetime
// realized profit feeding the primary source balance.
func (r *Repository) SumRealized(ctx context.Context) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(profit_amount - employee_profit),0) FROM profit_records`).Scan(&sum)
	return sum, err
}

// SettledOrderIDs reports which of the given orders have at least one
// settled record.
func (r *Repository) SettledOrderIDs(ctx context.Context, orderIDs []int64) (map[int64]bool, error) {
	settled := make(map[int64]bool, len(orderIDs))
	if len(orderIDs) == 0 {
		return settled, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT order_id FROM profit_records WHERE status=$1 AND order_id = ANY($2)`,
		string(StatusSettled), orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		settled[id] = true
	}
	return settled, rows.Err()
}

// ListOrderIDs returns the ids of orders that already have a record.
func (r *Repository) ListOrderIDs(ctx context.Context) (map[int64]struct{}, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT order_id FROM profit_records`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

func (tx *txRepo) LockRecords(ctx context.Context, ids []int64) ([]Record, error) {
	rows, err := tx.tx.Query(ctx, `SELECT `+recordColumns+` FROM profit_records WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.OrderID, &rec.EmployeeID, &rec.ProfitAmount, &rec.EmployeeProfit, &rec.Status, &rec.SettledAt, &rec.SettledBy, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (tx *txRepo) MarkSettled(ctx context.Context, ids []int64, settledAt time.Time, actorID int64) error {
	_, err := tx.tx.Exec(ctx, `UPDATE profit_records SET status=$1, settled_at=$2, settled_by=$3 WHERE id = ANY($4)`,
		StatusSettled, settledAt, actorID, ids)
	return err
}

func (tx *txRepo) InsertDuesExpense(ctx context.Context, e DuesExpense) (int64, error) {
	meta, err := json.Marshal(map[string]any{"category": "employee_dues", "profit_record_ids": e.RecordID})
	if err != nil {
		return 0, err
	}
	var id int64
	err = tx.tx.QueryRow(ctx, `INSERT INTO expenses (category, type, amount, vendor, status, meta, ref_kind, created_by, approved_by, created_at, updated_at)
VALUES ('employee_dues','ORDINARY',$1,'','APPROVED',$2,'SETTLEMENT',$3,$3,NOW(),NOW()) RETURNING id`,
		e.Amount, meta, e.ActorID).Scan(&id)
	return id, err
}
