package expense

import (
	"context"
	"encoding/json"
	"errors"
	"time"

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

const expenseColumns = `id, category, type, amount, vendor, status, meta, ref_kind, ref_id, created_by, approved_by, voided_at, created_at, updated_at`

func scanExpense(row pgx.Row) (Expense, error) {
	var (
		e        Expense
		metaJSON []byte
	)
	err := row.Scan(&e.ID, &e.Category, &e.Type, &e.Amount, &e.Vendor, &e.Status, &metaJSON, &e.RefKind, &e.RefID, &e.CreatedBy, &e.ApprovedBy, &e.VoidedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return Expense{}, err
	}
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &e.Meta)
	}
	return e, nil
}

// Create inserts an expense row.
func (r *Repository) Create(ctx context.Context, e Expense) (int64, error) {
	metaJSON, err := json.Marshal(e.Meta)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.pool.QueryRow(ctx, `INSERT INTO expenses (category, type, amount, vendor, status, meta, ref_kind, ref_id, created_by, approved_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW()) RETURNING id`,
		e.Category, e.Type, e.Amount, e.Vendor, e.Status, metaJSON, e.RefKind, e.RefID, e.CreatedBy, e.ApprovedBy).Scan(&id)
	return id, err
}

// Get fetches one expense.
func (r *Repository) Get(ctx context.Context, id int64) (Expense, error) {
	e, err := scanExpense(r.pool.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expense{}, ErrNotFound
		}
		return Expense{}, err
	}
	return e, nil
}

// UpdateStatus transitions the approval status; the amount stays immutable.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status Status, approvedBy *int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE expenses SET status=$1, approved_by=$2, updated_at=NOW() WHERE id=$3`, status, approvedBy, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFilter narrows List output.
type ListFilter struct {
	From    time.Time
	To      time.Time
	Status  Status
	RefKind RefKind
	RefID   int64
	Limit   int
	Offset  int
}

// List returns non-voided expenses newest-first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Expense, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+expenseColumns+` FROM expenses
WHERE voided_at IS NULL
  AND ($1::timestamptz IS NULL OR created_at >= $1)
  AND ($2::timestamptz IS NULL OR created_at <= $2)
  AND ($3 = '' OR status = $3)
  AND ($4 = '' OR ref_kind = $4)
  AND ($5 = 0 OR ref_id = $5)
ORDER BY id DESC LIMIT $6 OFFSET $7`,
		nullTime(filter.From), nullTime(filter.To), string(filter.Status), string(filter.RefKind), filter.RefID, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var expenses []Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// ListWindow returns all non-voided expenses inside a time window, used by
// the financial aggregator. A zero bound leaves that side open.
func (r *Repository) ListWindow(ctx context.Context, from, to time.Time) ([]Expense, error) {
	return r.List(ctx, ListFilter{From: from, To: to, Limit: 1 << 20})
}

// VoidByRef voids every expense generated for one originating entity.
// Returns the number of rows voided.
func (r *Repository) VoidByRef(ctx context.Context, kind RefKind, refID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE expenses SET voided_at=NOW(), updated_at=NOW() WHERE ref_kind=$1 AND ref_id=$2 AND voided_at IS NULL`, kind, refID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
