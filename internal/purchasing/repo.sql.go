package purchasing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gerai-ops/gerai/internal/platform/db"
)

// RepositoryPort is what the service needs from storage.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Purchase, error)
	List(ctx context.Context, filter ListFilter) ([]Purchase, int64, error)
	MarkPaid(ctx context.Context, id int64) error
	SetStatus(ctx context.Context, id int64, status Status) error
}

// TxRepository covers the writes that must commit together.
type TxRepository interface {
	CreatePurchase(ctx context.Context, p Purchase) (Purchase, error)
	InsertLine(ctx context.Context, line Line) (Line, error)
}

type ListFilter struct {
	Status Status
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (t *txRepository) CreatePurchase(ctx context.Context, p Purchase) (Purchase, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO purchases (supplier, supplier_phone, shipping_cost, transfer_cost, source_id, status, paid, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`, p.Supplier, p.SupplierPhone, p.ShippingCost, p.TransferCost, p.SourceID, p.Status, p.Paid, p.CreatedBy).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Purchase{}, fmt.Errorf("insert purchase: %w", err)
	}
	return p, nil
}

func (t *txRepository) InsertLine(ctx context.Context, line Line) (Line, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO purchase_lines (purchase_id, variant_id, quantity, unit_cost)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, line.PurchaseID, line.VariantID, line.Quantity, line.UnitCost).Scan(&line.ID)
	if err != nil {
		return Line{}, fmt.Errorf("insert purchase line: %w", err)
	}
	return line, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (Purchase, error) {
	var p Purchase
	err := r.pool.QueryRow(ctx, `
		SELECT id, supplier, supplier_phone, shipping_cost, transfer_cost, source_id, status, paid, created_by, created_at, updated_at
		FROM purchases
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Supplier, &p.SupplierPhone, &p.ShippingCost, &p.TransferCost,
		&p.SourceID, &p.Status, &p.Paid, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Purchase{}, ErrNotFound
	}
	if err != nil {
		return Purchase{}, fmt.Errorf("get purchase: %w", err)
	}
	p.Lines, err = r.linesFor(ctx, p.ID)
	if err != nil {
		return Purchase{}, err
	}
	return p, nil
}

func (r *Repository) linesFor(ctx context.Context, purchaseID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, purchase_id, variant_id, quantity, unit_cost
		FROM purchase_lines
		WHERE purchase_id = $1
		ORDER BY id
	`, purchaseID)
	if err != nil {
		return nil, fmt.Errorf("list purchase lines: %w", err)
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.PurchaseID, &line.VariantID, &line.Quantity, &line.UnitCost); err != nil {
			return nil, fmt.Errorf("scan purchase line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Purchase, int64, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	query := `
		SELECT id, supplier, supplier_phone, shipping_cost, transfer_cost, source_id, status, paid, created_by, created_at, updated_at
		FROM purchases
		WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM purchases WHERE 1=1`
	args := []any{}
	idx := 1

	addCond := func(cond string, value any) {
		query += fmt.Sprintf(" AND "+cond, idx)
		countQuery += fmt.Sprintf(" AND "+cond, idx)
		args = append(args, value)
		idx++
	}
	if filter.Status != "" {
		addCond("status = $%d", filter.Status)
	}
	if filter.From != nil {
		addCond("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		addCond("created_at < $%d", *filter.To)
	}

	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count purchases: %w", err)
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()

	var purchases []Purchase
	for rows.Next() {
		var p Purchase
		if err := rows.Scan(&p.ID, &p.Supplier, &p.SupplierPhone, &p.ShippingCost, &p.TransferCost,
			&p.SourceID, &p.Status, &p.Paid, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	return purchases, total, rows.Err()
}

func (r *Repository) MarkPaid(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE purchases SET paid = TRUE, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark purchase paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) SetStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE purchases SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("set purchase status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
