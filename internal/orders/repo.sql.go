package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gerai-ops/gerai/internal/shared"
)

// ErrNotFound indicates a missing order.
var ErrNotFound = fmt.Errorf("orders: %w", shared.ErrNotFound)

// Repository reads sales orders from the shared store. Finance never
// writes to these tables.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const orderColumns = `id, final_amount, delivery_fee, receipt_received, status, customer_id, customer_name, employee_id, province, delivered_at, created_at`

// Get fetches one order with its items.
func (r *Repository) Get(ctx context.Context, id int64) (Order, error) {
	var o Order
	err := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.FinalAmount, &o.DeliveryFee, &o.ReceiptReceived, &o.Status, &o.CustomerID, &o.CustomerName, &o.EmployeeID, &o.Province, &o.DeliveredAt, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	items, err := r.listItems(ctx, []int64{o.ID})
	if err != nil {
		return Order{}, err
	}
	o.Items = items[o.ID]
	return o, nil
}

// ListCountable returns financially countable orders in the window with
// their items. A zero bound leaves that side open.
func (r *Repository) ListCountable(ctx context.Context, from, to time.Time) ([]Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders
WHERE status IN ('DELIVERED','COMPLETED') AND receipt_received
  AND ($1::timestamptz IS NULL OR created_at >= $1)
  AND ($2::timestamptz IS NULL OR created_at <= $2)
ORDER BY id`, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var (
		list []Order
		ids  []int64
	)
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.FinalAmount, &o.DeliveryFee, &o.ReceiptReceived, &o.Status, &o.CustomerID, &o.CustomerName, &o.EmployeeID, &o.Province, &o.DeliveredAt, &o.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return list, nil
	}
	items, err := r.listItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Items = items[list[i].ID]
	}
	return list, nil
}

func (r *Repository) listItems(ctx context.Context, orderIDs []int64) (map[int64][]OrderItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, variant_id, quantity, unit_price, unit_cost
FROM order_items WHERE order_id = ANY($1) ORDER BY id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make(map[int64][]OrderItem)
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.VariantID, &item.Quantity, &item.UnitPrice, &item.UnitCost); err != nil {
			return nil, err
		}
		items[item.OrderID] = append(items[item.OrderID], item)
	}
	return items, rows.Err()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
