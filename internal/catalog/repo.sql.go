// Package catalog is a thin adapter over the product variant table. The
// storefront owns product data; the engine only adjusts stock counters when
// purchases land and values stock on hand for the capital figure.
package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AdjustStock moves a variant's stock by delta. Negative results are
// allowed; oversold stock is a storefront problem, not a ledger one.
func (r *Repository) AdjustStock(ctx context.Context, variantID int64, delta int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE product_variants SET stock = stock + $2, updated_at = NOW() WHERE id = $1
	`, variantID, delta)
	if err != nil {
		return fmt.Errorf("adjust stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("adjust stock: variant %d not found", variantID)
	}
	return nil
}

// InventoryValuation values stock on hand at the variant unit cost.
func (r *Repository) InventoryValuation(ctx context.Context) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(stock * unit_cost), 0) FROM product_variants WHERE stock > 0
	`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("inventory valuation: %w", err)
	}
	return total, nil
}
