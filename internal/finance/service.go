// Package finance aggregates orders, expenses and profit records into the
// dashboard snapshot. It owns no tables of its own; every number is derived
// from the other modules through their ports.
package finance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gerai-ops/gerai/internal/expense"
	"github.com/gerai-ops/gerai/internal/orders"
)

// Snapshot is the dashboard payload. All amounts are minor currency units.
type Snapshot struct {
	From                 time.Time `json:"from"`
	To                   time.Time `json:"to"`
	TotalRevenue         int64     `json:"total_revenue"`
	DeliveryFees         int64     `json:"delivery_fees"`
	SalesWithoutDelivery int64     `json:"sales_without_delivery"`
	COGS                 int64     `json:"cogs"`
	GrossProfit          int64     `json:"gross_profit"`
	GeneralExpenses      int64     `json:"general_expenses"`
	EmployeeDuesPaid     int64     `json:"employee_dues_paid"`
	NetProfit            int64     `json:"net_profit"`
	PrimaryCashBalance   int64     `json:"primary_cash_balance"`
	TotalCapital         int64     `json:"total_capital"`
}

// OrdersPort lists the orders that count toward revenue.
type OrdersPort interface {
	ListCountable(ctx context.Context, from, to time.Time) ([]orders.Order, error)
}

// ExpensePort returns the expenses in a window; classification happens here.
type ExpensePort interface {
	ListWindow(ctx context.Context, from, to time.Time) ([]expense.Expense, error)
}

// LedgerPort exposes the capital figure from the movement ledger.
type LedgerPort interface {
	Capital(ctx context.Context) (int64, error)
}

// ProfitPort exposes the lifetime realized profit figure.
type ProfitPort interface {
	NetRealizedProfit(ctx context.Context) (int64, error)
}

// CatalogPort values stock on hand at cost.
type CatalogPort interface {
	InventoryValuation(ctx context.Context) (int64, error)
}

// Service computes snapshots and caches them briefly in redis.
type Service struct {
	orders   OrdersPort
	expenses ExpensePort
	ledger   LedgerPort
	profit   ProfitPort
	catalog  CatalogPort
	cache    redis.UniversalClient
	cacheTTL time.Duration
	logger   *slog.Logger
}

func NewService(ordersSvc OrdersPort, expenses ExpensePort, ledgerSvc LedgerPort, profit ProfitPort, catalog CatalogPort, cache redis.UniversalClient, cacheTTL time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &Service{
		orders:   ordersSvc,
		expenses: expenses,
		ledger:   ledgerSvc,
		profit:   profit,
		catalog:  catalog,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// PrimaryBalance derives the primary source balance: capital in minus
// capital out, plus the lifetime realized system share. The movement sum on
// the primary source is never consulted.
func (s *Service) PrimaryBalance(ctx context.Context) (int64, error) {
	capital, err := s.ledger.Capital(ctx)
	if err != nil {
		return 0, fmt.Errorf("calculate capital: %w", err)
	}
	realized, err := s.profit.NetRealizedProfit(ctx)
	if err != nil {
		return 0, fmt.Errorf("calculate realized profit: %w", err)
	}
	return capital + realized, nil
}

// GetFinancialSnapshot computes the snapshot for a window. Results are
// cached briefly; the window bounds form the cache key.
func (s *Service) GetFinancialSnapshot(ctx context.Context, from, to time.Time) (Snapshot, error) {
	key := snapshotCacheKey(from, to)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key).Result(); err == nil {
			var cached Snapshot
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				return cached, nil
			}
		}
	}

	snapshot, err := s.compute(ctx, from, to)
	if err != nil {
		return Snapshot{}, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(snapshot); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.cacheTTL).Err(); err != nil {
				s.logger.Warn("snapshot cache write failed", "error", err)
			}
		}
	}
	return snapshot, nil
}

// Invalidate drops the cached snapshot for a window after a write.
func (s *Service) Invalidate(ctx context.Context, from, to time.Time) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, snapshotCacheKey(from, to)).Err(); err != nil {
		s.logger.Warn("snapshot cache invalidation failed", "error", err)
	}
}

func snapshotCacheKey(from, to time.Time) string {
	return fmt.Sprintf("finance:snapshot:%d:%d", from.Unix(), to.Unix())
}

func (s *Service) compute(ctx context.Context, from, to time.Time) (Snapshot, error) {
	snapshot := Snapshot{From: from, To: to}

	countable, err := s.orders.ListCountable(ctx, from, to)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list countable orders: %w", err)
	}
	for _, order := range countable {
		snapshot.TotalRevenue += order.FinalAmount
		snapshot.DeliveryFees += order.DeliveryFee
		snapshot.COGS += order.COGS()
	}
	snapshot.SalesWithoutDelivery = snapshot.TotalRevenue - snapshot.DeliveryFees
	snapshot.GrossProfit = snapshot.SalesWithoutDelivery - snapshot.COGS

	windowExpenses, err := s.expenses.ListWindow(ctx, from, to)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list expenses: %w", err)
	}
	for _, e := range windowExpenses {
		switch expense.Classify(e) {
		case expense.ClassGeneral:
			snapshot.GeneralExpenses += e.Amount
		case expense.ClassEmployeeDues:
			if e.Status == expense.StatusApproved {
				snapshot.EmployeeDuesPaid += e.Amount
			}
		}
	}

	// Dues are a distribution of profit already accounted for through the
	// employee share, not a cost. Subtracting them here double-counts.
	snapshot.NetProfit = snapshot.GrossProfit - snapshot.GeneralExpenses

	snapshot.PrimaryCashBalance, err = s.PrimaryBalance(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	var inventory int64
	if s.catalog != nil {
		inventory, err = s.catalog.InventoryValuation(ctx)
		if err != nil {
			// Valuation being down degrades totalCapital, not the whole
			// snapshot.
			s.logger.Warn("inventory valuation failed", "error", err)
			inventory = 0
		}
	}
	snapshot.TotalCapital = snapshot.PrimaryCashBalance + inventory

	return snapshot, nil
}
