// Package reporting is the read-only query facade over orders, expenses and
// profit records. It composes the other modules and adds presentation
// concerns; it never re-implements their classification or totals.
package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gerai-ops/gerai/internal/orders"
)

// OrdersPort lists the orders that count toward revenue.
type OrdersPort interface {
	ListCountable(ctx context.Context, from, to time.Time) ([]orders.Order, error)
}

// ProfitPort exposes the settlement state per order.
type ProfitPort interface {
	SettledOrders(ctx context.Context, orderIDs []int64) (map[int64]bool, error)
}

// Service answers the dashboard list queries.
type Service struct {
	orders  OrdersPort
	profit  ProfitPort
	printer *message.Printer
}

func NewService(ordersSvc OrdersPort, profitSvc ProfitPort) *Service {
	return &Service{
		orders: ordersSvc,
		profit: profitSvc,
		// Amounts render with Indonesian digit grouping.
		printer: message.NewPrinter(language.Indonesian),
	}
}

// CustomerRank is one row of the top-customers report.
type CustomerRank struct {
	CustomerID     int64  `json:"customer_id"`
	CustomerName   string `json:"customer_name"`
	OrderCount     int64  `json:"order_count"`
	Revenue        int64  `json:"revenue"`
	RevenueDisplay string `json:"revenue_display"`
}

// TopCustomers ranks customers by revenue over countable orders.
func (s *Service) TopCustomers(ctx context.Context, from, to time.Time, limit int) ([]CustomerRank, error) {
	countable, err := s.orders.ListCountable(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list countable orders: %w", err)
	}

	byCustomer := make(map[int64]*CustomerRank)
	for _, order := range countable {
		rank, ok := byCustomer[order.CustomerID]
		if !ok {
			rank = &CustomerRank{CustomerID: order.CustomerID, CustomerName: order.CustomerName}
			byCustomer[order.CustomerID] = rank
		}
		rank.OrderCount++
		rank.Revenue += order.FinalAmount
	}

	ranks := make([]CustomerRank, 0, len(byCustomer))
	for _, rank := range byCustomer {
		rank.RevenueDisplay = s.printer.Sprintf("%d", rank.Revenue)
		ranks = append(ranks, *rank)
	}
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].Revenue != ranks[j].Revenue {
			return ranks[i].Revenue > ranks[j].Revenue
		}
		return ranks[i].CustomerID < ranks[j].CustomerID
	})
	return clamp(ranks, limit), nil
}

// ProvinceRank is one row of the top-provinces report.
type ProvinceRank struct {
	Province       string `json:"province"`
	OrderCount     int64  `json:"order_count"`
	Revenue        int64  `json:"revenue"`
	RevenueDisplay string `json:"revenue_display"`
}

// TopProvinces ranks delivery provinces by revenue.
func (s *Service) TopProvinces(ctx context.Context, from, to time.Time, limit int) ([]ProvinceRank, error) {
	countable, err := s.orders.ListCountable(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list countable orders: %w", err)
	}

	byProvince := make(map[string]*ProvinceRank)
	for _, order := range countable {
		province := order.Province
		if province == "" {
			province = "Tidak diketahui"
		}
		rank, ok := byProvince[province]
		if !ok {
			rank = &ProvinceRank{Province: province}
			byProvince[province] = rank
		}
		rank.OrderCount++
		rank.Revenue += order.FinalAmount
	}

	ranks := make([]ProvinceRank, 0, len(byProvince))
	for _, rank := range byProvince {
		rank.RevenueDisplay = s.printer.Sprintf("%d", rank.Revenue)
		ranks = append(ranks, *rank)
	}
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].Revenue != ranks[j].Revenue {
			return ranks[i].Revenue > ranks[j].Revenue
		}
		return ranks[i].Province < ranks[j].Province
	})
	return clamp(ranks, limit), nil
}

// MarginRow is the per-order margin view.
type MarginRow struct {
	OrderID        int64  `json:"order_id"`
	Revenue        int64  `json:"revenue"`
	DeliveryFee    int64  `json:"delivery_fee"`
	COGS           int64  `json:"cogs"`
	Margin         int64  `json:"margin"`
	MarginBasisPts int64  `json:"margin_basis_pts"`
	Settled        bool   `json:"settled"`
	MarginDisplay  string `json:"margin_display"`
}

// Margins lists per-order margins with their settlement state. Margin is
// computed on sales excluding delivery, mirroring the snapshot formulae.
func (s *Service) Margins(ctx context.Context, from, to time.Time) ([]MarginRow, error) {
	countable, err := s.orders.ListCountable(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list countable orders: %w", err)
	}

	orderIDs := make([]int64, 0, len(countable))
	for _, order := range countable {
		orderIDs = append(orderIDs, order.ID)
	}
	settled, err := s.profit.SettledOrders(ctx, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("settlement state: %w", err)
	}

	rows := make([]MarginRow, 0, len(countable))
	for _, order := range countable {
		sales := order.FinalAmount - order.DeliveryFee
		margin := sales - order.COGS()
		row := MarginRow{
			OrderID:     order.ID,
			Revenue:     order.FinalAmount,
			DeliveryFee: order.DeliveryFee,
			COGS:        order.COGS(),
			Margin:      margin,
			Settled:     settled[order.ID],
		}
		if sales != 0 {
			row.MarginBasisPts = margin * 10000 / sales
		}
		row.MarginDisplay = s.printer.Sprintf("%d", margin)
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].OrderID < rows[j].OrderID })
	return rows, nil
}

func clamp[T any](rows []T, limit int) []T {
	if limit <= 0 {
		limit = 10
	}
	if len(rows) > limit {
		return rows[:limit]
	}
	return rows
}
