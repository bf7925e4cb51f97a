package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gerai-ops/gerai/internal/orders"
)

type stubOrders struct {
	orders []orders.Order
}

func (s *stubOrders) ListCountable(ctx context.Context, from, to time.Time) ([]orders.Order, error) {
	return s.orders, nil
}

type stubProfit struct {
	settled map[int64]bool
	gotIDs  []int64
}

func (s *stubProfit) SettledOrders(ctx context.Context, orderIDs []int64) (map[int64]bool, error) {
	s.gotIDs = orderIDs
	out := make(map[int64]bool, len(orderIDs))
	for _, id := range orderIDs {
		if s.settled[id] {
			out[id] = true
		}
	}
	return out, nil
}

func sampleOrders() []orders.Order {
	return []orders.Order{
		{
			ID: 1, FinalAmount: 80000, DeliveryFee: 10000, CustomerID: 100, CustomerName: "Budi",
			Province: "Jawa Barat", Status: orders.StatusDelivered, ReceiptReceived: true,
			Items: []orders.OrderItem{{Quantity: 4, UnitCost: 10000}},
		},
		{
			ID: 2, FinalAmount: 56000, DeliveryFee: 5000, CustomerID: 101, CustomerName: "Sari",
			Province: "DKI Jakarta", Status: orders.StatusCompleted, ReceiptReceived: true,
			Items: []orders.OrderItem{{Quantity: 2, UnitCost: 12000}, {Quantity: 1, UnitCost: 5000}},
		},
		{
			ID: 3, FinalAmount: 30000, DeliveryFee: 0, CustomerID: 100, CustomerName: "Budi",
			Province: "Jawa Barat", Status: orders.StatusDelivered, ReceiptReceived: true,
			Items: []orders.OrderItem{{Quantity: 1, UnitCost: 15000}},
		},
	}
}

func TestTopCustomersRanksByRevenue(t *testing.T) {
	svc := NewService(&stubOrders{orders: sampleOrders()}, &stubProfit{})

	ranks, err := svc.TopCustomers(context.Background(), time.Time{}, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, ranks, 2)

	require.Equal(t, int64(100), ranks[0].CustomerID)
	require.Equal(t, int64(110000), ranks[0].Revenue)
	require.Equal(t, int64(2), ranks[0].OrderCount)
	require.Equal(t, int64(56000), ranks[1].Revenue)
	require.NotEmpty(t, ranks[0].RevenueDisplay)
}

func TestTopCustomersRespectsLimit(t *testing.T) {
	svc := NewService(&stubOrders{orders: sampleOrders()}, &stubProfit{})

	ranks, err := svc.TopCustomers(context.Background(), time.Time{}, time.Now(), 1)
	require.NoError(t, err)
	require.Len(t, ranks, 1)
	require.Equal(t, int64(100), ranks[0].CustomerID)
}

func TestTopProvinces(t *testing.T) {
	svc := NewService(&stubOrders{orders: sampleOrders()}, &stubProfit{})

	ranks, err := svc.TopProvinces(context.Background(), time.Time{}, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, ranks, 2)
	require.Equal(t, "Jawa Barat", ranks[0].Province)
	require.Equal(t, int64(110000), ranks[0].Revenue)
}

func TestMarginsComposeSettlementState(t *testing.T) {
	profitStub := &stubProfit{settled: map[int64]bool{1: true}}
	svc := NewService(&stubOrders{orders: sampleOrders()}, profitStub)

	rows, err := svc.Margins(context.Background(), time.Time{}, time.Now())
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// The settlement lookup is keyed by the window's order ids, not a
	// paged scan that could truncate.
	require.ElementsMatch(t, []int64{1, 2, 3}, profitStub.gotIDs)

	// Order 1: sales 70000, cogs 40000, margin 30000.
	require.Equal(t, int64(30000), rows[0].Margin)
	require.Equal(t, int64(4285), rows[0].MarginBasisPts)
	require.True(t, rows[0].Settled)

	// Orders 2 and 3 have no settled record.
	require.False(t, rows[1].Settled)
	require.False(t, rows[2].Settled)
}
