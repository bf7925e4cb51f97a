// Package orders is the read-only sales input to the finance engine. Order
// capture itself lives in the storefront backend; this package only models
// what the aggregator and settlement engine consume.
package orders

import "time"

// Status enumerates order lifecycle values relevant to finance.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusDelivered Status = "DELIVERED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Order is a completed sale. FinalAmount and DeliveryFee are minor units.
type Order struct {
	ID              int64
	FinalAmount     int64
	DeliveryFee     int64
	ReceiptReceived bool
	Status          Status
	CustomerID      int64
	CustomerName    string
	EmployeeID      int64
	Province        string
	DeliveredAt     *time.Time
	CreatedAt       time.Time
	Items           []OrderItem
}

// OrderItem carries the unit cost snapshotted from the product variant at
// sale time; COGS never does a live cost lookup.
type OrderItem struct {
	ID        int64
	OrderID   int64
	VariantID int64
	Quantity  int64
	UnitPrice int64
	UnitCost  int64
}

// Countable reports whether the order counts financially: delivered or
// completed with the receipt confirmed.
func (o Order) Countable() bool {
	if !o.ReceiptReceived {
		return false
	}
	return o.Status == StatusDelivered || o.Status == StatusCompleted
}

// COGS sums unit cost times quantity over the order items.
func (o Order) COGS() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.UnitCost * item.Quantity
	}
	return total
}
