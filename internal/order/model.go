package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/orderstack/platform/internal/contracts/event"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// Order is the write model row. Status only moves PENDING → CONFIRMED or
// PENDING → CANCELLED; the saga outcome decides which.
type Order struct {
	ID              string
	CustomerID      string
	Status          Status
	Items           []event.Item
	TotalAmount     decimal.Decimal
	Currency        string
	PaymentMethod   string
	ShippingAddress event.ShippingAddress
	CancelReason    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Total sums quantity × unit price across all lines.
func Total(items []event.Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}
