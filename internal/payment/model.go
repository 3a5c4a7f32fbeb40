package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusRefunded  Status = "REFUNDED"
)

// Payment is the record of one charge attempt. Exactly one row exists per
// order: redeliveries of payments.initiated find it and re-emit the stored
// outcome instead of charging again.
type Payment struct {
	ID            string
	OrderID       string
	CustomerID    string
	Amount        decimal.Decimal
	Currency      string
	Method        string
	Status        Status
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Refund records a compensation against a payment. At most one row exists per
// payment: its presence is what makes a redelivered refund command a no-op.
type Refund struct {
	ID        string
	PaymentID string
	OrderID   string
	Amount    decimal.Decimal
	Currency  string
	CreatedAt time.Time
}
