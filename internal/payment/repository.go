package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Repository stores payments in Postgres via database/sql.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetByOrderID returns the payment for an order, or nil when none exists.
func (r *Repository) GetByOrderID(ctx context.Context, orderID string) (*Payment, error) {
	var p Payment
	var reason sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, customer_id, amount, currency, method, status, failure_reason, created_at, updated_at
		FROM payments WHERE order_id = $1`, orderID,
	).Scan(&p.ID, &p.OrderID, &p.CustomerID, &p.Amount, &p.Currency, &p.Method,
		&p.Status, &reason, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load payment for order %s: %w", orderID, err)
	}
	p.FailureReason = reason.String
	return &p, nil
}

func (r *Repository) GetByID(ctx context.Context, paymentID string) (*Payment, error) {
	var p Payment
	var reason sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, customer_id, amount, currency, method, status, failure_reason, created_at, updated_at
		FROM payments WHERE id = $1`, paymentID,
	).Scan(&p.ID, &p.OrderID, &p.CustomerID, &p.Amount, &p.Currency, &p.Method,
		&p.Status, &reason, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load payment %s: %w", paymentID, err)
	}
	p.FailureReason = reason.String
	return &p, nil
}

// Insert records a charge attempt. The unique index on order_id makes a
// concurrent double-insert fail loudly instead of double-charging.
func (r *Repository) Insert(ctx context.Context, p *Payment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, customer_id, amount, currency, method, status, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))`,
		p.ID, p.OrderID, p.CustomerID, p.Amount, p.Currency, p.Method, p.Status, p.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("insert payment for order %s: %w", p.OrderID, err)
	}
	return nil
}

// GetRefundByPaymentID returns the refund for a payment, or nil when none
// exists.
func (r *Repository) GetRefundByPaymentID(ctx context.Context, paymentID string) (*Refund, error) {
	var ref Refund
	err := r.db.QueryRowContext(ctx, `
		SELECT id, payment_id, order_id, amount, currency, created_at
		FROM refunds WHERE payment_id = $1`, paymentID,
	).Scan(&ref.ID, &ref.PaymentID, &ref.OrderID, &ref.Amount, &ref.Currency, &ref.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load refund for payment %s: %w", paymentID, err)
	}
	return &ref, nil
}

// RecordRefund writes the refund row and flips the payment to REFUNDED in one
// transaction. The unique index on refunds.payment_id makes a concurrent
// double-refund fail loudly.
func (r *Repository) RecordRefund(ctx context.Context, ref *Refund) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin refund tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO refunds (id, payment_id, order_id, amount, currency)
		VALUES ($1, $2, $3, $4, $5)`,
		ref.ID, ref.PaymentID, ref.OrderID, ref.Amount, ref.Currency,
	); err != nil {
		return fmt.Errorf("insert refund for payment %s: %w", ref.PaymentID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE payments SET status = 'REFUNDED', updated_at = now()
		WHERE id = $1 AND status = 'COMPLETED'`, ref.PaymentID,
	); err != nil {
		return fmt.Errorf("mark payment %s refunded: %w", ref.PaymentID, err)
	}

	return tx.Commit()
}
