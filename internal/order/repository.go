package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no order exists for the given id.
var ErrNotFound = errors.New("order not found")

// Repository persists orders in Postgres. Mutations take the caller's
// transaction so they can share fate with outbox and event store appends.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, o *Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("serialize order items: %w", err)
	}
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("serialize shipping address: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, customer_id, status, items, total_amount, currency, payment_method, shipping_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.ID, o.CustomerID, o.Status, items, o.TotalAmount, o.Currency, o.PaymentMethod, addr,
	)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.ID, err)
	}
	return nil
}

func (r *Repository) UpdateStatus(ctx context.Context, tx pgx.Tx, orderID string, status Status, reason string) error {
	// Only PENDING rows move; a redelivered update against a terminal order
	// matches nothing and that is fine.
	_, err := tx.Exec(ctx, `
		UPDATE orders SET status = $2, cancel_reason = NULLIF($3, ''), updated_at = now()
		WHERE id = $1 AND status = 'PENDING'`,
		orderID, status, reason,
	)
	if err != nil {
		return fmt.Errorf("update order %s status: %w", orderID, err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, orderID string) (*Order, error) {
	var (
		o              Order
		itemsRaw       []byte
		addrRaw        []byte
		cancelNullable *string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, customer_id, status, items, total_amount, currency, payment_method,
		       shipping_address, cancel_reason, created_at, updated_at
		FROM orders WHERE id = $1`, orderID,
	).Scan(&o.ID, &o.CustomerID, &o.Status, &itemsRaw, &o.TotalAmount, &o.Currency,
		&o.PaymentMethod, &addrRaw, &cancelNullable, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}

	if err := json.Unmarshal(itemsRaw, &o.Items); err != nil {
		return nil, fmt.Errorf("decode order %s items: %w", orderID, err)
	}
	if err := json.Unmarshal(addrRaw, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("decode order %s address: %w", orderID, err)
	}
	if cancelNullable != nil {
		o.CancelReason = *cancelNullable
	}
	return &o, nil
}

func (r *Repository) Pool() *pgxpool.Pool { return r.pool }
