package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository on pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) GetStock(ctx context.Context, productID string) (*Stock, error) {
	var s Stock
	err := r.pool.QueryRow(ctx, `
		SELECT product_id, available, reserved, version
		FROM inventory WHERE product_id = $1`, productID,
	).Scan(&s.ProductID, &s.Available, &s.Reserved, &s.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load stock %s: %w", productID, err)
	}
	return &s, nil
}

// UpdateStock writes the new quantities guarded by the version read earlier.
// Zero rows affected means someone else won the race.
func (r *PostgresRepository) UpdateStock(ctx context.Context, s *Stock) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE inventory
		SET available = $2, reserved = $3, version = version + 1, updated_at = now()
		WHERE product_id = $1 AND version = $4`,
		s.ProductID, s.Available, s.Reserved, s.Version,
	)
	if err != nil {
		return false, fmt.Errorf("update stock %s: %w", s.ProductID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) GetReservation(ctx context.Context, orderID string) (*Reservation, error) {
	var (
		res      Reservation
		itemsRaw []byte
		idsRaw   []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT order_id, items, status, coalesce(reason, ''), insufficient_ids, created_at, updated_at
		FROM inventory_reservations WHERE order_id = $1`, orderID,
	).Scan(&res.OrderID, &itemsRaw, &res.Status, &res.Reason, &idsRaw, &res.CreatedAt, &res.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load reservation %s: %w", orderID, err)
	}

	if err := json.Unmarshal(itemsRaw, &res.Items); err != nil {
		return nil, fmt.Errorf("decode reservation %s items: %w", orderID, err)
	}
	if idsRaw != nil {
		if err := json.Unmarshal(idsRaw, &res.InsufficientIDs); err != nil {
			return nil, fmt.Errorf("decode reservation %s insufficient ids: %w", orderID, err)
		}
	}
	return &res, nil
}

func (r *PostgresRepository) SaveReservation(ctx context.Context, res *Reservation) error {
	items, err := json.Marshal(res.Items)
	if err != nil {
		return fmt.Errorf("serialize reservation items: %w", err)
	}
	var ids []byte
	if res.InsufficientIDs != nil {
		if ids, err = json.Marshal(res.InsufficientIDs); err != nil {
			return fmt.Errorf("serialize insufficient ids: %w", err)
		}
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO inventory_reservations (order_id, items, status, reason, insufficient_ids)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		ON CONFLICT (order_id) DO NOTHING`,
		res.OrderID, items, res.Status, res.Reason, ids,
	)
	if err != nil {
		return fmt.Errorf("save reservation %s: %w", res.OrderID, err)
	}
	return nil
}

func (r *PostgresRepository) MarkReservationReleased(ctx context.Context, orderID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE inventory_reservations SET status = 'RELEASED', updated_at = now()
		WHERE order_id = $1 AND status = 'RESERVED'`, orderID)
	if err != nil {
		return false, fmt.Errorf("mark reservation %s released: %w", orderID, err)
	}
	return tag.RowsAffected() > 0, nil
}
