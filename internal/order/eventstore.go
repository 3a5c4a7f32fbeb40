package order

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/orderstack/platform/internal/contracts/event"
)

// StoredEvent is one row of the per-order event history.
type StoredEvent struct {
	Sequence   int64
	OrderID    string
	EventID    string
	EventType  string
	Payload    json.RawMessage
	OccurredAt time.Time
}

// EventStore keeps the append-only history of everything that happened to an
// order. It is an audit trail, not the bus: the outbox feeds the bus, this
// feeds debugging and replay.
type EventStore struct {
	pool *pgxpool.Pool
}

func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

func (s *EventStore) Append(ctx context.Context, tx pgx.Tx, orderID string, evt event.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("serialize order event: %w", err)
	}
	meta := evt.Meta()
	if _, err := tx.Exec(ctx, `
		INSERT INTO order_events (order_id, event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING`,
		orderID, meta.ID, meta.Type, payload,
	); err != nil {
		return fmt.Errorf("append order event %s: %w", meta.ID, err)
	}
	return nil
}

// History returns the order's events oldest first.
func (s *EventStore) History(ctx context.Context, orderID string) ([]StoredEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT seq, order_id, event_id, event_type, payload, occurred_at
		FROM order_events WHERE order_id = $1 ORDER BY seq`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s history: %w", orderID, err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var e StoredEvent
		if err := rows.Scan(&e.Sequence, &e.OrderID, &e.EventID, &e.EventType, &e.Payload, &e.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
