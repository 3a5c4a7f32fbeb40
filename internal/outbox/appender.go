package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/orderstack/platform/internal/contracts/event"
)

const insertSQL = `
	INSERT INTO outbox (
		aggregate_type, aggregate_id, topic,
		event_id, event_type, correlation_id, causation_id,
		payload, status, next_attempt_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', now())`

// Appender writes events to the outbox table inside the caller's transaction.
// The caller owns commit and rollback; the append shares the fate of the
// business write it accompanies.
type Appender struct{}

func NewAppender() *Appender { return &Appender{} }

func (a *Appender) Append(ctx context.Context, tx pgx.Tx, aggregateType, aggregateID string, evt event.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("serialize outbox event %s: %w", evt.Meta().ID, err)
	}
	meta := evt.Meta()
	if _, err := tx.Exec(ctx, insertSQL,
		aggregateType, aggregateID, meta.Type,
		meta.ID, meta.Type, meta.CorrelationID, meta.CausationID,
		payload,
	); err != nil {
		return fmt.Errorf("append outbox record %s: %w", meta.ID, err)
	}
	return nil
}
