package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/orderstack/platform/internal/contracts/event"
	"github.com/orderstack/platform/internal/metrics"
)

// BusPublisher pushes a pre-serialized event body to the bus. The relay never
// re-parses payloads; the envelope metadata rides in message headers.
type BusPublisher interface {
	PublishRaw(ctx context.Context, topic string, meta event.Envelope, body []byte) error
}

const claimSQL = `
	SELECT id, topic, event_id, event_type, correlation_id, causation_id, payload, retry_count
	FROM outbox
	WHERE status = 'pending' AND next_attempt_at <= now()
	ORDER BY id
	LIMIT $1
	FOR UPDATE SKIP LOCKED`

const markPublishedSQL = `
	UPDATE outbox SET status = 'published', published_at = now() WHERE id = $1`

const markRetrySQL = `
	UPDATE outbox
	SET retry_count = $2, next_attempt_at = now() + make_interval(secs => $3), last_error = $4
	WHERE id = $1`

const markExhaustedSQL = `
	UPDATE outbox SET status = 'exhausted', retry_count = $2, last_error = $3 WHERE id = $1`

// Relay polls the outbox and publishes pending records. Claim, publish, and
// status updates for a batch happen inside one transaction; SKIP LOCKED lets
// multiple relay instances run against the same table without double-claiming.
type Relay struct {
	pool        *pgxpool.Pool
	pub         BusPublisher
	batchSize   int
	maxRetries  int
	backoffBase time.Duration
	interval    time.Duration
	log         zerolog.Logger
}

func NewRelay(pool *pgxpool.Pool, pub BusPublisher, batchSize, maxRetries int,
	backoffBase, interval time.Duration, log zerolog.Logger) *Relay {
	if batchSize <= 0 {
		batchSize = 50
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if backoffBase <= 0 {
		backoffBase = DefaultBackoffBase
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Relay{
		pool:        pool,
		pub:         pub,
		batchSize:   batchSize,
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		interval:    interval,
		log:         log.With().Str("component", "outbox_relay").Logger(),
	}
}

// Run polls until the context is cancelled. Errors are logged, not fatal; the
// next tick retries.
func (r *Relay) Run(ctx context.Context) {
	r.log.Info().
		Dur("interval", r.interval).
		Int("batch_size", r.batchSize).
		Msg("outbox relay started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("outbox relay stopped")
			return
		case <-ticker.C:
			if n, err := r.Tick(ctx); err != nil {
				r.log.Error().Err(err).Msg("outbox relay tick failed")
			} else if n > 0 {
				r.log.Debug().Int("relayed", n).Msg("outbox batch relayed")
			}
		}
	}
}

// Tick processes one batch and returns the number of records published.
func (r *Relay) Tick(ctx context.Context) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := r.claim(ctx, tx)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	published := 0
	for i := range records {
		rec := &records[i]
		if err := r.publishOne(ctx, tx, rec); err != nil {
			return published, err
		}
		if rec.Status == StatusPublished {
			published++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return published, nil
}

func (r *Relay) claim(ctx context.Context, tx pgx.Tx) ([]Record, error) {
	rows, err := tx.Query(ctx, claimSQL, r.batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Topic, &rec.EventID, &rec.EventType,
			&rec.CorrelationID, &rec.CausationID, &rec.Payload, &rec.RetryCount); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// publishOne attempts a single record. A publish failure does not abort the
// batch: the record's retry bookkeeping is updated in the same transaction
// and the loop moves on.
func (r *Relay) publishOne(ctx context.Context, tx pgx.Tx, rec *Record) error {
	meta := event.Envelope{
		ID:            rec.EventID,
		Type:          rec.EventType,
		CorrelationID: rec.CorrelationID,
		CausationID:   rec.CausationID,
	}

	pubErr := r.pub.PublishRaw(ctx, rec.Topic, meta, rec.Payload)
	if pubErr == nil {
		if _, err := tx.Exec(ctx, markPublishedSQL, rec.ID); err != nil {
			return err
		}
		rec.Status = StatusPublished
		metrics.RecordOutboxRelayed()
		return nil
	}

	metrics.RecordOutboxRelayError()
	attempt := rec.RetryCount + 1
	rec.RetryCount = attempt

	if attempt >= r.maxRetries {
		r.log.Error().Err(pubErr).
			Int64("outbox_id", rec.ID).
			Str("event_id", rec.EventID).
			Str("topic", rec.Topic).
			Msg("outbox record exhausted retries; giving up")
		if _, err := tx.Exec(ctx, markExhaustedSQL, rec.ID, attempt, pubErr.Error()); err != nil {
			return err
		}
		rec.Status = StatusExhausted
		metrics.RecordOutboxExhausted()
		return nil
	}

	delay := Backoff(r.backoffBase, attempt)
	r.log.Warn().Err(pubErr).
		Int64("outbox_id", rec.ID).
		Str("topic", rec.Topic).
		Int("attempt", attempt).
		Dur("next_attempt_in", delay).
		Msg("outbox publish failed; scheduling retry")
	if _, err := tx.Exec(ctx, markRetrySQL, rec.ID, attempt, delay.Seconds(), pubErr.Error()); err != nil {
		return err
	}
	return nil
}
