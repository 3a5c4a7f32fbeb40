package outbox

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/orderstack/platform/internal/contracts/event"
)

func TestBackoffSchedule(t *testing.T) {
	base := 5 * time.Second
	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second, 80 * time.Second}
	for i, w := range want {
		require.Equal(t, w, Backoff(base, i+1), "attempt %d", i+1)
	}
	require.Equal(t, base, Backoff(base, 0), "attempt below 1 clamps to base")
}

// Live database tests.
//
// These run only when TEST_DATABASE_URL points at a database with the schema
// from migrations/schema.sql applied.

type fakeBus struct {
	published []string
	failWith  error
}

func (f *fakeBus) PublishRaw(_ context.Context, topic string, meta event.Envelope, _ []byte) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.published = append(f.published, meta.ID)
	return nil
}

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(context.Background(), "TRUNCATE outbox")
	require.NoError(t, err)
	return pool
}

func appendTestEvent(t *testing.T, pool *pgxpool.Pool, orderID string) event.Envelope {
	t.Helper()
	ctx := context.Background()
	evt := event.NewOrderConfirmed(orderID, "customer-1", "corr-1", "")

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, NewAppender().Append(ctx, tx, "order", orderID, evt))
	require.NoError(t, tx.Commit(ctx))
	return evt.Envelope
}

func TestRelay_Tick_PublishesPending(t *testing.T) {
	pool := testPool(t)
	bus := &fakeBus{}
	relay := NewRelay(pool, bus, 50, 5, time.Second, time.Second, zerolog.Nop())

	meta := appendTestEvent(t, pool, "order-1")

	n, err := relay.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []string{meta.ID}, bus.published)

	var status string
	require.NoError(t, pool.QueryRow(context.Background(),
		"SELECT status FROM outbox WHERE event_id = $1", meta.ID).Scan(&status))
	require.Equal(t, StatusPublished, status)

	// Second tick finds nothing.
	n, err = relay.Tick(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRelay_Tick_FailureSchedulesRetryThenExhausts(t *testing.T) {
	pool := testPool(t)
	bus := &fakeBus{failWith: errors.New("broker down")}
	relay := NewRelay(pool, bus, 50, 2, time.Millisecond, time.Second, zerolog.Nop())

	meta := appendTestEvent(t, pool, "order-1")
	ctx := context.Background()

	// First failed attempt schedules a retry.
	n, err := relay.Tick(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	var status, lastError string
	var retries int
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT status, retry_count, last_error FROM outbox WHERE event_id = $1",
		meta.ID).Scan(&status, &retries, &lastError))
	require.Equal(t, StatusPending, status)
	require.Equal(t, 1, retries)
	require.Equal(t, "broker down", lastError)

	// Second failed attempt hits the limit.
	time.Sleep(10 * time.Millisecond)
	_, err = relay.Tick(ctx)
	require.NoError(t, err)

	require.NoError(t, pool.QueryRow(ctx,
		"SELECT status, retry_count FROM outbox WHERE event_id = $1",
		meta.ID).Scan(&status, &retries))
	require.Equal(t, StatusExhausted, status)
	require.Equal(t, 2, retries)

	// Exhausted records are never re-claimed.
	bus.failWith = nil
	n, err = relay.Tick(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, bus.published)
}

func TestAppender_RollbackDiscardsRecord(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	evt := event.NewInventoryReserveRequested("order-1",
		[]event.Item{{ProductID: "sku-1", Quantity: 1, UnitPrice: decimal.NewFromInt(10)}},
		"corr-1", "")

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, NewAppender().Append(ctx, tx, "order", "order-1", evt))
	require.NoError(t, tx.Rollback(ctx))

	var count int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM outbox").Scan(&count))
	require.Zero(t, count, "rolled-back business write must leave no outbox record")
}
