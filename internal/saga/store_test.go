package saga

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*StateStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStateStore(rdb, DefaultStateTTL, zerolog.Nop()), mr
}

func TestStateStore_SaveLoadRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	in := &State{
		CorrelationID:  "corr-1",
		OrderID:        "order-1",
		CustomerID:     "customer-1",
		Status:         StatusProcessingPayment,
		CurrentStep:    StepProcessPayment,
		CompletedSteps: []string{StepReserveInventory},
		PaymentID:      "pay-1",
		StartedAt:      now,
		LastUpdatedAt:  now,
		TimeoutAt:      now.Add(5 * time.Minute),
	}
	require.NoError(t, store.Save(ctx, in))

	out, err := store.Load(ctx, "corr-1")
	require.NoError(t, err)
	require.Equal(t, in.Status, out.Status)
	require.Equal(t, in.CompletedSteps, out.CompletedSteps)
	require.Equal(t, in.PaymentID, out.PaymentID)
	require.True(t, in.TimeoutAt.Equal(out.TimeoutAt))
}

func TestStateStore_LoadAbsentReturnsNil(t *testing.T) {
	store, _ := newTestStore(t)
	state, err := store.Load(context.Background(), "corr-missing")
	require.NoError(t, err)
	require.Nil(t, state)
}

func TestStateStore_CorruptValueTreatedAsAbsent(t *testing.T) {
	store, mr := newTestStore(t)
	require.NoError(t, mr.Set(keyPrefix+"corr-1", "{not json"))

	state, err := store.Load(context.Background(), "corr-1")
	require.NoError(t, err)
	require.Nil(t, state)
}

func TestStateStore_Delete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &State{CorrelationID: "corr-1", Status: StatusStarted}))
	require.NoError(t, store.Delete(ctx, "corr-1"))

	state, err := store.Load(ctx, "corr-1")
	require.NoError(t, err)
	require.Nil(t, state)
}

func TestStateStore_ScheduleDeleteExpiresKey(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &State{CorrelationID: "corr-1", Status: StatusCompleted}))
	require.NoError(t, store.ScheduleDelete(ctx, "corr-1", time.Minute))

	mr.FastForward(2 * time.Minute)

	state, err := store.Load(ctx, "corr-1")
	require.NoError(t, err)
	require.Nil(t, state)
}

func TestState_IsTerminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCompensated, StatusFailed, StatusTimedOut} {
		require.True(t, (&State{Status: s}).IsTerminal(), string(s))
	}
	for _, s := range []Status{StatusStarted, StatusReservingInventory, StatusProcessingPayment, StatusConfirming, StatusCompensating} {
		require.False(t, (&State{Status: s}).IsTerminal(), string(s))
	}
}

func TestState_TimedOut(t *testing.T) {
	now := time.Now().UTC()
	require.False(t, (&State{}).TimedOut(now), "zero deadline never times out")
	require.False(t, (&State{TimeoutAt: now.Add(time.Minute)}).TimedOut(now))
	require.True(t, (&State{TimeoutAt: now.Add(-time.Minute)}).TimedOut(now))
}
