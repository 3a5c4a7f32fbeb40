package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/orderstack/platform/internal/contracts/event"
	"github.com/orderstack/platform/internal/idempotency"
)

type fakeGuard struct {
	seen map[string]bool
	err  error
}

func newFakeGuard() *fakeGuard { return &fakeGuard{seen: map[string]bool{}} }

func (g *fakeGuard) IsDuplicate(_ context.Context, eventID, topic string) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	k := topic + ":" + eventID
	if g.seen[k] {
		return true, nil
	}
	g.seen[k] = true
	return false, nil
}

func (g *fakeGuard) IsDuplicateTTL(ctx context.Context, eventID, topic string, _ time.Duration) (bool, error) {
	return g.IsDuplicate(ctx, eventID, topic)
}

func (g *fakeGuard) MarkProcessed(_ context.Context, eventID, topic string) error {
	g.seen[topic+":"+eventID] = true
	return nil
}

func (g *fakeGuard) Remove(_ context.Context, eventID, topic string) error {
	delete(g.seen, topic+":"+eventID)
	return nil
}

type fakeDLQ struct {
	reasons []string
	err     error
}

func (f *fakeDLQ) PublishDead(_ context.Context, _ amqp.Delivery, reason string, _ error) error {
	if f.err != nil {
		return f.err
	}
	f.reasons = append(f.reasons, reason)
	return nil
}

func newTestConsumer(t *testing.T, guard idempotency.Guard) (*Consumer, *fakeDLQ) {
	t.Helper()
	c := NewConsumer(Config{
		Queue:        "orders.saga",
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
	}, guard, zerolog.Nop())
	dlq := &fakeDLQ{}
	c.dlq = dlq
	return c, dlq
}

func delivery(t *testing.T, topic string, evt event.Event) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(evt)
	require.NoError(t, err)
	meta := evt.Meta()
	return amqp.Delivery{
		RoutingKey: topic,
		MessageId:  meta.ID,
		Body:       body,
		Headers: amqp.Table{
			event.HeaderEventID:       meta.ID,
			event.HeaderEventType:     meta.Type,
			event.HeaderCorrelationID: meta.CorrelationID,
		},
	}
}

func TestHandleDelivery_DispatchesToHandler(t *testing.T) {
	c, dlq := newTestConsumer(t, newFakeGuard())

	var got *event.OrderConfirmed
	c.Handle(event.TopicOrdersConfirmed, func(_ context.Context, evt event.Event) error {
		got = evt.(*event.OrderConfirmed)
		return nil
	})

	evt := event.NewOrderConfirmed("order-1", "customer-1", "corr-1", "")
	err := c.handleDelivery(context.Background(), delivery(t, event.TopicOrdersConfirmed, evt))
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "order-1", got.OrderID)
	require.Empty(t, dlq.reasons)
}

func TestHandleDelivery_UnknownTopicDropped(t *testing.T) {
	c, dlq := newTestConsumer(t, newFakeGuard())
	c.Handle(event.TopicOrdersConfirmed, func(context.Context, event.Event) error {
		t.Fatal("handler must not run for unbound topic")
		return nil
	})

	evt := event.NewOrderCancelled("order-1", "customer-1", "oops", "corr-1", "")
	err := c.handleDelivery(context.Background(), delivery(t, event.TopicOrdersCancelled, evt))
	require.NoError(t, err)
	require.Empty(t, dlq.reasons)
}

func TestHandleDelivery_MissingEventIDDropped(t *testing.T) {
	c, dlq := newTestConsumer(t, newFakeGuard())
	called := false
	c.Handle(event.TopicOrdersConfirmed, func(context.Context, event.Event) error {
		called = true
		return nil
	})

	evt := event.NewOrderConfirmed("order-1", "customer-1", "corr-1", "")
	d := delivery(t, event.TopicOrdersConfirmed, evt)
	d.MessageId = ""
	delete(d.Headers, event.HeaderEventID)

	err := c.handleDelivery(context.Background(), d)
	require.NoError(t, err)
	require.False(t, called, "message without id cannot be deduplicated and must be dropped")
	require.Empty(t, dlq.reasons)
}

func TestHandleDelivery_DuplicateSkipped(t *testing.T) {
	c, dlq := newTestConsumer(t, newFakeGuard())
	calls := 0
	c.Handle(event.TopicOrdersConfirmed, func(context.Context, event.Event) error {
		calls++
		return nil
	})

	evt := event.NewOrderConfirmed("order-1", "customer-1", "corr-1", "")
	d := delivery(t, event.TopicOrdersConfirmed, evt)

	require.NoError(t, c.handleDelivery(context.Background(), d))
	require.NoError(t, c.handleDelivery(context.Background(), d))
	require.Equal(t, 1, calls, "second delivery of the same event id must be skipped")
	require.Empty(t, dlq.reasons)
}

func TestHandleDelivery_GuardFailureRequeues(t *testing.T) {
	g := newFakeGuard()
	g.err = errors.New("redis down")
	c, _ := newTestConsumer(t, g)
	c.Handle(event.TopicOrdersConfirmed, func(context.Context, event.Event) error { return nil })

	evt := event.NewOrderConfirmed("order-1", "customer-1", "corr-1", "")
	err := c.handleDelivery(context.Background(), delivery(t, event.TopicOrdersConfirmed, evt))
	require.Error(t, err, "dedupe store outage must requeue, not drop")
}

func TestHandleDelivery_BadPayloadDeadLettered(t *testing.T) {
	c, dlq := newTestConsumer(t, newFakeGuard())
	c.Handle(event.TopicOrdersConfirmed, func(context.Context, event.Event) error {
		t.Fatal("handler must not see undecodable payloads")
		return nil
	})

	d := amqp.Delivery{
		RoutingKey: event.TopicOrdersConfirmed,
		MessageId:  "evt-1",
		Body:       []byte("{not json"),
	}
	err := c.handleDelivery(context.Background(), d)
	require.NoError(t, err)
	require.Equal(t, []string{ReasonBadPayload}, dlq.reasons)
}

func TestHandleDelivery_HandlerRetriesThenDLQ(t *testing.T) {
	c, dlq := newTestConsumer(t, newFakeGuard())
	calls := 0
	c.Handle(event.TopicOrdersConfirmed, func(context.Context, event.Event) error {
		calls++
		return errors.New("downstream unavailable")
	})

	evt := event.NewOrderConfirmed("order-1", "customer-1", "corr-1", "")
	err := c.handleDelivery(context.Background(), delivery(t, event.TopicOrdersConfirmed, evt))
	require.NoError(t, err, "exhausted handler goes to DLQ and the delivery is acked")
	require.Equal(t, 3, calls)
	require.Equal(t, []string{ReasonHandlerFailed}, dlq.reasons)
}

func TestHandleDelivery_HandlerRecoversMidRetry(t *testing.T) {
	c, dlq := newTestConsumer(t, newFakeGuard())
	calls := 0
	c.Handle(event.TopicOrdersConfirmed, func(context.Context, event.Event) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})

	evt := event.NewOrderConfirmed("order-1", "customer-1", "corr-1", "")
	err := c.handleDelivery(context.Background(), delivery(t, event.TopicOrdersConfirmed, evt))
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Empty(t, dlq.reasons)
}

func TestHandleDelivery_DLQPublishFailureRequeues(t *testing.T) {
	c, dlq := newTestConsumer(t, newFakeGuard())
	dlq.err = errors.New("channel closed")
	c.Handle(event.TopicOrdersConfirmed, func(context.Context, event.Event) error {
		return errors.New("permanent failure")
	})

	evt := event.NewOrderConfirmed("order-1", "customer-1", "corr-1", "")
	err := c.handleDelivery(context.Background(), delivery(t, event.TopicOrdersConfirmed, evt))
	require.Error(t, err, "a message that cannot be dead-lettered must be requeued")
}
