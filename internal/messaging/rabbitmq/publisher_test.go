package rabbitmq

import (
	"context"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

func newAwaitPublisher(wait time.Duration) (*Publisher, chan amqp.Confirmation, chan amqp.Return) {
	confirms := make(chan amqp.Confirmation, 1)
	returns := make(chan amqp.Return, 1)
	p := &Publisher{confirmWait: wait}
	p.confirmCh = confirms
	p.returnCh = returns
	return p, confirms, returns
}

func TestAwaitOutcome_AckSucceeds(t *testing.T) {
	p, confirms, _ := newAwaitPublisher(time.Second)
	confirms <- amqp.Confirmation{DeliveryTag: 1, Ack: true}
	require.NoError(t, p.awaitOutcome(context.Background()))
}

func TestAwaitOutcome_NackFails(t *testing.T) {
	p, confirms, _ := newAwaitPublisher(time.Second)
	confirms <- amqp.Confirmation{DeliveryTag: 1, Ack: false}
	require.Error(t, p.awaitOutcome(context.Background()))
}

func TestAwaitOutcome_ReturnFails(t *testing.T) {
	p, _, returns := newAwaitPublisher(time.Second)
	returns <- amqp.Return{RoutingKey: "orders.created", ReplyText: "NO_ROUTE"}
	err := p.awaitOutcome(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "NO_ROUTE")
}

func TestAwaitOutcome_WindowExpiryFails(t *testing.T) {
	p, _, _ := newAwaitPublisher(5 * time.Millisecond)
	err := p.awaitOutcome(context.Background())
	require.Error(t, err, "an unacknowledged publish must fail so the caller retries")
}

func TestAwaitOutcome_ContextCancelFails(t *testing.T) {
	p, _, _ := newAwaitPublisher(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, p.awaitOutcome(ctx), context.Canceled)
}
