package rabbitmq

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DLQ reasons recorded in the x-death-reason header.
const (
	ReasonBadPayload    = "bad_payload"
	ReasonHandlerFailed = "handler_failed"
)

// DeadLetterer parks poison and persistently failing messages on the queue's
// dead letter queue for manual inspection and replay.
type DeadLetterer interface {
	PublishDead(ctx context.Context, d amqp.Delivery, reason string, cause error) error
}

type dlqPublisher struct {
	ch    *amqp.Channel
	queue string
}

// newDLQPublisher declares <queue>.dlq and returns a publisher that routes to
// it via the default exchange.
func newDLQPublisher(ch *amqp.Channel, queue string) (*dlqPublisher, error) {
	name := queue + ".dlq"
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return nil, err
	}
	return &dlqPublisher{ch: ch, queue: name}, nil
}

func (p *dlqPublisher) PublishDead(ctx context.Context, d amqp.Delivery, reason string, cause error) error {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers["x-death-reason"] = reason
	headers["x-original-topic"] = d.RoutingKey
	if cause != nil {
		headers["x-error"] = cause.Error()
	}

	return p.ch.PublishWithContext(
		ctx,
		"", // default exchange routes by queue name
		p.queue,
		false,
		false,
		amqp.Publishing{
			MessageId:   d.MessageId,
			ContentType: d.ContentType,
			Timestamp:   time.Now().UTC(),
			Headers:     headers,
			Body:        d.Body,
		},
	)
}
