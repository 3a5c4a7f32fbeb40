package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/orderstack/platform/internal/contracts/event"
)

const (
	DefaultExchange = "platform.events"

	// Wait window for Return / Confirm
	defaultConfirmWait = 5 * time.Second
)

// Publisher sends events to the topic exchange with publisher confirms and
// mandatory routing. Message ids are stable across retries so consumers can
// deduplicate.
type Publisher struct {
	url         string
	exchange    string
	confirmWait time.Duration

	mu sync.Mutex

	conn *amqp.Connection
	ch   *amqp.Channel

	confirmCh <-chan amqp.Confirmation
	returnCh  <-chan amqp.Return
}

func NewPublisher(url, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	p := &Publisher{
		url:         url,
		exchange:    exchange,
		confirmWait: defaultConfirmWait,
	}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}

	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	// enable publisher confirms
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	p.conn = conn
	p.ch = ch

	p.confirmCh = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	p.returnCh = ch.NotifyReturn(make(chan amqp.Return, 1))

	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	return nil
}

// Publish serializes the event and sends it under its topic. The routing key
// is the event type; envelope metadata rides in headers for consumers that
// do not parse the body.
func (p *Publisher) Publish(ctx context.Context, topic string, evt event.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.PublishRaw(ctx, topic, evt.Meta(), body)
}

// PublishRaw sends a pre-serialized body. Used by the outbox relay, which
// stores payloads already serialized.
func (p *Publisher) PublishRaw(ctx context.Context, topic string, meta event.Envelope, body []byte) error {
	if topic == "" {
		return errors.New("missing topic")
	}
	if strings.TrimSpace(meta.ID) == "" {
		return errors.New("missing event id")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		return errors.New("publisher channel not ready")
	}

	err := p.ch.PublishWithContext(
		ctx,
		p.exchange,
		topic,
		true,  // mandatory
		false, // immediate
		amqp.Publishing{
			MessageId:   meta.ID,
			ContentType: "application/json",
			Timestamp:   time.Now().UTC(),
			Headers: amqp.Table{
				event.HeaderEventID:       meta.ID,
				event.HeaderEventType:     meta.Type,
				event.HeaderEventVersion:  int32(meta.Version),
				event.HeaderCorrelationID: meta.CorrelationID,
				event.HeaderCausationID:   meta.CausationID,
			},
			Body: body,
		},
	)
	if err != nil {
		return err
	}

	return p.awaitOutcome(ctx)
}

// awaitOutcome blocks until the broker confirms, returns, or the wait window
// expires. Expiry is a failure: an unacknowledged publish must take the retry
// path, never be recorded as delivered. Consumer dedupe absorbs the duplicate
// if the broker had the message after all.
func (p *Publisher) awaitOutcome(ctx context.Context) error {
	select {
	case ret := <-p.returnCh:
		return errors.New("NO_ROUTE: " + ret.RoutingKey)
	case conf := <-p.confirmCh:
		if !conf.Ack {
			return errors.New("publish nack")
		}
		return nil
	case <-time.After(p.confirmWait):
		return errors.New("publish confirm timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}
