package rabbitmq

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/orderstack/platform/internal/contracts/event"
	"github.com/orderstack/platform/internal/idempotency"
	"github.com/orderstack/platform/internal/metrics"
)

// HandlerFunc processes one decoded event. Returning an error triggers the
// in-process retry schedule; exhausting it parks the message on the DLQ.
type HandlerFunc func(ctx context.Context, evt event.Event) error

type Config struct {
	RabbitURL string
	Exchange  string
	Queue     string
	BindKeys  []string
	Prefetch  int
	Tag       string

	// Handler retry schedule: initial delay doubles per attempt up to the cap.
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Consumer binds one durable queue to the topic exchange and dispatches
// deliveries to registered handlers. Every delivery is acked manually after
// the full receive pipeline: unknown-topic drop, missing-id drop, duplicate
// skip, decode-or-DLQ, handle-with-retries-or-DLQ.
type Consumer struct {
	cfg      Config
	guard    idempotency.Guard
	handlers map[string]HandlerFunc

	lg zerolog.Logger

	mu      sync.Mutex
	running bool
	doneCh  chan struct{}

	conn      *amqp.Connection
	chConsume *amqp.Channel
	chPublish *amqp.Channel

	deliveries <-chan amqp.Delivery
	dlq        DeadLetterer
}

func NewConsumer(cfg Config, guard idempotency.Guard, lg zerolog.Logger) *Consumer {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if guard == nil {
		guard = idempotency.Noop{}
	}
	return &Consumer{
		cfg:      cfg,
		guard:    guard,
		handlers: make(map[string]HandlerFunc),
		lg: lg.With().
			Str("component", "rabbitmq_consumer").
			Str("queue", cfg.Queue).
			Logger(),
	}
}

// Handle registers a handler for a topic. Must be called before Start.
func (c *Consumer) Handle(topic string, fn HandlerFunc) {
	c.handlers[topic] = fn
}

func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered for queue %s", c.cfg.Queue)
	}

	c.doneCh = make(chan struct{})
	c.running = true
	go c.run(ctx)
	return nil
}

func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	doneCh := c.doneCh
	c.running = false
	c.mu.Unlock()

	c.closeConn()

	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Consumer) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		doneCh := c.doneCh
		c.doneCh = nil
		c.running = false
		c.mu.Unlock()

		if doneCh != nil {
			close(doneCh)
		}
	}()

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			c.lg.Info().Msg("consumer supervisor exiting (ctx cancelled)")
			return
		default:
		}

		if !c.isRunning() {
			c.lg.Info().Msg("consumer supervisor exiting (stopped)")
			return
		}

		if err := c.connectAndDeclare(); err != nil {
			c.lg.Error().Err(err).Dur("backoff", backoff).Msg("connectAndDeclare failed; retrying")
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = minDur(backoff*2, maxBackoff)
			continue
		}

		backoff = 1 * time.Second
		c.consumeLoop(ctx)

		select {
		case <-ctx.Done():
			return
		default:
		}

		c.lg.Warn().Dur("backoff", backoff).Msg("deliveries closed; reconnecting")
		c.closeConn()

		if !sleepOrDone(ctx, backoff) {
			return
		}
		backoff = minDur(backoff*2, maxBackoff)
	}
}

func (c *Consumer) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Consumer) connectAndDeclare() error {
	c.closeConn()

	conn, err := amqp.Dial(c.cfg.RabbitURL)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}

	chConsume, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("consume channel: %w", err)
	}

	chPublish, err := conn.Channel()
	if err != nil {
		_ = chConsume.Close()
		_ = conn.Close()
		return fmt.Errorf("publish channel: %w", err)
	}

	if err := chConsume.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		c.closeAll(conn, chConsume, chPublish)
		return fmt.Errorf("exchange declare: %w", err)
	}

	if _, err := chConsume.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		c.closeAll(conn, chConsume, chPublish)
		return fmt.Errorf("queue declare: %w", err)
	}

	for _, key := range c.cfg.BindKeys {
		k := strings.TrimSpace(key)
		if k == "" {
			continue
		}
		if err := chConsume.QueueBind(c.cfg.Queue, k, c.cfg.Exchange, false, nil); err != nil {
			c.closeAll(conn, chConsume, chPublish)
			return fmt.Errorf("queue bind (%s): %w", k, err)
		}
	}

	if c.cfg.Prefetch > 0 {
		if err := chConsume.Qos(c.cfg.Prefetch, 0, false); err != nil {
			c.closeAll(conn, chConsume, chPublish)
			return fmt.Errorf("qos: %w", err)
		}
	}

	dlv, err := chConsume.Consume(c.cfg.Queue, c.cfg.Tag, false, false, false, false, nil)
	if err != nil {
		c.closeAll(conn, chConsume, chPublish)
		return fmt.Errorf("consume: %w", err)
	}

	dlq, err := newDLQPublisher(chPublish, c.cfg.Queue)
	if err != nil {
		c.closeAll(conn, chConsume, chPublish)
		return fmt.Errorf("dlq declare: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.chConsume = chConsume
	c.chPublish = chPublish
	c.deliveries = dlv
	c.dlq = dlq
	c.mu.Unlock()

	c.lg.Info().
		Str("exchange", c.cfg.Exchange).
		Strs("bind_keys", c.cfg.BindKeys).
		Int("prefetch", c.cfg.Prefetch).
		Msg("rabbitmq consumer ready")

	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.lg.Info().Msg("consume loop context cancelled")
			return

		case d, ok := <-c.deliveries:
			if !ok {
				c.lg.Warn().Msg("deliveries channel closed")
				return
			}

			start := time.Now()
			err := c.handleDelivery(ctx, d)

			if err == nil {
				_ = d.Ack(false)
				metrics.ObserveProcessing(c.cfg.Queue, d.RoutingKey, time.Since(start))
				continue
			}

			// Infrastructure failure (store down, DLQ publish failed):
			// requeue and let redelivery hit the dedupe guard.
			_ = d.Nack(false, true)
			c.lg.Warn().Err(err).Str("routing_key", d.RoutingKey).Msg("handle failed; requeued")
		}
	}
}

// handleDelivery runs the full receive pipeline for one message. A nil return
// always acks; only infrastructure errors propagate for requeue.
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) error {
	topic := strings.TrimSpace(d.RoutingKey)
	lg := c.lg.With().Str("topic", topic).Logger()

	handler, ok := c.handlers[topic]
	if !ok {
		lg.Warn().Msg("no handler for topic; dropping")
		return nil
	}

	eventID := headerString(d.Headers, event.HeaderEventID)
	if eventID == "" {
		eventID = strings.TrimSpace(d.MessageId)
	}
	if eventID == "" {
		lg.Warn().Msg("missing event id; dropping undeduplicatable message")
		return nil
	}
	lg = lg.With().Str("event_id", eventID).Logger()

	metrics.RecordMessageConsumed(c.cfg.Queue, topic)

	dup, err := c.guard.IsDuplicate(ctx, eventID, topic)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if dup {
		lg.Info().Msg("duplicate delivery ignored")
		metrics.RecordDuplicateSkipped(c.cfg.Queue, topic)
		return nil
	}

	evt, err := event.Decode(topic, d.Body)
	if err != nil {
		lg.Warn().Err(err).Msg("undecodable payload; dead-lettering")
		return c.toDLQ(ctx, d, ReasonBadPayload, err)
	}

	if err := c.handleWithRetries(ctx, lg, handler, evt); err != nil {
		lg.Error().Err(err).Msg("handler exhausted retries; dead-lettering")
		return c.toDLQ(ctx, d, ReasonHandlerFailed, err)
	}
	return nil
}

func (c *Consumer) handleWithRetries(ctx context.Context, lg zerolog.Logger, handler HandlerFunc, evt event.Event) error {
	delay := c.cfg.InitialDelay

	var err error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if err = handler(ctx, evt); err == nil {
			return nil
		}
		if attempt == c.cfg.MaxRetries {
			break
		}
		lg.Warn().Err(err).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("handler failed; retrying in-process")
		if !sleepOrDone(ctx, delay) {
			return ctx.Err()
		}
		delay = minDur(delay*2, c.cfg.MaxDelay)
	}
	return err
}

func (c *Consumer) toDLQ(ctx context.Context, d amqp.Delivery, reason string, cause error) error {
	c.mu.Lock()
	dlq := c.dlq
	c.mu.Unlock()

	if dlq == nil {
		return fmt.Errorf("dlq publisher not ready")
	}
	if err := dlq.PublishDead(ctx, d, reason, cause); err != nil {
		return fmt.Errorf("dlq publish: %w", err)
	}
	metrics.RecordDLQMessage(c.cfg.Queue, reason)
	return nil
}

func headerString(h amqp.Table, key string) string {
	if h == nil {
		return ""
	}
	if v, ok := h[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func (c *Consumer) closeAll(conn *amqp.Connection, a *amqp.Channel, b *amqp.Channel) {
	if b != nil {
		_ = b.Close()
	}
	if a != nil {
		_ = a.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Consumer) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.chPublish != nil {
		_ = c.chPublish.Close()
		c.chPublish = nil
	}
	if c.chConsume != nil {
		_ = c.chConsume.Close()
		c.chConsume = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}

	c.deliveries = nil
	c.dlq = nil
}
