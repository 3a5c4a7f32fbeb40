package order

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/orderstack/platform/internal/contracts/event"
	"github.com/orderstack/platform/internal/outbox"
)

type CreateOrderRequest struct {
	CustomerID      string                `json:"customerId" validate:"required"`
	Items           []event.Item          `json:"items" validate:"required,min=1,dive"`
	Currency        string                `json:"currency" validate:"required,len=3"`
	PaymentMethod   string                `json:"paymentMethod" validate:"required"`
	ShippingAddress event.ShippingAddress `json:"shippingAddress"`
}

// CommandService owns order writes. Creating an order commits the row, its
// event-store entry, and the orders.created outbox record in one database
// transaction, so the saga trigger cannot outrun or miss the state change.
type CommandService struct {
	pool     *pgxpool.Pool
	repo     *Repository
	events   *EventStore
	outbox   *outbox.Appender
	validate *validator.Validate
	log      zerolog.Logger
}

func NewCommandService(pool *pgxpool.Pool, repo *Repository, events *EventStore,
	ob *outbox.Appender, log zerolog.Logger) *CommandService {
	return &CommandService{
		pool:     pool,
		repo:     repo,
		events:   events,
		outbox:   ob,
		validate: validator.New(),
		log:      log.With().Str("component", "order_commands").Logger(),
	}
}

func (s *CommandService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid order request: %w", err)
	}

	o := &Order{
		ID:              uuid.NewString(),
		CustomerID:      req.CustomerID,
		Status:          StatusPending,
		Items:           req.Items,
		TotalAmount:     Total(req.Items),
		Currency:        req.Currency,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
	}

	correlationID := uuid.NewString()
	evt := event.NewOrderCreated(o.ID, o.CustomerID, o.Items, o.TotalAmount,
		o.Currency, o.PaymentMethod, o.ShippingAddress, correlationID)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.repo.Insert(ctx, tx, o); err != nil {
		return nil, err
	}
	if err := s.events.Append(ctx, tx, o.ID, evt); err != nil {
		return nil, err
	}
	if err := s.outbox.Append(ctx, tx, "order", o.ID, evt); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("order_id", o.ID).
		Str("correlation_id", correlationID).
		Str("customer_id", o.CustomerID).
		Msg("order created")
	return o, nil
}

// ApplyConfirmed moves the write model to CONFIRMED when the saga reaches the
// confirm step. Safe under redelivery: the status update only touches PENDING
// rows and the event store append is keyed by event id.
func (s *CommandService) ApplyConfirmed(ctx context.Context, evt *event.OrderConfirmed) error {
	return s.apply(ctx, evt.OrderID, StatusConfirmed, "", evt)
}

// ApplyCancelled moves the write model to CANCELLED during compensation.
func (s *CommandService) ApplyCancelled(ctx context.Context, evt *event.OrderCancelled) error {
	return s.apply(ctx, evt.OrderID, StatusCancelled, evt.Reason, evt)
}

func (s *CommandService) apply(ctx context.Context, orderID string, status Status, reason string, evt event.Event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.repo.UpdateStatus(ctx, tx, orderID, status, reason); err != nil {
		return err
	}
	if err := s.events.Append(ctx, tx, orderID, evt); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.log.Info().
		Str("order_id", orderID).
		Str("status", string(status)).
		Msg("order status updated")
	return nil
}

func (s *CommandService) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	return s.repo.GetByID(ctx, orderID)
}

func (s *CommandService) OrderHistory(ctx context.Context, orderID string) ([]StoredEvent, error) {
	return s.events.History(ctx, orderID)
}
