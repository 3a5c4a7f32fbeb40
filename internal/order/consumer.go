package order

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/orderstack/platform/internal/contracts/event"
	"github.com/orderstack/platform/internal/messaging/rabbitmq"
	"github.com/orderstack/platform/internal/saga"
)

// SagaBindKeys are the topics the order service queue subscribes to: the saga
// trigger, every participant reply, and its own lifecycle events for the
// write model.
var SagaBindKeys = []string{
	event.TopicOrdersCreated,
	event.TopicInventoryReserved,
	event.TopicInventoryReservationFailed,
	event.TopicPaymentsCompleted,
	event.TopicPaymentsFailed,
	event.TopicOrdersConfirmed,
	event.TopicOrdersCancelled,
}

// RegisterSagaHandlers binds the orchestrator and the write model to the
// consumer. Each handler asserts the decoded type; a mismatch is a wiring
// bug, not a message problem.
func RegisterSagaHandlers(c *rabbitmq.Consumer, orch *saga.Orchestrator, cmds *CommandService, log zerolog.Logger) {
	validate := validator.New()
	lg := log.With().Str("component", "order_saga_consumer").Logger()

	c.Handle(event.TopicOrdersCreated, func(ctx context.Context, evt event.Event) error {
		created, ok := evt.(*event.OrderCreated)
		if !ok {
			return fmt.Errorf("unexpected event type %T for %s", evt, event.TopicOrdersCreated)
		}
		if err := validate.Struct(created); err != nil {
			return fmt.Errorf("invalid orders.created payload: %w", err)
		}
		return orch.StartSaga(ctx, created)
	})

	c.Handle(event.TopicInventoryReserved, func(ctx context.Context, evt event.Event) error {
		reserved, ok := evt.(*event.InventoryReserved)
		if !ok {
			return fmt.Errorf("unexpected event type %T for %s", evt, event.TopicInventoryReserved)
		}
		return orch.OnInventoryReserved(ctx, reserved)
	})

	c.Handle(event.TopicInventoryReservationFailed, func(ctx context.Context, evt event.Event) error {
		failed, ok := evt.(*event.InventoryReservationFailed)
		if !ok {
			return fmt.Errorf("unexpected event type %T for %s", evt, event.TopicInventoryReservationFailed)
		}
		return orch.OnInventoryReservationFailed(ctx, failed)
	})

	c.Handle(event.TopicPaymentsCompleted, func(ctx context.Context, evt event.Event) error {
		completed, ok := evt.(*event.PaymentCompleted)
		if !ok {
			return fmt.Errorf("unexpected event type %T for %s", evt, event.TopicPaymentsCompleted)
		}
		return orch.OnPaymentCompleted(ctx, completed)
	})

	c.Handle(event.TopicPaymentsFailed, func(ctx context.Context, evt event.Event) error {
		failed, ok := evt.(*event.PaymentFailed)
		if !ok {
			return fmt.Errorf("unexpected event type %T for %s", evt, event.TopicPaymentsFailed)
		}
		return orch.OnPaymentFailed(ctx, failed)
	})

	c.Handle(event.TopicOrdersConfirmed, func(ctx context.Context, evt event.Event) error {
		confirmed, ok := evt.(*event.OrderConfirmed)
		if !ok {
			return fmt.Errorf("unexpected event type %T for %s", evt, event.TopicOrdersConfirmed)
		}
		if err := cmds.ApplyConfirmed(ctx, confirmed); err != nil {
			return err
		}
		return orch.OnOrderConfirmed(ctx, confirmed)
	})

	c.Handle(event.TopicOrdersCancelled, func(ctx context.Context, evt event.Event) error {
		cancelled, ok := evt.(*event.OrderCancelled)
		if !ok {
			return fmt.Errorf("unexpected event type %T for %s", evt, event.TopicOrdersCancelled)
		}
		return cmds.ApplyCancelled(ctx, cancelled)
	})

	lg.Info().Strs("topics", SagaBindKeys).Msg("saga handlers registered")
}
