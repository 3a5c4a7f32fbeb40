package payment

import (
	"context"
	"fmt"

	"github.com/orderstack/platform/internal/contracts/event"
	"github.com/orderstack/platform/internal/messaging/rabbitmq"
)

// BindKeys are the topics the payment service queue subscribes to.
var BindKeys = []string{
	event.TopicPaymentsInitiated,
	event.TopicPaymentsRefunded,
}

func RegisterHandlers(c *rabbitmq.Consumer, svc *Service) {
	c.Handle(event.TopicPaymentsInitiated, func(ctx context.Context, evt event.Event) error {
		initiated, ok := evt.(*event.PaymentInitiated)
		if !ok {
			return fmt.Errorf("unexpected event type %T for %s", evt, event.TopicPaymentsInitiated)
		}
		return svc.HandlePaymentInitiated(ctx, initiated)
	})

	c.Handle(event.TopicPaymentsRefunded, func(ctx context.Context, evt event.Event) error {
		refunded, ok := evt.(*event.PaymentRefunded)
		if !ok {
			return fmt.Errorf("unexpected event type %T for %s", evt, event.TopicPaymentsRefunded)
		}
		return svc.HandleRefund(ctx, refunded)
	})
}
