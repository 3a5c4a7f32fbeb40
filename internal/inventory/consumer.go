package inventory

import (
	"context"
	"fmt"

	"github.com/orderstack/platform/internal/contracts/event"
	"github.com/orderstack/platform/internal/messaging/rabbitmq"
)

// BindKeys are the topics the inventory service queue subscribes to.
var BindKeys = []string{
	event.TopicInventoryReserveRequested,
	event.TopicInventoryReleased,
}

func RegisterHandlers(c *rabbitmq.Consumer, svc *Service) {
	c.Handle(event.TopicInventoryReserveRequested, func(ctx context.Context, evt event.Event) error {
		req, ok := evt.(*event.InventoryReserveRequested)
		if !ok {
			return fmt.Errorf("unexpected event type %T for %s", evt, event.TopicInventoryReserveRequested)
		}
		return svc.HandleReserveRequested(ctx, req)
	})

	c.Handle(event.TopicInventoryReleased, func(ctx context.Context, evt event.Event) error {
		released, ok := evt.(*event.InventoryReleased)
		if !ok {
			return fmt.Errorf("unexpected event type %T for %s", evt, event.TopicInventoryReleased)
		}
		return svc.HandleRelease(ctx, released)
	})
}
