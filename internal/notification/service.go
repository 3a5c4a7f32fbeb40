package notification

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/orderstack/platform/internal/contracts/event"
	"github.com/orderstack/platform/internal/messaging/rabbitmq"
)

// BindKeys are the topics the notification service queue subscribes to.
var BindKeys = []string{event.TopicNotificationsSend}

// Service renders and delivers notifications. Channel selection falls back
// to email when the requested channel is not configured.
type Service struct {
	registry *Registry
	channels map[string]Channel
	log      zerolog.Logger
}

func NewService(registry *Registry, channels map[string]Channel, log zerolog.Logger) *Service {
	return &Service{
		registry: registry,
		channels: channels,
		log:      log.With().Str("component", "notification_service").Logger(),
	}
}

func (s *Service) HandleSend(ctx context.Context, evt *event.NotificationSend) error {
	subject, body, err := s.registry.Render(evt.TemplateID, evt.Variables)
	if err != nil {
		return err
	}

	ch, ok := s.channels[evt.Channel]
	if !ok {
		s.log.Warn().
			Str("channel", evt.Channel).
			Str("customer_id", evt.CustomerID).
			Msg("unknown channel; falling back to email")
		if ch, ok = s.channels["email"]; !ok {
			return fmt.Errorf("no channel configured for %q and no email fallback", evt.Channel)
		}
	}

	if err := ch.Send(ctx, evt.CustomerID, subject, body); err != nil {
		return fmt.Errorf("send %s notification to %s: %w", evt.TemplateID, evt.CustomerID, err)
	}

	s.log.Info().
		Str("customer_id", evt.CustomerID).
		Str("template_id", evt.TemplateID).
		Str("channel", evt.Channel).
		Str("correlation_id", evt.CorrelationID).
		Msg("notification sent")
	return nil
}

func RegisterHandlers(c *rabbitmq.Consumer, svc *Service) {
	c.Handle(event.TopicNotificationsSend, func(ctx context.Context, evt event.Event) error {
		send, ok := evt.(*event.NotificationSend)
		if !ok {
			return fmt.Errorf("unexpected event type %T for %s", evt, event.TopicNotificationsSend)
		}
		return svc.HandleSend(ctx, send)
	})
}
