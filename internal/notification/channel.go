package notification

import (
	"context"

	"github.com/rs/zerolog"
)

// Channel delivers a rendered message to a customer.
type Channel interface {
	Send(ctx context.Context, customerID, subject, body string) error
}

// LogChannel writes deliveries to the log instead of an external provider.
// Stands in for SMTP / SMS gateways in development and tests.
type LogChannel struct {
	name string
	log  zerolog.Logger
}

func NewLogChannel(name string, log zerolog.Logger) *LogChannel {
	return &LogChannel{
		name: name,
		log:  log.With().Str("component", "notification_channel").Str("channel", name).Logger(),
	}
}

func (c *LogChannel) Send(_ context.Context, customerID, subject, body string) error {
	c.log.Info().
		Str("customer_id", customerID).
		Str("subject", subject).
		Str("body", body).
		Msg("notification delivered")
	return nil
}
