package event

import (
	"time"

	"github.com/google/uuid"
)

const (
	SpecVersion     = "1.0"
	DataContentType = "application/json"
)

// Service source paths, carried in the envelope's "source" field.
// Each constructor names the service that actually emits the event.
const (
	SourceOrderService        = "/services/order-service"
	SourcePaymentService      = "/services/payment-service"
	SourceInventoryService    = "/services/inventory-service"
	SourceNotificationService = "/services/notification-service"
)

// Envelope is the CloudEvents-style header shared by every domain event.
// Concrete events embed it, so the wire form is a single flat JSON object.
type Envelope struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	Source          string    `json:"source"`
	Time            time.Time `json:"time"`
	CorrelationID   string    `json:"correlationId"`
	CausationID     string    `json:"causationId,omitempty"`
	Version         int       `json:"version"`
	SpecVersion     string    `json:"specversion"`
	DataContentType string    `json:"datacontenttype"`
}

// Event is implemented by every concrete event via the embedded Envelope.
type Event interface {
	Meta() Envelope
}

func (e Envelope) Meta() Envelope { return e }

// NewEnvelope mints a fresh envelope. An empty correlationID starts a new
// correlation chain; causationID may be empty at saga entry.
func NewEnvelope(eventType, source, correlationID, causationID string) Envelope {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return Envelope{
		ID:              uuid.NewString(),
		Type:            eventType,
		Source:          source,
		Time:            time.Now().UTC(),
		CorrelationID:   correlationID,
		CausationID:     causationID,
		Version:         1,
		SpecVersion:     SpecVersion,
		DataContentType: DataContentType,
	}
}
