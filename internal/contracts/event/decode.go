package event

import (
	"encoding/json"
	"fmt"
)

// Decode unmarshals a wire payload into the concrete event for its topic.
// Unknown topics and malformed payloads are the caller's poison-message path.
func Decode(topic string, body []byte) (Event, error) {
	var evt Event
	switch topic {
	case TopicOrdersCreated:
		evt = &OrderCreated{}
	case TopicOrdersConfirmed:
		evt = &OrderConfirmed{}
	case TopicOrdersCancelled:
		evt = &OrderCancelled{}
	case TopicPaymentsInitiated:
		evt = &PaymentInitiated{}
	case TopicPaymentsCompleted:
		evt = &PaymentCompleted{}
	case TopicPaymentsFailed:
		evt = &PaymentFailed{}
	case TopicPaymentsRefunded:
		evt = &PaymentRefunded{}
	case TopicInventoryReserveRequested:
		evt = &InventoryReserveRequested{}
	case TopicInventoryReserved:
		evt = &InventoryReserved{}
	case TopicInventoryReservationFailed:
		evt = &InventoryReservationFailed{}
	case TopicInventoryReleased:
		evt = &InventoryReleased{}
	case TopicNotificationsSend:
		evt = &NotificationSend{}
	default:
		return nil, fmt.Errorf("unknown event topic %q", topic)
	}

	if err := json.Unmarshal(body, evt); err != nil {
		return nil, fmt.Errorf("decode %s: %w", topic, err)
	}
	return evt, nil
}
