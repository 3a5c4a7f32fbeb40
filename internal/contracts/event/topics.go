package event

// Canonical event types. Topic name = event type.
// Changing one of these is a breaking change requiring consumer updates.
const (
	TopicOrdersCreated   = "orders.created"
	TopicOrdersConfirmed = "orders.confirmed"
	TopicOrdersCancelled = "orders.cancelled"

	TopicPaymentsInitiated = "payments.initiated"
	TopicPaymentsCompleted = "payments.completed"
	TopicPaymentsFailed    = "payments.failed"
	TopicPaymentsRefunded  = "payments.refunded"

	TopicInventoryReserveRequested  = "inventory.reserve-requested"
	TopicInventoryReserved          = "inventory.reserved"
	TopicInventoryReservationFailed = "inventory.reservation-failed"
	TopicInventoryReleased          = "inventory.released"

	TopicNotificationsSend = "notifications.send"
)

// Message header keys (UTF-8 values).
const (
	HeaderEventID       = "event-id"
	HeaderEventType     = "event-type"
	HeaderEventVersion  = "event-version"
	HeaderCorrelationID = "correlation-id"
	HeaderCausationID   = "causation-id"
)
