package event

import "github.com/shopspring/decimal"

// Item is a single order line.
type Item struct {
	ProductID string          `json:"productId" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type ShippingAddress struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	Country    string `json:"country"`
	PostalCode string `json:"postalCode"`
}

type OrderCreated struct {
	Envelope
	OrderID         string          `json:"orderId" validate:"required"`
	CustomerID      string          `json:"customerId" validate:"required"`
	Items           []Item          `json:"items" validate:"required,min=1,dive"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	Currency        string          `json:"currency" validate:"required,len=3"`
	PaymentMethod   string          `json:"paymentMethod" validate:"required"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
}

func NewOrderCreated(orderID, customerID string, items []Item, totalAmount decimal.Decimal,
	currency, paymentMethod string, addr ShippingAddress, correlationID string) *OrderCreated {
	return &OrderCreated{
		Envelope:        NewEnvelope(TopicOrdersCreated, SourceOrderService, correlationID, ""),
		OrderID:         orderID,
		CustomerID:      customerID,
		Items:           items,
		TotalAmount:     totalAmount,
		Currency:        currency,
		PaymentMethod:   paymentMethod,
		ShippingAddress: addr,
	}
}

type OrderConfirmed struct {
	Envelope
	OrderID    string `json:"orderId"`
	CustomerID string `json:"customerId"`
}

func NewOrderConfirmed(orderID, customerID, correlationID, causationID string) *OrderConfirmed {
	return &OrderConfirmed{
		Envelope:   NewEnvelope(TopicOrdersConfirmed, SourceOrderService, correlationID, causationID),
		OrderID:    orderID,
		CustomerID: customerID,
	}
}

type OrderCancelled struct {
	Envelope
	OrderID    string `json:"orderId"`
	CustomerID string `json:"customerId"`
	Reason     string `json:"reason"`
}

func NewOrderCancelled(orderID, customerID, reason, correlationID, causationID string) *OrderCancelled {
	return &OrderCancelled{
		Envelope:   NewEnvelope(TopicOrdersCancelled, SourceOrderService, correlationID, causationID),
		OrderID:    orderID,
		CustomerID: customerID,
		Reason:     reason,
	}
}

type PaymentInitiated struct {
	Envelope
	OrderID       string          `json:"orderId"`
	CustomerID    string          `json:"customerId"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"paymentMethod"`
}

func NewPaymentInitiated(orderID, customerID string, amount decimal.Decimal,
	currency, paymentMethod, correlationID, causationID string) *PaymentInitiated {
	return &PaymentInitiated{
		Envelope:      NewEnvelope(TopicPaymentsInitiated, SourceOrderService, correlationID, causationID),
		OrderID:       orderID,
		CustomerID:    customerID,
		Amount:        amount,
		Currency:      currency,
		PaymentMethod: paymentMethod,
	}
}

type PaymentCompleted struct {
	Envelope
	OrderID   string          `json:"orderId"`
	PaymentID string          `json:"paymentId"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

func NewPaymentCompleted(orderID, paymentID string, amount decimal.Decimal,
	currency, correlationID, causationID string) *PaymentCompleted {
	return &PaymentCompleted{
		Envelope:  NewEnvelope(TopicPaymentsCompleted, SourcePaymentService, correlationID, causationID),
		OrderID:   orderID,
		PaymentID: paymentID,
		Amount:    amount,
		Currency:  currency,
	}
}

type PaymentFailed struct {
	Envelope
	OrderID string `json:"orderId"`
	Reason  string `json:"reason"`
}

func NewPaymentFailed(orderID, reason, correlationID, causationID string) *PaymentFailed {
	return &PaymentFailed{
		Envelope: NewEnvelope(TopicPaymentsFailed, SourcePaymentService, correlationID, causationID),
		OrderID:  orderID,
		Reason:   reason,
	}
}

type PaymentRefunded struct {
	Envelope
	OrderID   string          `json:"orderId"`
	PaymentID string          `json:"paymentId"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

func NewPaymentRefunded(orderID, paymentID string, amount decimal.Decimal,
	currency, correlationID, causationID string) *PaymentRefunded {
	return &PaymentRefunded{
		Envelope:  NewEnvelope(TopicPaymentsRefunded, SourceOrderService, correlationID, causationID),
		OrderID:   orderID,
		PaymentID: paymentID,
		Amount:    amount,
		Currency:  currency,
	}
}

type InventoryReserveRequested struct {
	Envelope
	OrderID string `json:"orderId"`
	Items   []Item `json:"items"`
}

func NewInventoryReserveRequested(orderID string, items []Item, correlationID, causationID string) *InventoryReserveRequested {
	return &InventoryReserveRequested{
		Envelope: NewEnvelope(TopicInventoryReserveRequested, SourceOrderService, correlationID, causationID),
		OrderID:  orderID,
		Items:    items,
	}
}

type InventoryReserved struct {
	Envelope
	OrderID string `json:"orderId"`
	Items   []Item `json:"items"`
}

func NewInventoryReserved(orderID string, items []Item, correlationID, causationID string) *InventoryReserved {
	return &InventoryReserved{
		Envelope: NewEnvelope(TopicInventoryReserved, SourceInventoryService, correlationID, causationID),
		OrderID:  orderID,
		Items:    items,
	}
}

type InventoryReservationFailed struct {
	Envelope
	OrderID                string   `json:"orderId"`
	Reason                 string   `json:"reason"`
	InsufficientProductIDs []string `json:"insufficientProductIds"`
}

func NewInventoryReservationFailed(orderID, reason string, insufficientProductIDs []string,
	correlationID, causationID string) *InventoryReservationFailed {
	return &InventoryReservationFailed{
		Envelope:               NewEnvelope(TopicInventoryReservationFailed, SourceInventoryService, correlationID, causationID),
		OrderID:                orderID,
		Reason:                 reason,
		InsufficientProductIDs: insufficientProductIDs,
	}
}

type InventoryReleased struct {
	Envelope
	OrderID string `json:"orderId"`
	Items   []Item `json:"items"`
}

func NewInventoryReleased(orderID string, items []Item, correlationID, causationID string) *InventoryReleased {
	return &InventoryReleased{
		Envelope: NewEnvelope(TopicInventoryReleased, SourceOrderService, correlationID, causationID),
		OrderID:  orderID,
		Items:    items,
	}
}

type NotificationSend struct {
	Envelope
	CustomerID string         `json:"customerId"`
	Channel    string         `json:"channel"` // email | sms | webhook
	TemplateID string         `json:"templateId"`
	Variables  map[string]any `json:"variables"`
}

func NewNotificationSend(customerID, channel, templateID string, variables map[string]any,
	correlationID, causationID string) *NotificationSend {
	return &NotificationSend{
		Envelope:   NewEnvelope(TopicNotificationsSend, SourceOrderService, correlationID, causationID),
		CustomerID: customerID,
		Channel:    channel,
		TemplateID: templateID,
		Variables:  variables,
	}
}
