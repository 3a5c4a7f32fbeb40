package event

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope_Defaults(t *testing.T) {
	env := NewEnvelope(TopicOrdersCreated, SourceOrderService, "corr-1", "cause-1")

	require.NotEmpty(t, env.ID)
	require.Equal(t, TopicOrdersCreated, env.Type)
	require.Equal(t, SourceOrderService, env.Source)
	require.Equal(t, "corr-1", env.CorrelationID)
	require.Equal(t, "cause-1", env.CausationID)
	require.Equal(t, 1, env.Version)
	require.Equal(t, "1.0", env.SpecVersion)
	require.Equal(t, "application/json", env.DataContentType)
	require.False(t, env.Time.IsZero())
}

func TestNewEnvelope_MintsCorrelationIDWhenEmpty(t *testing.T) {
	env := NewEnvelope(TopicOrdersCreated, SourceOrderService, "", "")
	require.NotEmpty(t, env.CorrelationID)
	require.Empty(t, env.CausationID)
}

func TestEnvelope_IDsAreUnique(t *testing.T) {
	a := NewEnvelope(TopicOrdersConfirmed, SourceOrderService, "c", "")
	b := NewEnvelope(TopicOrdersConfirmed, SourceOrderService, "c", "")
	require.NotEqual(t, a.ID, b.ID)
}

func TestOrderCreated_WireFormatIsFlat(t *testing.T) {
	evt := NewOrderCreated("ord_1", "cust_1",
		[]Item{{ProductID: "prod_1", Quantity: 2, UnitPrice: decimal.RequireFromString("49.99")}},
		decimal.RequireFromString("99.98"), "USD", "card",
		ShippingAddress{Street: "1 Main St", City: "Springfield", Country: "US", PostalCode: "12345"},
		"corr-1")

	raw, err := json.Marshal(evt)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))

	// Envelope and payload fields are siblings on the wire.
	require.Equal(t, "orders.created", m["type"])
	require.Equal(t, "1.0", m["specversion"])
	require.Equal(t, "corr-1", m["correlationId"])
	require.Equal(t, "ord_1", m["orderId"])
	require.NotContains(t, m, "Envelope")
	require.NotContains(t, m, "causationId") // omitted at saga entry
}

func TestDecode_RoundTrip(t *testing.T) {
	orig := NewPaymentCompleted("ord_1", "pay_1",
		decimal.RequireFromString("99.98"), "USD", "corr-1", "cause-1")

	raw, err := json.Marshal(orig)
	require.NoError(t, err)

	got, err := Decode(TopicPaymentsCompleted, raw)
	require.NoError(t, err)

	pc, ok := got.(*PaymentCompleted)
	require.True(t, ok)
	require.Equal(t, orig.ID, pc.ID)
	require.Equal(t, "pay_1", pc.PaymentID)
	require.True(t, pc.Amount.Equal(decimal.RequireFromString("99.98")))
	require.Equal(t, "cause-1", pc.Meta().CausationID)
}

func TestDecode_UnknownTopic(t *testing.T) {
	_, err := Decode("orders.unknown", []byte(`{}`))
	require.Error(t, err)
}

func TestDecode_MalformedPayload(t *testing.T) {
	_, err := Decode(TopicOrdersCreated, []byte(`{`))
	require.Error(t, err)
}
