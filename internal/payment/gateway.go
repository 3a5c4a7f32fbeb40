package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DeclinedError marks a business rejection by the gateway. Declines are
// final: the service records the failure and emits payments.failed instead
// of retrying.
type DeclinedError struct {
	Reason string
}

func (e *DeclinedError) Error() string { return "payment declined: " + e.Reason }

// Gateway is the outbound port to the payment provider.
type Gateway interface {
	Charge(ctx context.Context, orderID, customerID string, amount decimal.Decimal, currency, method string) (paymentID string, err error)
	Refund(ctx context.Context, paymentID string, amount decimal.Decimal, currency string) error
}

// SimulatedGateway stands in for a real provider. It declines charges above
// the configured limit and charges with the magic "card-declined" method;
// everything else succeeds.
type SimulatedGateway struct {
	Limit decimal.Decimal
}

func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{Limit: decimal.NewFromInt(10000)}
}

func (g *SimulatedGateway) Charge(_ context.Context, _, _ string, amount decimal.Decimal, _, method string) (string, error) {
	if method == "card-declined" {
		return "", &DeclinedError{Reason: "card declined"}
	}
	if amount.GreaterThan(g.Limit) {
		return "", &DeclinedError{Reason: fmt.Sprintf("amount %s exceeds limit %s", amount, g.Limit)}
	}
	return "pay_" + uuid.NewString(), nil
}

func (g *SimulatedGateway) Refund(_ context.Context, _ string, _ decimal.Decimal, _ string) error {
	return nil
}
