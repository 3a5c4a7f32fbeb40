package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/orderstack/platform/internal/contracts/event"
)

// Publisher is the outbound port to the bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, evt event.Event) error
}

// Service processes charge commands and refund compensations. Both are
// idempotent: charges by order id, refunds by payment id, so at-least-once
// delivery never double-charges or double-refunds.
type Service struct {
	repo    *Repository
	gateway Gateway
	pub     Publisher
	log     zerolog.Logger
}

func NewService(repo *Repository, gateway Gateway, pub Publisher, log zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		gateway: gateway,
		pub:     pub,
		log:     log.With().Str("component", "payment_service").Logger(),
	}
}

// HandlePaymentInitiated charges the customer for an order. If a payment for
// the order already exists the stored outcome is re-emitted unchanged.
func (s *Service) HandlePaymentInitiated(ctx context.Context, evt *event.PaymentInitiated) error {
	existing, err := s.repo.GetByOrderID(ctx, evt.OrderID)
	if err != nil {
		return err
	}
	if existing != nil {
		s.log.Info().
			Str("order_id", evt.OrderID).
			Str("payment_id", existing.ID).
			Str("status", string(existing.Status)).
			Msg("payment already processed; re-emitting outcome")
		return s.emitOutcome(ctx, existing, evt)
	}

	paymentID, chargeErr := s.gateway.Charge(ctx, evt.OrderID, evt.CustomerID, evt.Amount, evt.Currency, evt.PaymentMethod)

	var declined *DeclinedError
	if errors.As(chargeErr, &declined) {
		p := &Payment{
			OrderID:       evt.OrderID,
			CustomerID:    evt.CustomerID,
			Amount:        evt.Amount,
			Currency:      evt.Currency,
			Method:        evt.PaymentMethod,
			Status:        StatusFailed,
			FailureReason: declined.Reason,
		}
		p.ID = "failed_" + evt.OrderID
		if err := s.repo.Insert(ctx, p); err != nil {
			return err
		}
		s.log.Warn().Str("order_id", evt.OrderID).Str("reason", declined.Reason).Msg("payment declined")
		return s.emitOutcome(ctx, p, evt)
	}
	if chargeErr != nil {
		// Transport-level failure: no row written, redelivery retries the charge.
		return fmt.Errorf("gateway charge for order %s: %w", evt.OrderID, chargeErr)
	}

	p := &Payment{
		ID:         paymentID,
		OrderID:    evt.OrderID,
		CustomerID: evt.CustomerID,
		Amount:     evt.Amount,
		Currency:   evt.Currency,
		Method:     evt.PaymentMethod,
		Status:     StatusCompleted,
	}
	if err := s.repo.Insert(ctx, p); err != nil {
		return err
	}

	s.log.Info().
		Str("order_id", evt.OrderID).
		Str("payment_id", paymentID).
		Str("amount", evt.Amount.String()).
		Msg("payment completed")
	return s.emitOutcome(ctx, p, evt)
}

func (s *Service) emitOutcome(ctx context.Context, p *Payment, cause *event.PaymentInitiated) error {
	switch p.Status {
	case StatusCompleted, StatusRefunded:
		// A refunded payment still reports the original completion: the refund
		// was this saga's own compensation.
		return s.pub.Publish(ctx, event.TopicPaymentsCompleted,
			event.NewPaymentCompleted(p.OrderID, p.ID, p.Amount, p.Currency, cause.CorrelationID, cause.ID))
	case StatusFailed:
		return s.pub.Publish(ctx, event.TopicPaymentsFailed,
			event.NewPaymentFailed(p.OrderID, p.FailureReason, cause.CorrelationID, cause.ID))
	default:
		return fmt.Errorf("payment %s in unexpected status %s", p.ID, p.Status)
	}
}

// HandleRefund compensates a completed payment. The refund row is the
// idempotency fence: if one already exists for the payment the command is a
// replay and nothing happens.
func (s *Service) HandleRefund(ctx context.Context, evt *event.PaymentRefunded) error {
	existing, err := s.repo.GetRefundByPaymentID(ctx, evt.PaymentID)
	if err != nil {
		return err
	}
	if existing != nil {
		s.log.Info().
			Str("payment_id", evt.PaymentID).
			Str("refund_id", existing.ID).
			Msg("refund already recorded; skipping")
		return nil
	}

	p, err := s.repo.GetByID(ctx, evt.PaymentID)
	if err != nil {
		return err
	}
	if p == nil {
		s.log.Warn().Str("payment_id", evt.PaymentID).Msg("refund for unknown payment; skipping")
		return nil
	}
	if p.Status != StatusCompleted {
		s.log.Info().
			Str("payment_id", evt.PaymentID).
			Str("status", string(p.Status)).
			Msg("refund not applicable; skipping")
		return nil
	}

	if err := s.gateway.Refund(ctx, p.ID, p.Amount, p.Currency); err != nil {
		return fmt.Errorf("gateway refund %s: %w", p.ID, err)
	}
	ref := &Refund{
		ID:        "ref_" + uuid.NewString(),
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		Amount:    p.Amount,
		Currency:  p.Currency,
	}
	if err := s.repo.RecordRefund(ctx, ref); err != nil {
		return err
	}

	s.log.Info().
		Str("payment_id", p.ID).
		Str("refund_id", ref.ID).
		Str("order_id", p.OrderID).
		Str("amount", p.Amount.String()).
		Msg("payment refunded")
	return nil
}
