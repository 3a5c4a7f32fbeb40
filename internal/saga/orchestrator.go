package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/orderstack/platform/internal/contracts/event"
	"github.com/orderstack/platform/internal/metrics"
)

// Publisher is the outbound port to the message bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, evt event.Event) error
}

// Orchestrator drives the order workflow:
//
//	orders.created → [reserve inventory] → [process payment] → [confirm order] → [notify]
//
// On any failure, compensation runs in reverse order of completed steps.
//
// The orchestrator holds no saga state in memory; all continuation lives in
// the StateStore keyed by correlation id. Instances scale horizontally;
// correctness relies on per-saga single-partition consumption on the bus.
type Orchestrator struct {
	store   *StateStore
	pub     Publisher
	timeout time.Duration
	grace   time.Duration
	log     zerolog.Logger
	now     func() time.Time
}

func NewOrchestrator(store *StateStore, pub Publisher, timeout, grace time.Duration, log zerolog.Logger) *Orchestrator {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if grace <= 0 {
		grace = 5 * time.Minute
	}
	return &Orchestrator{
		store:   store,
		pub:     pub,
		timeout: timeout,
		grace:   grace,
		log:     log.With().Str("component", "saga_orchestrator").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// StartSaga begins a new order saga from a consumed orders.created event.
func (o *Orchestrator) StartSaga(ctx context.Context, evt *event.OrderCreated) error {
	o.log.Info().
		Str("correlation_id", evt.CorrelationID).
		Str("order_id", evt.OrderID).
		Msg("starting order saga")

	now := o.now()
	state := &State{
		CorrelationID: evt.CorrelationID,
		OrderID:       evt.OrderID,
		CustomerID:    evt.CustomerID,
		OrderSnapshot: evt,
		Status:        StatusStarted,
		StartedAt:     now,
		LastUpdatedAt: now,
		TimeoutAt:     now.Add(o.timeout),
	}

	if err := o.store.Save(ctx, state); err != nil {
		return err
	}
	metrics.RecordSagaStarted()

	return o.executeStep(ctx, state, StepReserveInventory, evt.ID)
}

func (o *Orchestrator) OnInventoryReserved(ctx context.Context, evt *event.InventoryReserved) error {
	state, err := o.loadAndValidate(ctx, evt.CorrelationID, StatusReservingInventory, evt.Type)
	if err != nil || state == nil {
		return err
	}

	state.AddCompletedStep(StepReserveInventory)
	if err := o.store.Save(ctx, state); err != nil {
		return err
	}
	return o.executeStep(ctx, state, StepProcessPayment, evt.ID)
}

func (o *Orchestrator) OnPaymentCompleted(ctx context.Context, evt *event.PaymentCompleted) error {
	state, err := o.loadAndValidate(ctx, evt.CorrelationID, StatusProcessingPayment, evt.Type)
	if err != nil || state == nil {
		return err
	}

	state.PaymentID = evt.PaymentID
	state.AddCompletedStep(StepProcessPayment)
	if err := o.store.Save(ctx, state); err != nil {
		return err
	}
	return o.executeStep(ctx, state, StepConfirmOrder, evt.ID)
}

func (o *Orchestrator) OnOrderConfirmed(ctx context.Context, evt *event.OrderConfirmed) error {
	state, err := o.loadAndValidate(ctx, evt.CorrelationID, StatusConfirming, evt.Type)
	if err != nil || state == nil {
		return err
	}

	state.AddCompletedStep(StepConfirmOrder)
	if err := o.store.Save(ctx, state); err != nil {
		return err
	}
	return o.executeStep(ctx, state, StepSendNotification, evt.ID)
}

func (o *Orchestrator) OnInventoryReservationFailed(ctx context.Context, evt *event.InventoryReservationFailed) error {
	return o.onFailureEvent(ctx, evt.CorrelationID, evt.Type, evt.ID,
		"Inventory reservation failed: "+evt.Reason)
}

func (o *Orchestrator) OnPaymentFailed(ctx context.Context, evt *event.PaymentFailed) error {
	return o.onFailureEvent(ctx, evt.CorrelationID, evt.Type, evt.ID,
		"Payment failed: "+evt.Reason)
}

func (o *Orchestrator) onFailureEvent(ctx context.Context, correlationID, eventType, causationID, reason string) error {
	state, err := o.store.Load(ctx, correlationID)
	if err != nil {
		return err
	}
	if state == nil {
		o.handleOrphanEvent(correlationID, eventType)
		return nil
	}
	// Compensation runs at most once per saga. A failure event arriving
	// during or after compensation carries no new work.
	if state.IsTerminal() || state.Status == StatusCompensating {
		o.log.Warn().
			Str("correlation_id", correlationID).
			Str("status", string(state.Status)).
			Str("event_type", eventType).
			Msg("failure event ignored; compensation already handled")
		return nil
	}
	return o.startCompensation(ctx, state, causationID, reason)
}

func (o *Orchestrator) executeStep(ctx context.Context, state *State, step, causationID string) error {
	correlationID := state.CorrelationID
	snapshot := state.OrderSnapshot
	if snapshot == nil {
		snapshot = &event.OrderCreated{}
	}

	state.CurrentStep = step
	state.LastUpdatedAt = o.now()

	switch step {
	case StepReserveInventory:
		state.Status = StatusReservingInventory
		if err := o.store.Save(ctx, state); err != nil {
			return err
		}
		if err := o.pub.Publish(ctx, event.TopicInventoryReserveRequested,
			event.NewInventoryReserveRequested(state.OrderID, snapshot.Items, correlationID, causationID)); err != nil {
			return err
		}

	case StepProcessPayment:
		state.Status = StatusProcessingPayment
		if err := o.store.Save(ctx, state); err != nil {
			return err
		}
		if err := o.pub.Publish(ctx, event.TopicPaymentsInitiated,
			event.NewPaymentInitiated(state.OrderID, state.CustomerID, snapshot.TotalAmount,
				snapshot.Currency, snapshot.PaymentMethod, correlationID, causationID)); err != nil {
			return err
		}

	case StepConfirmOrder:
		state.Status = StatusConfirming
		if err := o.store.Save(ctx, state); err != nil {
			return err
		}
		if err := o.pub.Publish(ctx, event.TopicOrdersConfirmed,
			event.NewOrderConfirmed(state.OrderID, state.CustomerID, correlationID, causationID)); err != nil {
			return err
		}

	case StepSendNotification:
		if err := o.pub.Publish(ctx, event.TopicNotificationsSend,
			event.NewNotificationSend(state.CustomerID, "email", "order-confirmed",
				map[string]any{
					"orderId":     state.OrderID,
					"totalAmount": snapshot.TotalAmount,
					"currency":    snapshot.Currency,
				},
				correlationID, causationID)); err != nil {
			return err
		}
		return o.completeSaga(ctx, state)

	default:
		return fmt.Errorf("unknown saga step: %s", step)
	}

	o.log.Info().
		Str("correlation_id", correlationID).
		Str("step", step).
		Str("status", string(state.Status)).
		Msg("saga step executed")
	return nil
}

// startCompensation undoes completed steps in reverse execution order. A step
// that never completed is never compensated.
func (o *Orchestrator) startCompensation(ctx context.Context, state *State, causationID, reason string) error {
	o.log.Warn().
		Str("correlation_id", state.CorrelationID).
		Str("order_id", state.OrderID).
		Strs("completed_steps", state.CompletedSteps).
		Str("reason", reason).
		Msg("starting saga compensation")

	now := o.now()
	state.Status = StatusCompensating
	state.FailureReason = reason
	state.FailedAt = &now
	if err := o.store.Save(ctx, state); err != nil {
		return err
	}
	metrics.RecordSagaCompensating()

	correlationID := state.CorrelationID
	snapshot := state.OrderSnapshot
	if snapshot == nil {
		snapshot = &event.OrderCreated{}
	}

	for i := len(state.CompletedSteps) - 1; i >= 0; i-- {
		switch state.CompletedSteps[i] {
		case StepReserveInventory:
			o.log.Info().Str("order_id", state.OrderID).Msg("compensating RESERVE_INVENTORY: releasing stock")
			if err := o.pub.Publish(ctx, event.TopicInventoryReleased,
				event.NewInventoryReleased(state.OrderID, snapshot.Items, correlationID, causationID)); err != nil {
				return err
			}
		case StepProcessPayment:
			o.log.Info().Str("payment_id", state.PaymentID).Msg("compensating PROCESS_PAYMENT: refunding")
			if err := o.pub.Publish(ctx, event.TopicPaymentsRefunded,
				event.NewPaymentRefunded(state.OrderID, state.PaymentID, snapshot.TotalAmount,
					snapshot.Currency, correlationID, causationID)); err != nil {
				return err
			}
		}
	}

	if err := o.pub.Publish(ctx, event.TopicOrdersCancelled,
		event.NewOrderCancelled(state.OrderID, state.CustomerID, reason, correlationID, causationID)); err != nil {
		return err
	}

	if err := o.pub.Publish(ctx, event.TopicNotificationsSend,
		event.NewNotificationSend(state.CustomerID, "email", "order-cancelled",
			map[string]any{"orderId": state.OrderID, "reason": reason},
			correlationID, causationID)); err != nil {
		return err
	}

	state.Status = StatusCompensated
	if err := o.store.Save(ctx, state); err != nil {
		return err
	}
	metrics.RecordSagaCompensated()

	if err := o.store.ScheduleDelete(ctx, correlationID, o.grace); err != nil {
		o.log.Warn().Err(err).Str("correlation_id", correlationID).Msg("schedule delete failed")
	}

	o.log.Info().
		Str("correlation_id", correlationID).
		Str("order_id", state.OrderID).
		Msg("saga compensated")
	return nil
}

func (o *Orchestrator) completeSaga(ctx context.Context, state *State) error {
	now := o.now()
	state.Status = StatusCompleted
	state.CompletedAt = &now
	if err := o.store.Save(ctx, state); err != nil {
		return err
	}

	duration := now.Sub(state.StartedAt)
	metrics.RecordSagaCompleted()
	metrics.ObserveSagaDuration(duration)

	o.log.Info().
		Str("correlation_id", state.CorrelationID).
		Str("order_id", state.OrderID).
		Dur("duration", duration).
		Msg("saga completed")

	if err := o.store.ScheduleDelete(ctx, state.CorrelationID, o.grace); err != nil {
		o.log.Warn().Err(err).Str("correlation_id", state.CorrelationID).Msg("schedule delete failed")
	}
	return nil
}

// loadAndValidate runs the inbound validation pipeline: orphan, terminal,
// out-of-sequence, timeout. A nil state with nil error means the event was
// discarded.
func (o *Orchestrator) loadAndValidate(ctx context.Context, correlationID string, expected Status, eventType string) (*State, error) {
	state, err := o.store.Load(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		o.handleOrphanEvent(correlationID, eventType)
		return nil, nil
	}

	if state.IsTerminal() {
		o.log.Debug().
			Str("correlation_id", correlationID).
			Str("status", string(state.Status)).
			Str("event_type", eventType).
			Msg("late event after terminal state; discarding")
		return nil, nil
	}

	if state.Status != expected {
		o.log.Warn().
			Str("correlation_id", correlationID).
			Str("current_status", string(state.Status)).
			Str("expected_status", string(expected)).
			Str("event_type", eventType).
			Msg("saga step out of sequence; discarding")
		return nil, nil
	}

	if state.TimedOut(o.now()) {
		o.log.Error().
			Str("correlation_id", correlationID).
			Str("order_id", state.OrderID).
			Msg("saga timed out")
		state.Status = StatusTimedOut
		if err := o.store.Save(ctx, state); err != nil {
			return nil, err
		}
		if err := o.startCompensation(ctx, state, "", "Saga timed out"); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return state, nil
}

func (o *Orchestrator) handleOrphanEvent(correlationID, eventType string) {
	o.log.Warn().
		Str("correlation_id", correlationID).
		Str("event_type", eventType).
		Msg("event for unknown or expired saga; discarding")
}
