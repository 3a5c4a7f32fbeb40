package saga

import (
	"time"

	"github.com/orderstack/platform/internal/contracts/event"
)

type Status string

const (
	StatusStarted            Status = "STARTED"
	StatusReservingInventory Status = "RESERVING_INVENTORY"
	StatusProcessingPayment  Status = "PROCESSING_PAYMENT"
	StatusConfirming         Status = "CONFIRMING"
	StatusCompleted          Status = "COMPLETED"
	StatusCompensating       Status = "COMPENSATING"
	StatusCompensated        Status = "COMPENSATED"
	StatusFailed             Status = "FAILED"
	StatusTimedOut           Status = "TIMED_OUT"
)

// Saga step names. CompletedSteps only ever holds these, in execution order.
const (
	StepReserveInventory = "RESERVE_INVENTORY"
	StepProcessPayment   = "PROCESS_PAYMENT"
	StepConfirmOrder     = "CONFIRM_ORDER"
	StepSendNotification = "SEND_NOTIFICATION"
)

// State is the full context of one in-flight distributed transaction,
// serialized to the external store. The orchestrator is stateless: everything
// needed to resume a saga after a crash is in this record.
type State struct {
	CorrelationID string `json:"correlationId"`
	OrderID       string `json:"orderId"`
	CustomerID    string `json:"customerId"`

	// OrderSnapshot is the triggering event, retained for compensation
	// (items, total, currency) without round-tripping the durable store.
	OrderSnapshot *event.OrderCreated `json:"orderSnapshot"`

	Status         Status   `json:"status"`
	CurrentStep    string   `json:"currentStep,omitempty"`
	CompletedSteps []string `json:"completedSteps"`

	PaymentID     string `json:"paymentId,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`

	StartedAt     time.Time  `json:"startedAt"`
	LastUpdatedAt time.Time  `json:"lastUpdatedAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	FailedAt      *time.Time `json:"failedAt,omitempty"`
	TimeoutAt     time.Time  `json:"timeoutAt"`
}

func (s *State) AddCompletedStep(step string) {
	s.CompletedSteps = append(s.CompletedSteps, step)
	s.LastUpdatedAt = time.Now().UTC()
}

func (s *State) HasCompletedStep(step string) bool {
	for _, c := range s.CompletedSteps {
		if c == step {
			return true
		}
	}
	return false
}

func (s *State) IsTerminal() bool {
	switch s.Status {
	case StatusCompleted, StatusCompensated, StatusFailed, StatusTimedOut:
		return true
	}
	return false
}

func (s *State) TimedOut(now time.Time) bool {
	return !s.TimeoutAt.IsZero() && now.After(s.TimeoutAt)
}
