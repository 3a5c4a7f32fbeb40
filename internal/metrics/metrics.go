package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Saga lifecycle metrics
	sagasStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "saga_started_total",
		Help: "Total number of order sagas started",
	})

	sagasCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "saga_completed_total",
		Help: "Total number of order sagas completed successfully",
	})

	sagasCompensating = promauto.NewCounter(prometheus.CounterOpts{
		Name: "saga_compensating_total",
		Help: "Total number of order sagas that entered compensation",
	})

	sagasCompensated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "saga_compensated_total",
		Help: "Total number of order sagas fully compensated",
	})

	sagaDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "saga_duration_seconds",
		Help:    "Wall-clock duration of completed sagas in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	// Outbox relay metrics
	outboxRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_records_relayed_total",
		Help: "Outbox records successfully relayed to the bus",
	})

	outboxRelayErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_relay_errors_total",
		Help: "Errors during outbox relay publish attempts",
	})

	outboxExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_records_exhausted_total",
		Help: "Outbox records that hit the retry limit and were abandoned",
	})

	// Consumer metrics
	messagesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_messages_consumed_total",
		Help: "Messages consumed from the bus",
	}, []string{"queue", "topic"})

	duplicatesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_duplicates_skipped_total",
		Help: "Duplicate deliveries detected by the idempotency guard",
	}, []string{"queue", "topic"})

	dlqMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_dlq_messages_total",
		Help: "Messages routed to the dead letter queue",
	}, []string{"queue", "reason"})

	processingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bus_message_processing_duration_seconds",
		Help:    "Message handler duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"queue", "topic"})
)

func RecordSagaStarted()      { sagasStarted.Inc() }
func RecordSagaCompleted()    { sagasCompleted.Inc() }
func RecordSagaCompensating() { sagasCompensating.Inc() }
func RecordSagaCompensated()  { sagasCompensated.Inc() }

func ObserveSagaDuration(d time.Duration) { sagaDuration.Observe(d.Seconds()) }

func RecordOutboxRelayed()    { outboxRelayed.Inc() }
func RecordOutboxRelayError() { outboxRelayErrors.Inc() }
func RecordOutboxExhausted()  { outboxExhausted.Inc() }

func RecordMessageConsumed(queue, topic string) {
	messagesConsumed.WithLabelValues(queue, topic).Inc()
}

func RecordDuplicateSkipped(queue, topic string) {
	duplicatesSkipped.WithLabelValues(queue, topic).Inc()
}

func RecordDLQMessage(queue, reason string) {
	dlqMessages.WithLabelValues(queue, reason).Inc()
}

func ObserveProcessing(queue, topic string, d time.Duration) {
	processingDuration.WithLabelValues(queue, topic).Observe(d.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
