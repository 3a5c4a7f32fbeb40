package outbox

import "time"

// Record status values. A record is pending until the relay publishes it or
// gives up after the retry limit.
const (
	StatusPending   = "pending"
	StatusPublished = "published"
	StatusExhausted = "exhausted"
)

// DefaultMaxRetries is the number of relay attempts before a record is
// marked exhausted and left for manual intervention.
const DefaultMaxRetries = 5

// DefaultBackoffBase seeds the exponential retry schedule: 5s, 10s, 20s,
// 40s, 80s.
const DefaultBackoffBase = 5 * time.Second

// Record is one row of the transactional outbox. It is written in the same
// database transaction as the state change it describes, then relayed to the
// bus asynchronously.
type Record struct {
	ID            int64
	AggregateType string
	AggregateID   string
	Topic         string
	EventID       string
	EventType     string
	CorrelationID string
	CausationID   string
	Payload       []byte

	Status        string
	RetryCount    int
	NextAttemptAt time.Time
	LastError     string

	CreatedAt   time.Time
	PublishedAt *time.Time
}

// Backoff returns the delay before the given attempt number (1-based):
// base·2^(n−1), so attempt 1 waits base, attempt 2 waits 2·base, and so on.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}
