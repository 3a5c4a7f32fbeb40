// Package idempotency absorbs at-least-once redelivery: consumers record each
// (topic, eventId) pair before side effects, so a second delivery of the same
// event is detected and skipped.
package idempotency

import (
	"context"
	"time"
)

const (
	keyPrefix  = "idempotency:"
	DefaultTTL = 24 * time.Hour
)

type Guard interface {
	// IsDuplicate atomically records (topic, eventID) with the default TTL and
	// reports whether it was already present. True means: skip, this event has
	// been seen before.
	IsDuplicate(ctx context.Context, eventID, topic string) (bool, error)

	// IsDuplicateTTL is IsDuplicate with a caller-chosen TTL, for sagas that
	// outlive the default replay window.
	IsDuplicateTTL(ctx context.Context, eventID, topic string, ttl time.Duration) (bool, error)

	// MarkProcessed records the pair without the atomic check, for callers
	// that mark only after downstream success.
	MarkProcessed(ctx context.Context, eventID, topic string) error

	// Remove deletes the pair, for tests and manual replay.
	Remove(ctx context.Context, eventID, topic string) error
}

func key(eventID, topic string) string {
	return keyPrefix + topic + ":" + eventID
}
