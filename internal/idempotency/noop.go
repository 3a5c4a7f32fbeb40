package idempotency

import (
	"context"
	"time"
)

// Noop never reports a duplicate. For tests and local runs without Redis.
type Noop struct{}

func (Noop) IsDuplicate(context.Context, string, string) (bool, error) { return false, nil }

func (Noop) IsDuplicateTTL(context.Context, string, string, time.Duration) (bool, error) {
	return false, nil
}

func (Noop) MarkProcessed(context.Context, string, string) error { return nil }

func (Noop) Remove(context.Context, string, string) error { return nil }
