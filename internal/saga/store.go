package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "saga:order:"

// DefaultStateTTL outlives the 30m saga timeout by a 5m grace period.
const DefaultStateTTL = 35 * time.Minute

// StateStore persists saga state in Redis under saga:order:{correlationId}.
// All orchestrator instances share it; crash recovery resumes from here.
type StateStore struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

func NewStateStore(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateStore{
		rdb: rdb,
		ttl: ttl,
		log: log.With().Str("component", "saga_state_store").Logger(),
	}
}

// Save serializes and writes the state. A serialization failure is a
// programming error and is returned loudly.
func (s *StateStore) Save(ctx context.Context, state *State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("serialize saga state %s: %w", state.CorrelationID, err)
	}
	if err := s.rdb.Set(ctx, buildKey(state.CorrelationID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save saga state %s: %w", state.CorrelationID, err)
	}
	s.log.Debug().
		Str("correlation_id", state.CorrelationID).
		Str("status", string(state.Status)).
		Msg("saga state saved")
	return nil
}

// Load returns the current state, or nil when absent. A corrupt stored value
// is logged and reported as absent; the orchestrator treats the saga as
// orphaned.
func (s *StateStore) Load(ctx context.Context, correlationID string) (*State, error) {
	raw, err := s.rdb.Get(ctx, buildKey(correlationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load saga state %s: %w", correlationID, err)
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		s.log.Error().Err(err).
			Str("correlation_id", correlationID).
			Msg("corrupt saga state; treating as absent")
		return nil, nil
	}
	return &state, nil
}

func (s *StateStore) Delete(ctx context.Context, correlationID string) error {
	return s.rdb.Del(ctx, buildKey(correlationID)).Err()
}

// ScheduleDelete rewrites the key TTL so terminal sagas stay visible for a
// short debugging window before expiring.
func (s *StateStore) ScheduleDelete(ctx context.Context, correlationID string, delay time.Duration) error {
	return s.rdb.Expire(ctx, buildKey(correlationID), delay).Err()
}

func buildKey(correlationID string) string {
	return keyPrefix + correlationID
}
