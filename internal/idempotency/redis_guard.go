package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisGuard implements Guard on Redis SET NX. The set-if-absent is atomic on
// the server, so two concurrent consumers can never both observe a first-time
// event.
type RedisGuard struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

func NewRedisGuard(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisGuard{
		rdb: rdb,
		ttl: ttl,
		log: log.With().Str("component", "idempotency_guard").Logger(),
	}
}

func (g *RedisGuard) IsDuplicate(ctx context.Context, eventID, topic string) (bool, error) {
	return g.IsDuplicateTTL(ctx, eventID, topic, g.ttl)
}

func (g *RedisGuard) IsDuplicateTTL(ctx context.Context, eventID, topic string, ttl time.Duration) (bool, error) {
	if eventID == "" {
		return false, fmt.Errorf("empty event id")
	}
	if ttl <= 0 {
		ttl = g.ttl
	}

	set, err := g.rdb.SetNX(ctx, key(eventID, topic), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency setnx: %w", err)
	}
	if !set {
		g.log.Debug().Str("event_id", eventID).Str("topic", topic).Msg("duplicate event detected")
		return true, nil
	}
	return false, nil
}

func (g *RedisGuard) MarkProcessed(ctx context.Context, eventID, topic string) error {
	if eventID == "" {
		return fmt.Errorf("empty event id")
	}
	return g.rdb.Set(ctx, key(eventID, topic), "1", g.ttl).Err()
}

func (g *RedisGuard) Remove(ctx context.Context, eventID, topic string) error {
	return g.rdb.Del(ctx, key(eventID, topic)).Err()
}
