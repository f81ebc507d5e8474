package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps attempts in one sorted set per scope key, scored by time.
// Keys expire after the window, so DeleteBefore has nothing to do.
type RedisStore struct {
	client *redis.Client
	window time.Duration
}

// NewRedisStore creates a store whose keys live for window after the last attempt
func NewRedisStore(client *redis.Client, window time.Duration) *RedisStore {
	return &RedisStore{client: client, window: window}
}

func attemptsKey(scopeKey string) string {
	return "login_attempts:" + scopeKey
}

// Record stores one failed attempt
func (s *RedisStore) Record(ctx context.Context, scopeKey string, at time.Time) error {
	key := attemptsKey(scopeKey)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixNano()), Member: uuid.NewString()})
		pipe.Expire(ctx, key, s.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

// Window drops attempts before since, then counts the rest
func (s *RedisStore) Window(ctx context.Context, scopeKey string, since time.Time) (int, time.Time, error) {
	key := attemptsKey(scopeKey)

	var (
		card   *redis.IntCmd
		oldest *redis.ZSliceCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(since.UnixNano(), 10))
		card = pipe.ZCard(ctx, key)
		oldest = pipe.ZRangeWithScores(ctx, key, 0, 0)
		return nil
	})
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to count login attempts: %w", err)
	}

	var first time.Time
	if z := oldest.Val(); len(z) > 0 {
		first = time.Unix(0, int64(z[0].Score))
	}
	return int(card.Val()), first, nil
}

// Clear forgets every attempt of a scope key
func (s *RedisStore) Clear(ctx context.Context, scopeKey string) error {
	if err := s.client.Del(ctx, attemptsKey(scopeKey)).Err(); err != nil {
		return fmt.Errorf("failed to clear login attempts: %w", err)
	}
	return nil
}

// DeleteBefore is a no-op; keys expire on their own
func (s *RedisStore) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}
