package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/upb/campaign-gateway/models"
	"github.com/upb/campaign-gateway/services/background"
	"go.uber.org/zap"
)

// revokeScript deletes both keys only while the user key still names ARGV[1]
var revokeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1], KEYS[2])
end
return 0
`)

// RedisRegistry keeps leases in Redis under two keys per user: the user key
// holds the current session id and the session key maps back to the user so
// Touch can extend both.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
	runner background.Runner
	logger *zap.Logger
}

// NewRedisRegistry creates a registry on client; leases expire after ttl without activity
func NewRedisRegistry(client *redis.Client, ttl time.Duration, runner background.Runner, logger *zap.Logger) *RedisRegistry {
	return &RedisRegistry{
		client: client,
		ttl:    ttl,
		runner: runner,
		logger: logger,
	}
}

// OpenRedis parses url and verifies the server answers
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func userKey(userID uuid.UUID) string {
	return "session:user:" + userID.String()
}

func sessionKey(sessionID uuid.UUID) string {
	return "session:sid:" + sessionID.String()
}

// IsActive compares sessionID against the user's current lease
func (r *RedisRegistry) IsActive(ctx context.Context, sessionID, userID uuid.UUID) (bool, error) {
	current, err := r.client.Get(ctx, userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load session: %w", err)
	}
	return current == sessionID.String(), nil
}

// Touch queues a TTL extension of the lease
func (r *RedisRegistry) Touch(_ context.Context, sessionID uuid.UUID) {
	r.runner.Go(touchTaskKind, func(ctx context.Context) error {
		if err := r.touch(ctx, sessionID); err != nil {
			r.logger.Debug("session touch failed",
				zap.String("session_id", sessionID.String()),
				zap.Error(err))
		}
		return nil
	})
}

func (r *RedisRegistry) touch(ctx context.Context, sessionID uuid.UUID) error {
	userID, err := r.client.Get(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Expire(ctx, sessionKey(sessionID), r.ttl)
		pipe.Expire(ctx, "session:user:"+userID, r.ttl)
		return nil
	})
	return err
}

// Create replaces the user's lease atomically
func (r *RedisRegistry) Create(ctx context.Context, userID uuid.UUID) (*models.SessionLease, error) {
	lease := models.NewSessionLease(userID)

	previous, err := r.client.Get(ctx, userKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if previous != "" {
			pipe.Del(ctx, "session:sid:"+previous)
		}
		pipe.Set(ctx, userKey(userID), lease.ID.String(), r.ttl)
		pipe.Set(ctx, sessionKey(lease.ID), userID.String(), r.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return lease, nil
}

// Revoke deletes the lease in one atomic step when it is still sessionID
func (r *RedisRegistry) Revoke(ctx context.Context, userID, sessionID uuid.UUID) error {
	keys := []string{userKey(userID), sessionKey(sessionID)}
	if err := revokeScript.Run(ctx, r.client, keys, sessionID.String()).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}
