// Package sweeplock provides a Redis-backed leader lock so that only one
// replica runs the confirmation sweep at a time.
package sweeplock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/clinicbase/scheduler/pkg/logging"
)

// releaseScript deletes the lock only when we still hold it.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// RedisLock is a best-effort SETNX lock with a TTL. Losing the lock mid-sweep
// is tolerable: every sweep write is already conditional, so a duplicate
// sweep is harmless, just wasteful.
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
	logger *logging.Logger
}

// New creates a lock on the given key. Returns nil when client is nil so
// single-instance deployments can skip locking entirely.
func New(client *redis.Client, key string, ttl time.Duration, logger *logging.Logger) *RedisLock {
	if client == nil {
		return nil
	}
	if key == "" {
		key = "scheduler:sweep:lock"
	}
	if ttl <= 0 {
		ttl = 55 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisLock{
		client: client,
		key:    key,
		ttl:    ttl,
		token:  uuid.NewString(),
		logger: logger,
	}
}

// Acquire attempts to take the lock. Returns false when another holder owns
// it.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Release gives the lock back if we still hold it. Best effort: on error the
// TTL expires it anyway.
func (l *RedisLock) Release(ctx context.Context) {
	if err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Err(); err != nil {
		l.logger.Warn("failed to release sweep lock", "error", err)
	}
}
