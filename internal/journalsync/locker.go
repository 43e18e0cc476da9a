// Package journalsync reconciles per-entity state with an external
// journal system. Concurrent syncs on one entity are serialized by an
// in-process guard plus an optional distributed advisory lock; diverging
// payloads are detected by canonical content hash and resolved by
// policy.
package journalsync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker is the distributed advisory lock used to serialize sync on one
// entity across processes. Absence degrades to the in-process guard.
type Locker interface {
	// Acquire takes the lock, returning a release token. ok is false when
	// another holder has it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	// Release frees the lock only if token still matches the holder.
	Release(ctx context.Context, key, token string) error
}

// releaseScript deletes the lock key only when the stored token matches,
// so a holder that outlived its TTL cannot release a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker over a Redis-compatible KV.
type RedisLocker struct {
	client redis.UniversalClient
}

// NewRedisLocker wraps a Redis client as a Locker.
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire takes the lock with SET NX and a TTL. The returned token is
// required to release.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("journalsync: acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the lock if the token still matches the holder.
func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("journalsync: release lock %s: %w", key, err)
	}
	return nil
}

// lockKey is the advisory lock key for one entity.
func lockKey(entityType, entityID string) string {
	return fmt.Sprintf("sync:%s:%s", entityType, entityID)
}
