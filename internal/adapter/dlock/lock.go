// Package dlock is an advisory TTL-lease lock on Redis. Both the persistence
// worker and the compaction service use it to guarantee cluster-wide single
// execution of their work; contention is "someone else is already doing
// this", never an error.
package dlock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "lease:"

// releaseScript deletes the lease only if this holder still owns it, so a
// slow worker can never release a lease that already expired and was
// re-acquired elsewhere.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLock implements named TTL leases via SET NX PX.
type RedisLock struct {
	rdb redis.UniversalClient

	// tokens remembers the random holder token per lease name held by
	// this process.
	tokens sync.Map
}

func NewRedisLock(rdb redis.UniversalClient) *RedisLock {
	return &RedisLock{rdb: rdb}
}

// TryAcquire attempts a non-blocking acquisition of the named lease.
// Returns false when another holder owns it; the lease self-expires after
// ttl if the holder crashes.
func (l *RedisLock) TryAcquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, keyPrefix+name, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dlock: acquire %s: %w", name, err)
	}
	if ok {
		l.tokens.Store(name, token)
	}
	return ok, nil
}

// Release gives up the named lease if this process still holds it.
func (l *RedisLock) Release(ctx context.Context, name string) error {
	val, ok := l.tokens.LoadAndDelete(name)
	if !ok {
		return nil
	}
	if err := releaseScript.Run(ctx, l.rdb, []string{keyPrefix + name}, val).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("dlock: release %s: %w", name, err)
	}
	return nil
}
