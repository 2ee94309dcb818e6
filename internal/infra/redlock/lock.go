// Package redlock provides non-blocking mutual exclusion scoped to a
// logical resource name, backed by Redis SET NX with a lease TTL.
// Reentrancy is not supported; callers needing retry or blocking
// semantics implement them on top of TryLock.
package redlock

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "lock:"

// ErrLockNotAcquired is returned by callers that gave up waiting for a
// lock; TryLock itself reports contention as (false, nil).
var ErrLockNotAcquired = errors.New("lock not acquired")

// runID distinguishes lock holders across processes; the local counter
// distinguishes holders within one process. Together they form an
// owner token that cannot collide with another holder's token.
var (
	runID        = uuid.NewString()
	localCounter atomic.Int64
)

// unlockScript deletes the key only when it still holds the caller's
// token. Compare-and-delete must be a single script: between a plain
// GET and DEL the lease could expire and another holder could acquire
// the key, and the DEL would then kill a lock we no longer own.
const unlockScript = `if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
end
return 0`

var unlock = redis.NewScript(unlockScript)

type Lock struct {
	rdb   *redis.Client
	key   string
	token string
}

func New(rdb *redis.Client, name string) *Lock {
	return &Lock{
		rdb:   rdb,
		key:   keyPrefix + name,
		token: fmt.Sprintf("%s-%d", runID, localCounter.Add(1)),
	}
}

// TryLock makes a single non-blocking attempt. The lease is a physical
// TTL: a crashed holder cannot wedge the resource forever.
func (l *Lock) TryLock(ctx context.Context, lease time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, l.key, l.token, lease).Result()
}

// Unlock releases the lock if it is still owned by this instance.
// Releasing a lock that is not held (or held by someone else after our
// lease elapsed) is a successful no-op.
func (l *Lock) Unlock(ctx context.Context) error {
	return unlock.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
}

// Key is exposed for logging and tests.
func (l *Lock) Key() string { return l.key }
