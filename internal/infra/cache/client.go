// Package cache is a cache-aside layer over Redis with three read
// strategies protecting the durable store:
//
//   - QueryWithPassThrough: negative caching absorbs repeated lookups
//     of ids that exist nowhere (cache penetration).
//   - QueryWithMutex: a distributed mutex serializes rebuilds of one
//     cold key (cache breakdown), at the cost of waiter latency.
//   - QueryWithLogicalExpire: hot keys carry an application-level
//     staleness timestamp and are refreshed in the background; readers
//     never wait, at the cost of briefly stale data.
//
// Call sites pick the strategy matching their access pattern.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"flashsale-starter/internal/infra"
	"flashsale-starter/internal/infra/redlock"
	"flashsale-starter/internal/pkg/clock"
	"flashsale-starter/internal/pkg/errs"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound covers both "absent in the store" and a negative
	// sentinel hit; callers cannot tell them apart on purpose.
	ErrNotFound = errs.New("cache: value not found")

	ErrUnmarshal = errs.New("cache: malformed cached value")
)

const (
	// lease on per-key rebuild locks; long enough for one store
	// round-trip, short enough to self-heal after a crashed rebuilder
	rebuildLockLease = 10 * time.Second

	// pause between mutex acquisition attempts
	mutexRetryDelay = 50 * time.Millisecond

	// attempts bound; beyond this the waiter gives up instead of
	// hammering the lock key forever
	maxMutexAttempts = 100
)

// Loader is the authoritative source, typically the durable store.
// Absence is reported as (nil, nil), not as an error.
type Loader[T any] func(ctx context.Context, id int64) (*T, error)

type Client struct {
	rdb     *redis.Client
	clock   clock.Clock
	logger  *slog.Logger
	pool    *RebuildPool
	nullTTL time.Duration
}

func NewClient(rdb *redis.Client, clk clock.Clock, logger *slog.Logger, pool *RebuildPool, nullTTL time.Duration) *Client {
	return &Client{
		rdb:     rdb,
		clock:   clk,
		logger:  logger,
		pool:    pool,
		nullTTL: nullTTL,
	}
}

// envelope wraps a value with its logical expiry. Entries written this
// way carry no physical TTL; staleness is decided purely by comparing
// ExpireTime against the clock.
type envelope struct {
	Data       json.RawMessage `json:"data"`
	ExpireTime time.Time       `json:"expireTime"`
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	buf, err := json.Marshal(value)
	if err != nil {
		return errs.Wrap(err, "cache: failed to marshal value")
	}
	if err := c.rdb.Set(ctx, key, buf, ttl).Err(); err != nil {
		return infra.WrapRepoErr(infra.KindUnavailable, "cache: SET failed", err)
	}
	return nil
}

func (c *Client) SetWithLogicalExpire(ctx context.Context, key string, value any, ttl time.Duration) error {
	buf, err := json.Marshal(value)
	if err != nil {
		return errs.Wrap(err, "cache: failed to marshal value")
	}
	env := envelope{
		Data:       buf,
		ExpireTime: c.clock.Now().Add(ttl),
	}
	envBuf, err := json.Marshal(env)
	if err != nil {
		return errs.Wrap(err, "cache: failed to marshal envelope")
	}
	// no physical TTL: the entry lives until overwritten
	if err := c.rdb.Set(ctx, key, envBuf, 0).Err(); err != nil {
		return infra.WrapRepoErr(infra.KindUnavailable, "cache: SET failed", err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return infra.WrapRepoErr(infra.KindUnavailable, "cache: DEL failed", err)
	}
	return nil
}

// QueryWithPassThrough returns the cached value for keyPrefix+id,
// falling back to load on a miss. Absence is negative-cached with a
// short TTL. Concurrent misses on one key all reach the loader; use
// QueryWithMutex or QueryWithLogicalExpire for breakdown-prone keys.
func QueryWithPassThrough[T any](ctx context.Context, c *Client, keyPrefix string, id int64, ttl time.Duration, load Loader[T]) (*T, error) {
	key := buildKey(keyPrefix, id)

	raw, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if raw == "" {
			// negative sentinel: already checked, absent in store
			return nil, ErrNotFound
		}
		return unmarshalValue[T](raw)
	case err != redis.Nil:
		return nil, infra.WrapRepoErr(infra.KindUnavailable, "cache: GET failed", err)
	}

	value, err := load(ctx, id)
	if err != nil {
		return nil, err
	}
	if value == nil {
		if err := c.rdb.Set(ctx, key, "", c.nullTTL).Err(); err != nil {
			c.logger.Warn("failed to write negative cache entry", "key", key, "error", err)
		}
		return nil, ErrNotFound
	}

	if err := c.Set(ctx, key, value, ttl); err != nil {
		// serve the loaded value even when the write-back fails
		c.logger.Warn("failed to write cache entry", "key", key, "error", err)
	}
	return value, nil
}

// QueryWithMutex behaves like QueryWithPassThrough but serializes the
// rebuild of one key behind a distributed mutex: under concurrent
// misses exactly one caller reaches the loader, the rest re-read the
// cache after a short sleep.
func QueryWithMutex[T any](ctx context.Context, c *Client, keyPrefix string, id int64, ttl time.Duration, load Loader[T]) (*T, error) {
	key := buildKey(keyPrefix, id)

	for attempt := 0; attempt < maxMutexAttempts; attempt++ {
		raw, err := c.rdb.Get(ctx, key).Result()
		switch {
		case err == nil:
			if raw == "" {
				return nil, ErrNotFound
			}
			return unmarshalValue[T](raw)
		case err != redis.Nil:
			return nil, infra.WrapRepoErr(infra.KindUnavailable, "cache: GET failed", err)
		}

		lock := redlock.New(c.rdb, key)
		acquired, err := lock.TryLock(ctx, rebuildLockLease)
		if err != nil {
			return nil, infra.WrapRepoErr(infra.KindUnavailable, "cache: lock attempt failed", err)
		}
		if !acquired {
			// another caller is rebuilding; back off and re-read
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(mutexRetryDelay):
			}
			continue
		}

		value, err := rebuildUnderMutex(ctx, c, lock, key, id, ttl, load)
		if err != nil {
			return nil, err
		}
		if value == nil {
			return nil, ErrNotFound
		}
		return value, nil
	}

	return nil, redlock.ErrLockNotAcquired
}

// rebuildUnderMutex holds the lock for the whole critical section and
// releases it however the section exits.
func rebuildUnderMutex[T any](ctx context.Context, c *Client, lock *redlock.Lock, key string, id int64, ttl time.Duration, load Loader[T]) (*T, error) {
	// release failure is not surfaced: a stuck lock self-heals via its lease
	defer c.unlockRebuild(lock, key)

	// double-check: another holder may have rebuilt the entry while we
	// were acquiring the lock
	raw, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if raw == "" {
			return nil, nil
		}
		return unmarshalValue[T](raw)
	case err != redis.Nil:
		return nil, infra.WrapRepoErr(infra.KindUnavailable, "cache: GET failed", err)
	}

	value, err := load(ctx, id)
	if err != nil {
		return nil, err
	}
	if value == nil {
		if err := c.rdb.Set(ctx, key, "", c.nullTTL).Err(); err != nil {
			c.logger.Warn("failed to write negative cache entry", "key", key, "error", err)
		}
		return nil, nil
	}

	if err := c.Set(ctx, key, value, ttl); err != nil {
		c.logger.Warn("failed to write cache entry", "key", key, "error", err)
	}
	return value, nil
}

// QueryWithLogicalExpire serves pre-populated hot keys. A physically
// missing key means not found: this strategy never self-heals a cold
// key. A stale entry is returned immediately while at most one rebuild
// per expiry window runs on the background pool.
func QueryWithLogicalExpire[T any](ctx context.Context, c *Client, keyPrefix string, id int64, ttl time.Duration, load Loader[T]) (*T, error) {
	key := buildKey(keyPrefix, id)

	raw, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindUnavailable, "cache: GET failed", err)
	}

	env, value, err := unmarshalEnvelope[T](raw)
	if err != nil {
		return nil, err
	}
	if env.ExpireTime.After(c.clock.Now()) {
		return value, nil
	}

	// Stale. The caller gets the old value either way; the rebuild, if
	// we win the lock, happens off the request path.
	lock := redlock.New(c.rdb, key)
	acquired, err := lock.TryLock(ctx, rebuildLockLease)
	if err != nil {
		c.logger.Warn("rebuild lock attempt failed", "key", key, "error", err)
		return value, nil
	}
	if !acquired {
		return value, nil
	}

	// double-check under the lock: the previous holder may have
	// refreshed the entry between our staleness check and TryLock
	if raw, err := c.rdb.Get(ctx, key).Result(); err == nil {
		env2, fresh, err := unmarshalEnvelope[T](raw)
		if err == nil && env2.ExpireTime.After(c.clock.Now()) {
			c.unlockRebuild(lock, key)
			return fresh, nil
		}
	}

	scheduleRebuild(c, lock, key, id, ttl, load)
	return value, nil
}

// scheduleRebuild hands the refresh to the bounded pool. A saturated
// pool rejects the submission: the entry stays stale and the next
// expiry window retries, which beats queueing unboundedly.
func scheduleRebuild[T any](c *Client, lock *redlock.Lock, key string, id int64, ttl time.Duration, load Loader[T]) {
	err := c.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), rebuildLockLease)
		defer cancel()
		defer c.unlockRebuild(lock, key)

		value, err := load(ctx, id)
		if err != nil {
			// swallowed: the next natural expiry retries
			c.logger.Error("cache rebuild failed", "key", key, "error", err)
			return
		}
		if err := c.SetWithLogicalExpire(ctx, key, value, ttl); err != nil {
			c.logger.Error("cache rebuild write failed", "key", key, "error", err)
		}
	})
	if err != nil {
		c.logger.Error("cache rebuild submission rejected", "key", key, "error", err)
		c.unlockRebuild(lock, key)
	}
}

func (c *Client) unlockRebuild(lock *redlock.Lock, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := lock.Unlock(ctx); err != nil {
		c.logger.Warn("failed to release rebuild lock", "key", key, "error", err)
	}
}

func buildKey(prefix string, id int64) string {
	return prefix + formatID(id)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func unmarshalValue[T any](raw string) (*T, error) {
	var value T
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, errs.Mark(err, ErrUnmarshal)
	}
	return &value, nil
}

func unmarshalEnvelope[T any](raw string) (*envelope, *T, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, nil, errs.Mark(err, ErrUnmarshal)
	}
	var value T
	if err := json.Unmarshal(env.Data, &value); err != nil {
		return nil, nil, errs.Mark(err, ErrUnmarshal)
	}
	return &env, &value, nil
}
