//go:build unit

package cache

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"flashsale-starter/internal/pkg/clock"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEntity struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type testFixture struct {
	client *Client
	rdb    *redis.Client
	mr     *miniredis.Miniredis
	clk    *clock.MockClock
}

func newFixture(t *testing.T, workers, queue int) *testFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pool := NewRebuildPool(workers, queue, logger)
	t.Cleanup(pool.Close)

	clk := clock.NewMockClock(time.Date(2023, 5, 10, 12, 0, 0, 0, time.UTC))
	client := NewClient(rdb, clk, logger, pool, 2*time.Minute)

	return &testFixture{client: client, rdb: rdb, mr: mr, clk: clk}
}

// countingLoader returns value for every present id and nil for id 404.
func countingLoader(calls *atomic.Int64, delay time.Duration) Loader[testEntity] {
	return func(_ context.Context, id int64) (*testEntity, error) {
		calls.Add(1)
		if delay > 0 {
			time.Sleep(delay)
		}
		if id == 404 {
			return nil, nil
		}
		return &testEntity{ID: id, Name: "loaded"}, nil
	}
}

func TestQueryWithPassThrough(t *testing.T) {
	ctx := context.Background()

	t.Run("miss loads and caches", func(t *testing.T) {
		f := newFixture(t, 1, 4)
		var calls atomic.Int64

		got, err := QueryWithPassThrough(ctx, f.client, "cache:test:", 1, time.Minute, countingLoader(&calls, 0))
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.ID)
		assert.Equal(t, int64(1), calls.Load())

		// second read is served from the cache
		got, err = QueryWithPassThrough(ctx, f.client, "cache:test:", 1, time.Minute, countingLoader(&calls, 0))
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.ID)
		assert.Equal(t, int64(1), calls.Load())
	})

	t.Run("absent id is negative cached", func(t *testing.T) {
		f := newFixture(t, 1, 4)
		var calls atomic.Int64

		_, err := QueryWithPassThrough(ctx, f.client, "cache:test:", 404, time.Minute, countingLoader(&calls, 0))
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, int64(1), calls.Load())

		// sentinel absorbs the repeat miss without touching the loader
		_, err = QueryWithPassThrough(ctx, f.client, "cache:test:", 404, time.Minute, countingLoader(&calls, 0))
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, int64(1), calls.Load())

		raw, err := f.mr.Get("cache:test:404")
		require.NoError(t, err)
		assert.Equal(t, "", raw)
		ttl := f.mr.TTL("cache:test:404")
		assert.Greater(t, ttl, time.Duration(0), "sentinel must carry its own short TTL")
	})

	t.Run("concurrent misses end in a single negative entry", func(t *testing.T) {
		f := newFixture(t, 1, 4)
		var calls atomic.Int64

		const callers = 8
		var wg sync.WaitGroup
		wg.Add(callers)
		for i := 0; i < callers; i++ {
			go func() {
				defer wg.Done()
				_, err := QueryWithPassThrough(ctx, f.client, "cache:test:", 404, time.Minute, countingLoader(&calls, 5*time.Millisecond))
				assert.ErrorIs(t, err, ErrNotFound)
			}()
		}
		wg.Wait()

		// no breakdown protection here: the loader may be hit by every
		// caller, but never more than that
		assert.LessOrEqual(t, calls.Load(), int64(callers))
		raw, err := f.mr.Get("cache:test:404")
		require.NoError(t, err)
		assert.Equal(t, "", raw)
	})
}

func TestQueryWithMutex(t *testing.T) {
	ctx := context.Background()

	t.Run("cold key rebuild is serialized", func(t *testing.T) {
		f := newFixture(t, 1, 4)
		var calls atomic.Int64

		const callers = 8
		var wg sync.WaitGroup
		wg.Add(callers)
		for i := 0; i < callers; i++ {
			go func() {
				defer wg.Done()
				got, err := QueryWithMutex(ctx, f.client, "cache:test:", 7, time.Minute, countingLoader(&calls, 20*time.Millisecond))
				assert.NoError(t, err)
				assert.Equal(t, int64(7), got.ID)
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(1), calls.Load(), "exactly one caller may reach the loader")
	})

	t.Run("absent id is negative cached under the lock", func(t *testing.T) {
		f := newFixture(t, 1, 4)
		var calls atomic.Int64

		_, err := QueryWithMutex(ctx, f.client, "cache:test:", 404, time.Minute, countingLoader(&calls, 0))
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = QueryWithMutex(ctx, f.client, "cache:test:", 404, time.Minute, countingLoader(&calls, 0))
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, int64(1), calls.Load())
	})

	t.Run("rebuild lock is released after the critical section", func(t *testing.T) {
		f := newFixture(t, 1, 4)
		var calls atomic.Int64

		_, err := QueryWithMutex(ctx, f.client, "cache:test:", 7, time.Minute, countingLoader(&calls, 0))
		require.NoError(t, err)
		assert.False(t, f.mr.Exists("lock:cache:test:7"))
	})
}

func TestQueryWithLogicalExpire(t *testing.T) {
	ctx := context.Background()

	t.Run("physically missing key is not self-healed", func(t *testing.T) {
		f := newFixture(t, 1, 4)
		var calls atomic.Int64

		_, err := QueryWithLogicalExpire(ctx, f.client, "cache:test:", 1, time.Minute, countingLoader(&calls, 0))
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, int64(0), calls.Load())
	})

	t.Run("fresh entry served without loader", func(t *testing.T) {
		f := newFixture(t, 1, 4)
		var calls atomic.Int64

		require.NoError(t, f.client.SetWithLogicalExpire(ctx, "cache:test:1", &testEntity{ID: 1, Name: "warm"}, time.Minute))

		got, err := QueryWithLogicalExpire(ctx, f.client, "cache:test:", 1, time.Minute, countingLoader(&calls, 0))
		require.NoError(t, err)
		assert.Equal(t, "warm", got.Name)
		assert.Equal(t, int64(0), calls.Load())
	})

	t.Run("stale entry is served immediately and rebuilt in background", func(t *testing.T) {
		f := newFixture(t, 1, 4)
		var calls atomic.Int64

		require.NoError(t, f.client.SetWithLogicalExpire(ctx, "cache:test:1", &testEntity{ID: 1, Name: "stale"}, time.Minute))
		f.clk.Advance(2 * time.Minute)

		loaderRelease := make(chan struct{})
		loader := func(_ context.Context, id int64) (*testEntity, error) {
			calls.Add(1)
			<-loaderRelease
			return &testEntity{ID: id, Name: "fresh"}, nil
		}

		// the read returns the stale value before the rebuild finishes
		got, err := QueryWithLogicalExpire(ctx, f.client, "cache:test:", 1, time.Minute, loader)
		require.NoError(t, err)
		assert.Equal(t, "stale", got.Name)

		close(loaderRelease)
		require.Eventually(t, func() bool {
			raw, err := f.mr.Get("cache:test:1")
			if err != nil {
				return false
			}
			var env envelope
			if json.Unmarshal([]byte(raw), &env) != nil {
				return false
			}
			var e testEntity
			return json.Unmarshal(env.Data, &e) == nil && e.Name == "fresh"
		}, time.Second, 5*time.Millisecond)

		assert.Equal(t, int64(1), calls.Load())
		assert.Eventually(t, func() bool {
			return !f.mr.Exists("lock:cache:test:1")
		}, time.Second, 5*time.Millisecond, "rebuild lock must be released")
	})

	t.Run("one rebuild per expiry window under concurrency", func(t *testing.T) {
		f := newFixture(t, 2, 8)
		var calls atomic.Int64

		require.NoError(t, f.client.SetWithLogicalExpire(ctx, "cache:test:1", &testEntity{ID: 1, Name: "stale"}, time.Minute))
		f.clk.Advance(2 * time.Minute)

		const callers = 8
		var wg sync.WaitGroup
		wg.Add(callers)
		for i := 0; i < callers; i++ {
			go func() {
				defer wg.Done()
				got, err := QueryWithLogicalExpire(ctx, f.client, "cache:test:", 1, time.Minute, countingLoader(&calls, 10*time.Millisecond))
				assert.NoError(t, err)
				assert.NotNil(t, got)
			}()
		}
		wg.Wait()

		require.Eventually(t, func() bool {
			return !f.mr.Exists("lock:cache:test:1")
		}, time.Second, 5*time.Millisecond)
		assert.LessOrEqual(t, calls.Load(), int64(1), "at most one rebuild may run per expiry window")
	})

	t.Run("saturated pool rejects the rebuild and releases the lock", func(t *testing.T) {
		mrFixture := newFixture(t, 1, 1)
		var calls atomic.Int64

		// occupy the single worker and fill the queue
		started := make(chan struct{})
		blocker := make(chan struct{})
		require.NoError(t, mrFixture.client.pool.Submit(func() {
			close(started)
			<-blocker
		}))
		<-started
		require.NoError(t, mrFixture.client.pool.Submit(func() {}))
		defer close(blocker)

		require.NoError(t, mrFixture.client.SetWithLogicalExpire(ctx, "cache:test:1", &testEntity{ID: 1, Name: "stale"}, time.Minute))
		mrFixture.clk.Advance(2 * time.Minute)

		got, err := QueryWithLogicalExpire(ctx, mrFixture.client, "cache:test:", 1, time.Minute, countingLoader(&calls, 0))
		require.NoError(t, err)
		assert.Equal(t, "stale", got.Name, "caller still gets the stale value")
		assert.Equal(t, int64(0), calls.Load(), "no rebuild may run when the pool is full")
		assert.False(t, mrFixture.mr.Exists("lock:cache:test:1"), "rejected submission must release the lock")
	})
}

func TestRebuildPool(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("executes submitted tasks", func(t *testing.T) {
		pool := NewRebuildPool(2, 4, logger)
		defer pool.Close()

		var ran atomic.Int64
		var wg sync.WaitGroup
		wg.Add(4)
		for i := 0; i < 4; i++ {
			require.NoError(t, pool.Submit(func() {
				ran.Add(1)
				wg.Done()
			}))
		}
		wg.Wait()
		assert.Equal(t, int64(4), ran.Load())
	})

	t.Run("full queue fails loudly", func(t *testing.T) {
		pool := NewRebuildPool(1, 1, logger)
		defer pool.Close()

		started := make(chan struct{})
		blocker := make(chan struct{})
		require.NoError(t, pool.Submit(func() {
			close(started)
			<-blocker
		}))
		<-started
		require.NoError(t, pool.Submit(func() {}))

		err := pool.Submit(func() {})
		assert.ErrorIs(t, err, ErrRebuildQueueFull)
		close(blocker)
	})

	t.Run("closed pool rejects submissions", func(t *testing.T) {
		pool := NewRebuildPool(1, 1, logger)
		pool.Close()
		assert.ErrorIs(t, pool.Submit(func() {}), ErrPoolClosed)
	})

	t.Run("survives a panicking task", func(t *testing.T) {
		pool := NewRebuildPool(1, 2, logger)
		defer pool.Close()

		require.NoError(t, pool.Submit(func() { panic("rebuild blew up") }))

		done := make(chan struct{})
		require.Eventually(t, func() bool {
			return pool.Submit(func() { close(done) }) == nil
		}, time.Second, 5*time.Millisecond)
		<-done
	})
}
