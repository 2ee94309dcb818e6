//go:build unit

package worker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"flashsale-starter/internal/infra"
	"flashsale-starter/internal/infra/stream"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCommitter records commits and can fail a configured number of
// attempts first.
type stubCommitter struct {
	mu        sync.Mutex
	failures  int
	committed []stream.OrderIntent
}

func (s *stubCommitter) CommitOrder(_ context.Context, intent stream.OrderIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return infra.WrapRepoErr(infra.KindDBFailure, "store unavailable", nil)
	}
	s.committed = append(s.committed, intent)
	return nil
}

func (s *stubCommitter) committedIntents() []stream.OrderIntent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]stream.OrderIntent(nil), s.committed...)
}

type workerFixture struct {
	rdb       *redis.Client
	committer *stubCommitter
}

func startConsumer(t *testing.T, failures int) *workerFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	orderStream := stream.NewOrderStream(rdb, "stream.orders", "g1", "c1", 10*time.Millisecond)
	committer := &stubCommitter{failures: failures}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	consumer := NewFulfillmentConsumer(orderStream, committer, logger, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, consumer.Start(ctx))
	t.Cleanup(func() {
		cancel()
		consumer.Stop()
	})

	return &workerFixture{rdb: rdb, committer: committer}
}

func (f *workerFixture) enqueue(t *testing.T, orderID, userID, voucherID string) {
	t.Helper()
	err := f.rdb.XAdd(context.Background(), &redis.XAddArgs{
		Stream: "stream.orders",
		Values: map[string]any{"id": orderID, "userId": userID, "voucherId": voucherID},
	}).Err()
	require.NoError(t, err)
}

func (f *workerFixture) pendingCount() int64 {
	res, err := f.rdb.XPending(context.Background(), "stream.orders", "g1").Result()
	if err != nil {
		return -1
	}
	return res.Count
}

func TestFulfillmentConsumer(t *testing.T) {
	t.Run("commits and acks live messages", func(t *testing.T) {
		f := startConsumer(t, 0)
		f.enqueue(t, "1001", "7", "3")

		require.Eventually(t, func() bool {
			return len(f.committer.committedIntents()) == 1
		}, 2*time.Second, 10*time.Millisecond)

		got := f.committer.committedIntents()[0]
		assert.Equal(t, stream.OrderIntent{OrderID: 1001, UserID: 7, VoucherID: 3}, got)

		require.Eventually(t, func() bool {
			return f.pendingCount() == 0
		}, 2*time.Second, 10*time.Millisecond, "settled messages must be acked")
	})

	t.Run("preserves stream order across messages", func(t *testing.T) {
		f := startConsumer(t, 0)
		f.enqueue(t, "1001", "7", "3")
		f.enqueue(t, "1002", "8", "3")
		f.enqueue(t, "1003", "9", "3")

		require.Eventually(t, func() bool {
			return len(f.committer.committedIntents()) == 3
		}, 2*time.Second, 10*time.Millisecond)

		intents := f.committer.committedIntents()
		assert.Equal(t, int64(1001), intents[0].OrderID)
		assert.Equal(t, int64(1002), intents[1].OrderID)
		assert.Equal(t, int64(1003), intents[2].OrderID)
	})

	t.Run("transient failure keeps the message pending until committed", func(t *testing.T) {
		f := startConsumer(t, 2)
		f.enqueue(t, "1001", "7", "3")

		// the first attempts fail; the pending sweep retries the same
		// entry until the commit lands, and only then acks it
		require.Eventually(t, func() bool {
			return len(f.committer.committedIntents()) == 1
		}, 2*time.Second, 10*time.Millisecond)
		require.Eventually(t, func() bool {
			return f.pendingCount() == 0
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("malformed entry is dropped without a commit", func(t *testing.T) {
		f := startConsumer(t, 0)
		err := f.rdb.XAdd(context.Background(), &redis.XAddArgs{
			Stream: "stream.orders",
			Values: map[string]any{"id": "garbage", "userId": "7", "voucherId": "3"},
		}).Err()
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return f.pendingCount() == 0
		}, 2*time.Second, 10*time.Millisecond, "poison entries must be acked away")
		assert.Empty(t, f.committer.committedIntents())
	})

	t.Run("poison entry does not wedge later messages", func(t *testing.T) {
		f := startConsumer(t, 0)
		err := f.rdb.XAdd(context.Background(), &redis.XAddArgs{
			Stream: "stream.orders",
			Values: map[string]any{"broken": "yes"},
		}).Err()
		require.NoError(t, err)
		f.enqueue(t, "1002", "8", "3")

		require.Eventually(t, func() bool {
			return len(f.committer.committedIntents()) == 1
		}, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, int64(1002), f.committer.committedIntents()[0].OrderID)
	})
}
