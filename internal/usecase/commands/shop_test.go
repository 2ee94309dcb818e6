//go:build unit

package commands

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"flashsale-starter/internal/domain/shop"
	"flashsale-starter/internal/infra"
	"flashsale-starter/internal/infra/cache"
	"flashsale-starter/internal/pkg/clock"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockShopStore struct{ mock.Mock }

func (m *mockShopStore) FindByID(ctx context.Context, id int64) (*shop.Shop, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*shop.Shop), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockShopStore) Update(ctx context.Context, s *shop.Shop) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func newShopCommands(t *testing.T) (ShopCommands, *mockShopStore, *miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pool := cache.NewRebuildPool(1, 4, logger)
	t.Cleanup(pool.Close)

	clk := clock.NewMockClock(time.Date(2023, 5, 10, 12, 0, 0, 0, time.UTC))
	cacheClient := cache.NewClient(rdb, clk, logger, pool, 2*time.Minute)

	store := &mockShopStore{}
	return NewShopCommands(store, cacheClient), store, mr, rdb
}

func TestShopUpdate(t *testing.T) {
	ctx := context.Background()
	sample := &shop.Shop{ID: 1, Name: "cafe"}

	t.Run("writes the store then invalidates the cache", func(t *testing.T) {
		cmd, store, mr, rdb := newShopCommands(t)
		require.NoError(t, rdb.Set(ctx, "cache:shop:1", `{"id":1,"name":"old"}`, 0).Err())
		store.On("Update", mock.Anything, sample).Return(nil)

		require.NoError(t, cmd.Update(ctx, sample))
		assert.False(t, mr.Exists("cache:shop:1"))
		store.AssertExpectations(t)
	})

	t.Run("store failure leaves the cache entry alone", func(t *testing.T) {
		cmd, store, mr, rdb := newShopCommands(t)
		require.NoError(t, rdb.Set(ctx, "cache:shop:1", `{"id":1,"name":"old"}`, 0).Err())
		store.On("Update", mock.Anything, sample).
			Return(infra.WrapRepoErr(infra.KindDBFailure, "write failed", nil))

		err := cmd.Update(ctx, sample)
		assert.True(t, infra.IsKind(err, infra.KindDBFailure))
		assert.True(t, mr.Exists("cache:shop:1"), "a failed write must not evict the entry")
	})
}

func TestShopWarmUp(t *testing.T) {
	ctx := context.Background()

	t.Run("seeds a logical-expiry entry", func(t *testing.T) {
		cmd, store, mr, _ := newShopCommands(t)
		store.On("FindByID", mock.Anything, int64(1)).
			Return(&shop.Shop{ID: 1, Name: "cafe"}, nil)

		require.NoError(t, cmd.WarmUp(ctx, 1, 20*time.Second))

		raw, err := mr.Get("cache:shop:1")
		require.NoError(t, err)
		assert.Contains(t, raw, `"expireTime"`)
		assert.Contains(t, raw, `"cafe"`)
		assert.Equal(t, time.Duration(0), mr.TTL("cache:shop:1"), "warmed entries have no physical TTL")
	})

	t.Run("unknown shop", func(t *testing.T) {
		cmd, store, _, _ := newShopCommands(t)
		store.On("FindByID", mock.Anything, int64(99)).Return(nil, nil)

		err := cmd.WarmUp(ctx, 99, 20*time.Second)
		assert.ErrorIs(t, err, ErrShopNotFound)
	})
}
