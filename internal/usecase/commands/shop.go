package commands

import (
	"context"
	"strconv"
	"time"

	"flashsale-starter/internal/domain/shop"
	"flashsale-starter/internal/infra/cache"
	"flashsale-starter/internal/pkg/errs"
)

var ErrShopNotFound = errs.New("shop not found")

const shopKeyPrefix = "cache:shop:"

type ShopWriteStore interface {
	FindByID(ctx context.Context, id int64) (*shop.Shop, error)
	Update(ctx context.Context, s *shop.Shop) error
}

type ShopCommands interface {
	// Update writes the store first, then invalidates the cache entry.
	// The order matters: deleting first would let a concurrent reader
	// repopulate the cache with the old row.
	Update(ctx context.Context, s *shop.Shop) error

	// WarmUp preloads a logical-expiry entry for a hot shop. The
	// logical-expire read strategy never self-heals a missing key, so
	// hot keys are seeded through this path before traffic arrives.
	WarmUp(ctx context.Context, id int64, ttl time.Duration) error
}

type shopCommandsImpl struct {
	store ShopWriteStore
	cache *cache.Client
}

func NewShopCommands(store ShopWriteStore, cacheClient *cache.Client) ShopCommands {
	return &shopCommandsImpl{store: store, cache: cacheClient}
}

func (c *shopCommandsImpl) Update(ctx context.Context, s *shop.Shop) error {
	if err := c.store.Update(ctx, s); err != nil {
		return err
	}
	return c.cache.Delete(ctx, shopKeyPrefix+strconv.FormatInt(s.ID, 10))
}

func (c *shopCommandsImpl) WarmUp(ctx context.Context, id int64, ttl time.Duration) error {
	s, err := c.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if s == nil {
		return ErrShopNotFound
	}
	return c.cache.SetWithLogicalExpire(ctx, shopKeyPrefix+strconv.FormatInt(id, 10), s, ttl)
}
