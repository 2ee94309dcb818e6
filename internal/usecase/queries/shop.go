package queries

import (
	"context"
	"errors"

	"flashsale-starter/internal/domain/shop"
	"flashsale-starter/internal/infra/cache"
	"flashsale-starter/internal/pkg/config"
	"flashsale-starter/internal/pkg/errs"
)

var (
	ErrShopNotFound    = errs.New("shop not found")
	ErrUnknownStrategy = errs.New("unknown cache strategy")
)

const shopKeyPrefix = "cache:shop:"

type ShopReadStore interface {
	FindByID(ctx context.Context, id int64) (*shop.Shop, error)
}

type ShopQueries interface {
	GetByID(ctx context.Context, id int64) (*shop.Shop, error)
}

// shopQueriesImpl reads shops through the cache resilience layer. The
// strategy is a deployment decision: stable low-traffic catalogs run
// pass_through, contended keys run mutex, and single ultra-hot keys
// run logical_expire behind a warm-up.
type shopQueriesImpl struct {
	store ShopReadStore
	cache *cache.Client
	cfg   config.CacheConfig
}

func NewShopQueries(store ShopReadStore, cacheClient *cache.Client, cfg config.CacheConfig) ShopQueries {
	return &shopQueriesImpl{store: store, cache: cacheClient, cfg: cfg}
}

func (q *shopQueriesImpl) GetByID(ctx context.Context, id int64) (*shop.Shop, error) {
	var (
		s   *shop.Shop
		err error
	)

	switch q.cfg.Strategy {
	case "pass_through":
		s, err = cache.QueryWithPassThrough(ctx, q.cache, shopKeyPrefix, id, q.cfg.ShopTTL, q.store.FindByID)
	case "mutex":
		s, err = cache.QueryWithMutex(ctx, q.cache, shopKeyPrefix, id, q.cfg.ShopTTL, q.store.FindByID)
	case "logical_expire":
		s, err = cache.QueryWithLogicalExpire(ctx, q.cache, shopKeyPrefix, id, q.cfg.LogicalTTL, q.store.FindByID)
	default:
		return nil, errs.Mark(errs.New("strategy "+q.cfg.Strategy), ErrUnknownStrategy)
	}

	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrShopNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
