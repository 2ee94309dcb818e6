package components

import (
	"log/slog"

	"flashsale-starter/internal/infra/cache"
	"flashsale-starter/internal/infra/sequence"
	"flashsale-starter/internal/pkg/clock"
	"flashsale-starter/internal/pkg/config"
	"flashsale-starter/internal/usecase/commands"
	"flashsale-starter/internal/usecase/queries"
	"flashsale-starter/internal/usecase/shared"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var UseCaseModule = fx.Module("usecase",
	usecaseBaseOption,
	usecaseCommandsModule,
	usecaseQueriesModule,
)

var usecaseBaseOption = fx.Provide(
	clock.NewRealClock,
	NewRebuildPool,
	NewCacheClient,
	fx.Annotate(
		sequence.NewGenerator,
		fx.As(new(commands.IDGenerator)),
	),
)

var usecaseCommandsModule = fx.Module("usecase/commands",
	fx.Provide(
		NewSeckillCommands,
		NewShopCommands,
	),
)

var usecaseQueriesModule = fx.Module("usecase/queries",
	fx.Provide(
		NewShopQueries,
	),
)

func NewRebuildPool(lc fx.Lifecycle, cfg config.Config, logger *slog.Logger) *cache.RebuildPool {
	pool := cache.NewRebuildPool(cfg.Cache.RebuildWorkers, cfg.Cache.RebuildQueue, logger)
	lc.Append(fx.StopHook(pool.Close))
	return pool
}

func NewCacheClient(rdb *redis.Client, clk clock.Clock, logger *slog.Logger, pool *cache.RebuildPool, cfg config.Config) *cache.Client {
	return cache.NewClient(rdb, clk, logger, pool, cfg.Cache.NullTTL)
}

func NewSeckillCommands(
	rdb *redis.Client,
	ids commands.IDGenerator,
	unit shared.UnitOfWork,
	vouchers commands.VoucherReadStore,
	logger *slog.Logger,
	cfg config.Config,
) commands.SeckillCommands {
	return commands.NewSeckillCommands(rdb, ids, unit, vouchers, logger, cfg.Seckill)
}

func NewShopCommands(store commands.ShopWriteStore, cacheClient *cache.Client) commands.ShopCommands {
	return commands.NewShopCommands(store, cacheClient)
}

func NewShopQueries(store queries.ShopReadStore, cacheClient *cache.Client, cfg config.Config) queries.ShopQueries {
	return queries.NewShopQueries(store, cacheClient, cfg.Cache)
}
