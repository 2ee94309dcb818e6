package components

import (
	"context"
	"log/slog"

	"flashsale-starter/internal/infra/stream"
	"flashsale-starter/internal/pkg/config"
	"flashsale-starter/internal/usecase/commands"
	"flashsale-starter/internal/worker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var WorkerModule = fx.Module("worker",
	fx.Provide(
		NewOrderStream,
		NewFulfillmentConsumer,
	),
	fx.Invoke(
		StartFulfillmentConsumer,
	),
)

func NewOrderStream(rdb *redis.Client, cfg config.Config) *stream.OrderStream {
	return stream.NewOrderStream(rdb, cfg.Seckill.Stream, cfg.Seckill.Group, cfg.Seckill.Consumer, cfg.Seckill.BlockTimeout)
}

func NewFulfillmentConsumer(orderStream *stream.OrderStream, seckill commands.SeckillCommands, logger *slog.Logger, cfg config.Config) *worker.FulfillmentConsumer {
	return worker.NewFulfillmentConsumer(orderStream, seckill, logger, cfg.Seckill.PendingBackoff)
}

// StartFulfillmentConsumer ties the single consumer goroutine to the
// application lifecycle: started after Redis is up, stopped (and
// drained) before the clients close.
func StartFulfillmentConsumer(lc fx.Lifecycle, consumer *worker.FulfillmentConsumer) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return consumer.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			cancel()
			consumer.Stop()
			return nil
		},
	})
}
