package components

import (
	"flashsale-starter/internal/handler"
	"flashsale-starter/internal/handler/api"
	"flashsale-starter/internal/pkg/config"
	"flashsale-starter/internal/usecase/commands"

	"go.uber.org/fx"
)

var HandlerModule = fx.Module("handler",
	fx.Provide(
		api.NewShopHandler,
		NewVoucherHandler,
	),
	fx.Invoke(
		handler.NewRouter,
	),
)

func NewVoucherHandler(seckill commands.SeckillCommands, shops commands.ShopCommands, cfg config.Config) *api.VoucherHandler {
	return api.NewVoucherHandler(seckill, shops, cfg.Cache)
}
