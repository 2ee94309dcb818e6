package components

import (
	"flashsale-starter/internal/infra/repository"
	"flashsale-starter/internal/infra/uow"
	"flashsale-starter/internal/usecase/commands"
	"flashsale-starter/internal/usecase/queries"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
)

var RepositoryModule = fx.Module("repository",
	fx.Provide(
		NewDBTX,
		uow.NewPostgresUoW,
		fx.Annotate(
			repository.NewShopRepository,
			fx.As(new(queries.ShopReadStore)),
			fx.As(new(commands.ShopWriteStore)),
		),
		fx.Annotate(
			repository.NewVoucherRepository,
			fx.As(new(commands.VoucherReadStore)),
		),
	),
)

func NewDBTX(pool *pgxpool.Pool) repository.DBTX {
	return pool
}
