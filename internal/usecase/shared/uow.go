package shared

import (
	"context"

	"flashsale-starter/internal/domain/voucher"
)

type UnitOfWork interface {
	// Within: Full transaction for write operations with retry logic
	Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Tx interface {
	Vouchers() VoucherRepository
	Orders() VoucherOrderRepository
}

type VoucherRepository interface {
	FindSeckillByID(ctx context.Context, voucherID int64) (*voucher.SeckillVoucher, error)
	DecrementStock(ctx context.Context, voucherID int64) (bool, error)
}

type VoucherOrderRepository interface {
	CountByUserAndVoucher(ctx context.Context, userID, voucherID int64) (int64, error)
	Create(ctx context.Context, order *voucher.Order) error
}
