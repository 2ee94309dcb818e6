package repository

import (
	"context"
	"errors"

	"flashsale-starter/internal/domain/voucher"
	"flashsale-starter/internal/infra"

	"github.com/jackc/pgx/v5"
)

type VoucherRepository struct {
	db DBTX
}

func NewVoucherRepository(db DBTX) *VoucherRepository {
	return &VoucherRepository{db: db}
}

func (r *VoucherRepository) FindSeckillByID(ctx context.Context, voucherID int64) (*voucher.SeckillVoucher, error) {
	const query = `
		SELECT voucher_id, stock, begin_time, end_time
		FROM seckill_vouchers
		WHERE voucher_id = $1`

	var v voucher.SeckillVoucher
	err := r.db.QueryRow(ctx, query, voucherID).Scan(&v.VoucherID, &v.Stock, &v.BeginTime, &v.EndTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to find seckill voucher", err)
	}
	return &v, nil
}

// DecrementStock is the only mutation path for stock. The WHERE guard
// is the optimistic check that keeps stock from ever going negative,
// whatever the admission counters claimed.
func (r *VoucherRepository) DecrementStock(ctx context.Context, voucherID int64) (bool, error) {
	const query = `
		UPDATE seckill_vouchers
		SET stock = stock - 1
		WHERE voucher_id = $1 AND stock > 0`

	tag, err := r.db.Exec(ctx, query, voucherID)
	if err != nil {
		return false, infra.WrapRepoErr(infra.KindDBFailure, "failed to decrement stock", err)
	}
	return tag.RowsAffected() > 0, nil
}
