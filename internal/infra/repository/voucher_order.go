package repository

import (
	"context"
	"errors"

	"flashsale-starter/internal/domain/voucher"
	"flashsale-starter/internal/infra"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgErrCodeUniqueViolation = "23505"

type VoucherOrderRepository struct {
	db DBTX
}

func NewVoucherOrderRepository(db DBTX) *VoucherOrderRepository {
	return &VoucherOrderRepository{db: db}
}

func (r *VoucherOrderRepository) CountByUserAndVoucher(ctx context.Context, userID, voucherID int64) (int64, error) {
	const query = `
		SELECT count(*)
		FROM voucher_orders
		WHERE user_id = $1 AND voucher_id = $2`

	var count int64
	if err := r.db.QueryRow(ctx, query, userID, voucherID).Scan(&count); err != nil {
		return 0, infra.WrapRepoErr(infra.KindDBFailure, "failed to count orders", err)
	}
	return count, nil
}

func (r *VoucherOrderRepository) Create(ctx context.Context, order *voucher.Order) error {
	const query = `
		INSERT INTO voucher_orders (id, user_id, voucher_id, created_at)
		VALUES ($1, $2, $3, now())`

	_, err := r.db.Exec(ctx, query, order.ID, order.UserID, order.VoucherID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgErrCodeUniqueViolation {
			return infra.WrapRepoErr(infra.KindDuplicateKey, "order already exists", err)
		}
		return infra.WrapRepoErr(infra.KindDBFailure, "failed to create order", err)
	}
	return nil
}
