package repository

import (
	"context"
	"errors"

	"flashsale-starter/internal/domain/shop"
	"flashsale-starter/internal/infra"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx, so every repository
// works both standalone and inside a unit-of-work transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type ShopRepository struct {
	db DBTX
}

func NewShopRepository(db DBTX) *ShopRepository {
	return &ShopRepository{db: db}
}

func (r *ShopRepository) FindByID(ctx context.Context, id int64) (*shop.Shop, error) {
	const query = `
		SELECT id, name, type_id, address, avg_price, sold, comments, score, open_hours, created_at, updated_at
		FROM shops
		WHERE id = $1`

	var s shop.Shop
	err := r.db.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Name, &s.TypeID, &s.Address, &s.AvgPrice,
		&s.Sold, &s.Comments, &s.Score, &s.OpenHours,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindDBFailure, "failed to find shop", err)
	}
	return &s, nil
}

func (r *ShopRepository) Update(ctx context.Context, s *shop.Shop) error {
	const query = `
		UPDATE shops
		SET name = $2, type_id = $3, address = $4, avg_price = $5,
		    open_hours = $6, updated_at = now()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, s.ID, s.Name, s.TypeID, s.Address, s.AvgPrice, s.OpenHours)
	if err != nil {
		return infra.WrapRepoErr(infra.KindDBFailure, "failed to update shop", err)
	}
	if tag.RowsAffected() == 0 {
		return infra.WrapRepoErr(infra.KindNotFound, "shop does not exist", nil)
	}
	return nil
}
