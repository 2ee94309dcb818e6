package voucher

import (
	"errors"
	"time"
)

var (
	ErrNotOnSale      = errors.New("seckill has not started or already ended")
	ErrNegativeStock  = errors.New("stock cannot be negative")
	ErrInvalidOrderID = errors.New("order id must be positive")
)

// SeckillVoucher is the constrained inventory resource. Stock in the
// durable store is authoritative; the Redis counter seeded from it is
// only an admission-control fast path.
type SeckillVoucher struct {
	VoucherID int64
	Stock     int
	BeginTime time.Time
	EndTime   time.Time
}

func NewSeckillVoucher(voucherID int64, stock int, begin, end time.Time) (*SeckillVoucher, error) {
	if stock < 0 {
		return nil, ErrNegativeStock
	}
	return &SeckillVoucher{
		VoucherID: voucherID,
		Stock:     stock,
		BeginTime: begin,
		EndTime:   end,
	}, nil
}

func (v *SeckillVoucher) OnSaleAt(t time.Time) bool {
	return !t.Before(v.BeginTime) && t.Before(v.EndTime)
}

// Order is a committed purchase. At most one order may exist per
// (UserID, VoucherID) pair for the lifetime of the voucher.
type Order struct {
	ID        int64
	UserID    int64
	VoucherID int64
	CreatedAt time.Time
}

func NewOrder(id, userID, voucherID int64) (*Order, error) {
	if id <= 0 {
		return nil, ErrInvalidOrderID
	}
	return &Order{ID: id, UserID: userID, VoucherID: voucherID}, nil
}
