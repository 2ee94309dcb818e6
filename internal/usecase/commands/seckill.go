package commands

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"flashsale-starter/internal/domain/voucher"
	"flashsale-starter/internal/infra"
	"flashsale-starter/internal/infra/redlock"
	"flashsale-starter/internal/infra/stream"
	"flashsale-starter/internal/pkg/config"
	"flashsale-starter/internal/pkg/errs"
	"flashsale-starter/internal/usecase/shared"

	"github.com/redis/go-redis/v9"
)

var (
	ErrSoldOut           = errs.New("voucher sold out")
	ErrDuplicatePurchase = errs.New("duplicate purchase")
	ErrVoucherNotFound   = errs.New("seckill voucher not found")
	ErrAdmissionFailed   = errs.New("admission check failed")
)

//go:embed seckill.lua
var seckillScriptSrc string

var seckillScript = redis.NewScript(seckillScriptSrc)

const (
	stockKeyPrefix = "seckill:stock:"
	orderIDPrefix  = "order"
	buyerLockName  = "order:"
)

type IDGenerator interface {
	NextID(ctx context.Context, keyPrefix string) (int64, error)
}

// VoucherReadStore serves reads outside the fulfillment transaction.
type VoucherReadStore interface {
	FindSeckillByID(ctx context.Context, voucherID int64) (*voucher.SeckillVoucher, error)
}

type SeckillCommands interface {
	// Purchase runs the admission check and returns the reserved order
	// id. The order is committed asynchronously by the fulfillment
	// consumer; admission success is a binding commitment.
	Purchase(ctx context.Context, userID, voucherID int64) (int64, error)

	// SeedStock copies the durable stock count into the Redis fast
	// counter so admission starts consistent with the store.
	SeedStock(ctx context.Context, voucherID int64) error

	// CommitOrder persists one admitted order intent. It serializes
	// competing attempts per buyer with a distributed lock,
	// re-validates the duplicate and stock invariants inside one
	// transaction, and treats a failed re-validation as a deliberate
	// no-op rejection. Only transient failures return an error.
	CommitOrder(ctx context.Context, intent stream.OrderIntent) error
}

type seckillCommandsImpl struct {
	rdb      *redis.Client
	ids      IDGenerator
	uow      shared.UnitOfWork
	vouchers VoucherReadStore
	logger   *slog.Logger

	streamKey string
	lockTTL   time.Duration
}

func NewSeckillCommands(
	rdb *redis.Client,
	ids IDGenerator,
	uow shared.UnitOfWork,
	vouchers VoucherReadStore,
	logger *slog.Logger,
	cfg config.SeckillConfig,
) SeckillCommands {
	return &seckillCommandsImpl{
		rdb:       rdb,
		ids:       ids,
		uow:       uow,
		vouchers:  vouchers,
		logger:    logger,
		streamKey: cfg.Stream,
		lockTTL:   cfg.OrderLockTTL,
	}
}

func (s *seckillCommandsImpl) Purchase(ctx context.Context, userID, voucherID int64) (int64, error) {
	orderID, err := s.ids.NextID(ctx, orderIDPrefix)
	if err != nil {
		return 0, err
	}

	res, err := seckillScript.Run(ctx, s.rdb, []string{},
		strconv.FormatInt(voucherID, 10),
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(orderID, 10),
		s.streamKey,
	).Int()
	if err != nil {
		return 0, errs.Mark(infra.WrapRepoErr(infra.KindUnavailable, "admission script failed", err), ErrAdmissionFailed)
	}

	switch res {
	case 0:
		// admitted and enqueued; the consumer owns it from here
		return orderID, nil
	case 1:
		return 0, ErrSoldOut
	case 2:
		return 0, ErrDuplicatePurchase
	default:
		return 0, errs.Mark(errs.New("unexpected admission result "+strconv.Itoa(res)), ErrAdmissionFailed)
	}
}

func (s *seckillCommandsImpl) SeedStock(ctx context.Context, voucherID int64) error {
	v, err := s.vouchers.FindSeckillByID(ctx, voucherID)
	if err != nil {
		return err
	}
	if v == nil {
		return ErrVoucherNotFound
	}

	key := stockKeyPrefix + strconv.FormatInt(voucherID, 10)
	if err := s.rdb.Set(ctx, key, v.Stock, 0).Err(); err != nil {
		return infra.WrapRepoErr(infra.KindUnavailable, "failed to seed stock counter", err)
	}
	s.logger.Info("seeded seckill stock", "voucher_id", voucherID, "stock", v.Stock)
	return nil
}

func (s *seckillCommandsImpl) CommitOrder(ctx context.Context, intent stream.OrderIntent) error {
	// Defense in depth: the admission script already rejects duplicate
	// buyers, but the cache counters can drift from the store (e.g.
	// after a Redis flush). The per-buyer lock plus the in-transaction
	// checks keep the store invariants regardless.
	lock := redlock.New(s.rdb, buyerLockName+strconv.FormatInt(intent.UserID, 10))
	acquired, err := lock.TryLock(ctx, s.lockTTL)
	if err != nil {
		return infra.WrapRepoErr(infra.KindUnavailable, "failed to acquire buyer lock", err)
	}
	if !acquired {
		// another attempt by the same buyer is mid-commit; drop this
		// one as a duplicate
		s.logger.Error("buyer lock contended, rejecting order", "user_id", intent.UserID, "order_id", intent.OrderID)
		return nil
	}
	defer func() {
		if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release buyer lock", "user_id", intent.UserID, "error", err)
		}
	}()

	err = s.uow.Within(ctx, func(ctx context.Context, tx shared.Tx) error {
		count, err := tx.Orders().CountByUserAndVoucher(ctx, intent.UserID, intent.VoucherID)
		if err != nil {
			return err
		}
		if count > 0 {
			s.logger.Error("order already exists, rejecting replay", "user_id", intent.UserID, "voucher_id", intent.VoucherID)
			return nil
		}

		decremented, err := tx.Vouchers().DecrementStock(ctx, intent.VoucherID)
		if err != nil {
			return err
		}
		if !decremented {
			s.logger.Error("stock exhausted at commit time, rejecting order", "voucher_id", intent.VoucherID, "order_id", intent.OrderID)
			return nil
		}

		order, err := voucher.NewOrder(intent.OrderID, intent.UserID, intent.VoucherID)
		if err != nil {
			return err
		}
		return tx.Orders().Create(ctx, order)
	})
	if infra.IsKind(err, infra.KindDuplicateKey) {
		// replay of an already-committed order; the rollback above
		// undid this attempt's stock decrement
		s.logger.Warn("order row already committed", "order_id", intent.OrderID)
		return nil
	}
	return err
}

// IsRejection reports whether err is a user-visible admission
// rejection rather than an infrastructure failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrSoldOut) || errors.Is(err, ErrDuplicatePurchase)
}
