// Package sequence issues globally unique, time-ordered 64-bit ids
// from a Redis-backed per-day counter:
//
//	id = (seconds since 2022-01-01 UTC) << 32 | daily counter
//
// Uniqueness holds for up to 2^32 ids per key prefix per UTC day.
package sequence

import (
	"context"

	"flashsale-starter/internal/infra"
	"flashsale-starter/internal/pkg/clock"
	"flashsale-starter/internal/pkg/errs"

	"github.com/redis/go-redis/v9"
)

const (
	// 2022-01-01T00:00:00Z
	epochSeconds = 1640995200

	// low bits reserved for the daily counter
	counterBits = 32

	counterKeyPrefix = "icr:"
)

var ErrEmptyKeyPrefix = errs.New("key prefix cannot be empty")

type Generator struct {
	rdb   *redis.Client
	clock clock.Clock
}

func NewGenerator(rdb *redis.Client, clk clock.Clock) *Generator {
	return &Generator{rdb: rdb, clock: clk}
}

// NextID returns the next id for keyPrefix. There is no local fallback
// when Redis is unreachable: global uniqueness could not be guaranteed
// without the shared counter, so the call fails instead.
func (g *Generator) NextID(ctx context.Context, keyPrefix string) (int64, error) {
	if keyPrefix == "" {
		return 0, ErrEmptyKeyPrefix
	}

	now := g.clock.Now().UTC()
	timestamp := now.Unix() - epochSeconds

	// Per-day counter key keeps the low 32 bits small and gives a
	// natural reset without any coordination.
	counterKey := counterKeyPrefix + keyPrefix + ":" + now.Format("20060102")
	count, err := g.rdb.Incr(ctx, counterKey).Result()
	if err != nil {
		return 0, infra.WrapRepoErr(infra.KindUnavailable, "failed to increment id counter", err)
	}

	return timestamp<<counterBits | count, nil
}
