// Package stream wraps the durable Redis Stream that carries admitted
// order intents from the foreground admission path to the fulfillment
// consumer. Messages stay in the consumer group's pending-entries list
// until acknowledged, which is what makes crash recovery possible.
package stream

import (
	"context"
	"strconv"
	"strings"
	"time"

	"flashsale-starter/internal/infra"
	"flashsale-starter/internal/pkg/errs"

	"github.com/redis/go-redis/v9"
)

var ErrMalformedMessage = errs.New("stream: malformed order message")

// OrderIntent is the flat field-value map reconstructed from one
// stream entry.
type OrderIntent struct {
	OrderID   int64
	UserID    int64
	VoucherID int64
}

// Message pairs an intent with the stream entry id needed to ack it.
type Message struct {
	ID     string
	Intent OrderIntent
}

type OrderStream struct {
	rdb      *redis.Client
	stream   string
	group    string
	consumer string
	block    time.Duration
}

func NewOrderStream(rdb *redis.Client, stream, group, consumer string, block time.Duration) *OrderStream {
	return &OrderStream{
		rdb:      rdb,
		stream:   stream,
		group:    group,
		consumer: consumer,
		block:    block,
	}
}

// EnsureGroup creates the stream and consumer group if they do not
// exist yet. An already-existing group is not an error.
func (s *OrderStream) EnsureGroup(ctx context.Context) error {
	err := s.rdb.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return infra.WrapRepoErr(infra.KindUnavailable, "stream: failed to create consumer group", err)
	}
	return nil
}

// ReadNext blocks up to the configured timeout for one undelivered
// message. (nil, nil) means the stream is currently empty.
func (s *OrderStream) ReadNext(ctx context.Context) (*Message, error) {
	return s.read(ctx, ">", s.block)
}

// ReadPending returns the oldest delivered-but-unacknowledged message
// for this consumer, or (nil, nil) when the pending list is empty.
func (s *OrderStream) ReadPending(ctx context.Context) (*Message, error) {
	return s.read(ctx, "0", 0)
}

func (s *OrderStream) Ack(ctx context.Context, messageID string) error {
	if err := s.rdb.XAck(ctx, s.stream, s.group, messageID).Err(); err != nil {
		return infra.WrapRepoErr(infra.KindUnavailable, "stream: XACK failed", err)
	}
	return nil
}

func (s *OrderStream) read(ctx context.Context, offset string, block time.Duration) (*Message, error) {
	args := &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, offset},
		Count:    1,
	}
	if block > 0 {
		args.Block = block
	} else {
		args.Block = -1 // pending reads never block
	}

	res, err := s.rdb.XReadGroup(ctx, args).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, infra.WrapRepoErr(infra.KindUnavailable, "stream: XREADGROUP failed", err)
	}
	if len(res) == 0 || len(res[0].Messages) == 0 {
		return nil, nil
	}

	msg := res[0].Messages[0]
	intent, err := parseIntent(msg.Values)
	if err != nil {
		// the id is returned so the caller can ack and drop the
		// poison entry instead of replaying it forever
		return &Message{ID: msg.ID}, errs.Wrap(err, "stream: entry "+msg.ID)
	}
	return &Message{ID: msg.ID, Intent: intent}, nil
}

func parseIntent(values map[string]any) (OrderIntent, error) {
	orderID, err := fieldInt64(values, "id")
	if err != nil {
		return OrderIntent{}, err
	}
	userID, err := fieldInt64(values, "userId")
	if err != nil {
		return OrderIntent{}, err
	}
	voucherID, err := fieldInt64(values, "voucherId")
	if err != nil {
		return OrderIntent{}, err
	}
	return OrderIntent{OrderID: orderID, UserID: userID, VoucherID: voucherID}, nil
}

func fieldInt64(values map[string]any, field string) (int64, error) {
	raw, ok := values[field]
	if !ok {
		return 0, errs.Mark(errs.New("missing field "+field), ErrMalformedMessage)
	}
	str, ok := raw.(string)
	if !ok {
		return 0, errs.Mark(errs.New("non-string field "+field), ErrMalformedMessage)
	}
	n, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return 0, errs.Mark(err, ErrMalformedMessage)
	}
	return n, nil
}
