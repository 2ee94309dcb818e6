// Package worker hosts the long-lived fulfillment consumer: exactly
// one per process, reading admitted order intents from the stream and
// committing them against the durable store. Scale-out means more
// consumer names inside the same group, never more loops per process.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"flashsale-starter/internal/infra/stream"
)

// OrderCommitter is the transactional commit entry point; both the
// live loop and the pending-list sweep call the same function.
type OrderCommitter interface {
	CommitOrder(ctx context.Context, intent stream.OrderIntent) error
}

type FulfillmentConsumer struct {
	stream    *stream.OrderStream
	committer OrderCommitter
	logger    *slog.Logger

	// pause before retrying after a pending-list failure, so a poison
	// message cannot spin the loop
	pendingBackoff time.Duration

	done chan struct{}
}

func NewFulfillmentConsumer(orderStream *stream.OrderStream, committer OrderCommitter, logger *slog.Logger, pendingBackoff time.Duration) *FulfillmentConsumer {
	return &FulfillmentConsumer{
		stream:         orderStream,
		committer:      committer,
		logger:         logger,
		pendingBackoff: pendingBackoff,
		done:           make(chan struct{}),
	}
}

// Start launches the consumer goroutine. It returns after the consumer
// group exists so admission can enqueue immediately.
func (c *FulfillmentConsumer) Start(ctx context.Context) error {
	if err := c.stream.EnsureGroup(ctx); err != nil {
		return err
	}
	go c.run(ctx)
	return nil
}

// Stop waits for the loop to observe cancellation and exit.
func (c *FulfillmentConsumer) Stop() {
	<-c.done
}

// run never terminates on a single message's failure: any processing
// error switches the loop to the pending-list sweep, then live
// consumption resumes.
func (c *FulfillmentConsumer) run(ctx context.Context) {
	defer close(c.done)
	c.logger.Info("fulfillment consumer started")

	for {
		if ctx.Err() != nil {
			c.logger.Info("fulfillment consumer stopped")
			return
		}

		if err := c.consumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Error("failed to process order message", "error", err)
			c.drainPending(ctx)
		}
	}
}

// consumeOnce reads and settles at most one live message. An empty
// read is not an error; the blocking read already paced the loop.
func (c *FulfillmentConsumer) consumeOnce(ctx context.Context) error {
	msg, err := c.stream.ReadNext(ctx)
	if err != nil {
		return c.dropIfMalformed(ctx, msg, err)
	}
	if msg == nil {
		return nil
	}
	return c.settle(ctx, msg)
}

// dropIfMalformed acknowledges an unparseable entry so the pending
// sweep cannot replay it forever; any other error passes through.
func (c *FulfillmentConsumer) dropIfMalformed(ctx context.Context, msg *stream.Message, err error) error {
	if msg == nil || !errors.Is(err, stream.ErrMalformedMessage) {
		return err
	}
	c.logger.Error("dropping malformed order message", "message_id", msg.ID, "error", err)
	return c.stream.Ack(ctx, msg.ID)
}

// drainPending replays delivered-but-unacknowledged messages from the
// beginning until the pending list is empty. The commit transaction's
// own duplicate and stock checks make replays idempotent.
func (c *FulfillmentConsumer) drainPending(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := c.stream.ReadPending(ctx)
		if err == nil && msg == nil {
			return // pending list empty, resume live consumption
		}
		if err != nil {
			err = c.dropIfMalformed(ctx, msg, err)
			if err == nil {
				continue
			}
		} else {
			err = c.settle(ctx, msg)
		}
		if err != nil {
			c.logger.Error("failed to process pending order message", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.pendingBackoff):
			}
		}
	}
}

// settle commits the order and acknowledges the message. The ack runs
// only after the commit transaction completed (success or deliberate
// rejection); a transient failure leaves the message pending.
func (c *FulfillmentConsumer) settle(ctx context.Context, msg *stream.Message) error {
	if err := c.committer.CommitOrder(ctx, msg.Intent); err != nil {
		return err
	}
	return c.stream.Ack(ctx, msg.ID)
}
