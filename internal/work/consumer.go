// ABOUTME: Work delivery loop: pulls from a capability queue, runs the handler
// ABOUTME: Enforces at-least-once with dedup, boundary checks, and dead-letter escalation

package work

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/threadworks/heddle/internal/dedupe"
	"github.com/threadworks/heddle/internal/stream"
)

// Handler processes one delivered item. A nil return acknowledges the
// item; an error triggers redelivery and, eventually, escalation.
type Handler func(ctx context.Context, item Item) error

// Escalator receives items whose delivery attempts are exhausted.
// Implemented by the dead-letter manager.
type Escalator interface {
	Escalate(ctx context.Context, item Item, reason string) error
}

// pullWait bounds each poll of the queue so the loop notices ctx
// cancellation between messages.
const pullWait = 2 * time.Second

// Consumer runs the delivery loop for one agent (or worker pool) against
// one capability queue.
type Consumer struct {
	router     *Router
	escalator  Escalator
	seen       *dedupe.Cache
	log        stream.Log
	projectID  string
	maxDeliver int
	logger     *slog.Logger

	onCompleted func(Item)
}

// OnCompleted installs a callback invoked after an item is acked and marked
// completed. Call before Run.
func (c *Consumer) OnCompleted(fn func(Item)) {
	c.onCompleted = fn
}

// NewConsumer wires a delivery loop. maxDeliver caps attempts per item
// before escalation; it must be at least 1.
func NewConsumer(router *Router, escalator Escalator, seen *dedupe.Cache, log stream.Log, projectID string, maxDeliver int, logger *slog.Logger) *Consumer {
	if maxDeliver < 1 {
		maxDeliver = 1
	}
	return &Consumer{
		router:     router,
		escalator:  escalator,
		seen:       seen,
		log:        log,
		projectID:  projectID,
		maxDeliver: maxDeliver,
		logger:     logger.With("component", "work-consumer"),
	}
}

// Run consumes the capability's queue until ctx is cancelled. Consumers
// sharing a durable name compete: each item goes to exactly one of them at
// a time. boundaries lists the trust boundaries the handler may accept;
// an empty list accepts anything.
func (c *Consumer) Run(ctx context.Context, capability, durable string, boundaries []string, handler Handler) error {
	streamName := stream.WorkStreamName(c.projectID, capability)
	if err := c.log.EnsureStream(ctx, stream.Config{
		Name:     streamName,
		Subjects: []string{stream.WorkSubject(c.projectID, capability)},
	}); err != nil {
		return fmt.Errorf("ensuring work queue for %s: %w", capability, err)
	}

	if durable == "" {
		durable = "workers_" + capability
	}
	cons, err := c.log.Consume(ctx, streamName, stream.ConsumerConfig{Durable: durable})
	if err != nil {
		return fmt.Errorf("opening consumer for %s: %w", capability, err)
	}
	defer cons.Stop()

	c.logger.Info("work consumer started", "capability", capability, "durable", durable)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		pullCtx, cancel := context.WithTimeout(ctx, pullWait)
		msg, err := cons.Next(pullCtx)
		cancel()
		if errors.Is(err, stream.ErrNoMessages) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("pulling work failed", "capability", capability, "error", err)
			continue
		}

		c.deliver(ctx, msg, boundaries, handler)
	}
}

// deliver processes one pulled message end to end: dedup, boundary check,
// handler, then exactly one of Ack, Nak, or Term.
func (c *Consumer) deliver(ctx context.Context, msg stream.Msg, boundaries []string, handler Handler) {
	var item Item
	if err := json.Unmarshal(msg.Data(), &item); err != nil {
		c.logger.Error("dropping undecodable work message", "error", err)
		_ = msg.Term()
		return
	}

	// Redelivery after a lost ack shows up as a duplicate ID.
	if c.seen.Seen(item.ID) {
		c.logger.Debug("skipping already-processed item", "id", item.ID)
		_ = msg.Ack()
		return
	}

	if item.Boundary != "" && len(boundaries) > 0 && !contains(boundaries, item.Boundary) {
		c.fail(ctx, msg, item, fmt.Sprintf("boundary %q not accepted by consumer", item.Boundary))
		return
	}

	// A retried item carries its prior attempts in the payload; delivery
	// counts on the fresh queue entry start over at 1.
	attempt := item.Attempts + msg.Deliveries()
	if err := c.router.SetStatus(ctx, item.ID, func(rec *Item) {
		rec.Status = StatusInProgress
		rec.Attempts = attempt
	}); err != nil {
		c.logger.Warn("recording delivery attempt failed", "id", item.ID, "error", err)
	}

	if err := handler(ctx, item); err != nil {
		c.fail(ctx, msg, item, err.Error())
		return
	}

	c.seen.SeenOrMark(item.ID)
	if err := msg.Ack(); err != nil {
		c.logger.Warn("ack failed", "id", item.ID, "error", err)
	}
	if err := c.router.SetStatus(ctx, item.ID, func(rec *Item) {
		rec.Status = StatusCompleted
	}); err != nil {
		c.logger.Warn("recording completion failed", "id", item.ID, "error", err)
	}
	if c.onCompleted != nil {
		c.onCompleted(item)
	}
	c.logger.Info("work item completed", "id", item.ID, "attempts", attempt)
}

// fail records the attempt's error, then either requests redelivery or,
// when attempts are exhausted, terminates the queue entry and escalates.
func (c *Consumer) fail(ctx context.Context, msg stream.Msg, item Item, errMsg string) {
	attempt := item.Attempts + msg.Deliveries()
	item.Attempts = attempt
	item.Errors = append(item.Errors, errMsg)

	if err := c.router.SetStatus(ctx, item.ID, func(rec *Item) {
		rec.Status = StatusPending
		rec.Attempts = attempt
		rec.Errors = append(rec.Errors, errMsg)
	}); err != nil {
		c.logger.Warn("recording failure failed", "id", item.ID, "error", err)
	}

	if attempt < c.maxDeliver {
		c.logger.Warn("work item failed, will retry",
			"id", item.ID, "attempt", attempt, "max", c.maxDeliver, "error", errMsg)
		_ = msg.Nak()
		return
	}

	// The record accumulated every attempt's error; escalate that, not
	// just this delivery's view.
	if rec, err := c.router.Get(ctx, item.ID); err == nil {
		item = rec
		item.Attempts = attempt
	}

	reason := fmt.Sprintf("Max delivery attempts exceeded (%d)", c.maxDeliver)
	if err := c.escalator.Escalate(ctx, item, reason); err != nil {
		// Leave the message redeliverable; escalation retries on the next
		// delivery.
		c.logger.Error("dead-letter escalation failed", "id", item.ID, "error", err)
		_ = msg.Nak()
		return
	}
	_ = msg.Term()
	c.logger.Warn("work item dead-lettered", "id", item.ID, "attempts", attempt)
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
