// ABOUTME: JetStream implementation of the durable log interface
// ABOUTME: Streams with limits retention, pull consumers with explicit ack

package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSLog implements Log over JetStream streams and pull consumers.
type NATSLog struct {
	js jetstream.JetStream
}

// NewNATSLog builds a Log over an existing connection (shared with the
// store in the coordinator).
func NewNATSLog(nc *nats.Conn) (*NATSLog, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}
	return &NATSLog{js: js}, nil
}

// EnsureStream creates or updates the stream with limits retention.
// Safe to call concurrently from multiple replicas.
func (l *NATSLog) EnsureStream(ctx context.Context, cfg Config) error {
	_, err := l.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.Name,
		Subjects:  cfg.Subjects,
		Retention: jetstream.LimitsPolicy,
		Discard:   jetstream.DiscardOld,
		MaxAge:    cfg.MaxAge,
		MaxMsgs:   cfg.MaxMsgs,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("ensuring stream %s: %w", cfg.Name, wrapJSErr(err))
	}
	return nil
}

// Publish appends to whatever stream owns the subject.
func (l *NATSLog) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := l.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, wrapJSErr(err))
	}
	return nil
}

// Consume attaches a pull consumer. A durable name creates or reuses a
// named consumer (a consumer group across replicas); an empty name creates
// an ephemeral consumer replaying from the start of the stream.
func (l *NATSLog) Consume(ctx context.Context, streamName string, cfg ConsumerConfig) (Consumer, error) {
	s, err := l.js.Stream(ctx, streamName)
	if err != nil {
		return nil, fmt.Errorf("looking up stream %s: %w", streamName, wrapJSErr(err))
	}

	ackWait := cfg.AckWait
	if ackWait <= 0 {
		ackWait = defaultAckWait
	}
	jsCfg := jetstream.ConsumerConfig{
		Durable:       cfg.Durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ackWait,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		MaxDeliver:    cfg.MaxDeliver,
	}
	if cfg.MaxDeliver == 0 {
		jsCfg.MaxDeliver = -1
	}

	cons, err := s.CreateOrUpdateConsumer(ctx, jsCfg)
	if err != nil {
		return nil, fmt.Errorf("creating consumer on %s: %w", streamName, wrapJSErr(err))
	}
	return &natsConsumer{cons: cons}, nil
}

// Close is a no-op; the shared connection is owned by the store.
func (l *NATSLog) Close() error { return nil }

type natsConsumer struct {
	cons jetstream.Consumer
}

func (c *natsConsumer) Next(ctx context.Context) (Msg, error) {
	wait := defaultAckWait
	if deadline, ok := ctx.Deadline(); ok {
		wait = time.Until(deadline)
		if wait <= 0 {
			return nil, ErrNoMessages
		}
	}

	msg, err := c.cons.Next(jetstream.FetchMaxWait(wait))
	if err != nil {
		switch {
		case errors.Is(err, nats.ErrTimeout), errors.Is(err, jetstream.ErrNoMessages):
			return nil, ErrNoMessages
		default:
			return nil, fmt.Errorf("fetching message: %w", wrapJSErr(err))
		}
	}

	deliveries := 1
	if meta, err := msg.Metadata(); err == nil {
		deliveries = int(meta.NumDelivered)
	}
	return &natsMsg{msg: msg, deliveries: deliveries}, nil
}

// Stop releases the pull subscription. JetStream redelivers anything this
// consumer left unacknowledged once the ack-wait expires.
func (c *natsConsumer) Stop() {}

type natsMsg struct {
	msg        jetstream.Msg
	deliveries int
}

func (m *natsMsg) Subject() string { return m.msg.Subject() }
func (m *natsMsg) Data() []byte    { return m.msg.Data() }
func (m *natsMsg) Deliveries() int { return m.deliveries }
func (m *natsMsg) Ack() error      { return m.msg.Ack() }
func (m *natsMsg) Nak() error      { return m.msg.Nak() }
func (m *natsMsg) Term() error     { return m.msg.Term() }

func wrapJSErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, nats.ErrNoResponders),
		errors.Is(err, nats.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
