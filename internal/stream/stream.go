// ABOUTME: Durable log interface for heddle's work queues and mailboxes
// ABOUTME: Subject-addressed streams with durable consumers and explicit ack/nak

package stream

import (
	"context"
	"errors"
	"time"
)

// ErrNoMessages is returned by Next when no message arrived within the
// caller's wait budget. It is the normal "queue drained" signal.
var ErrNoMessages = errors.New("no messages available")

// ErrUnavailable is returned when the backing log cannot be reached.
var ErrUnavailable = errors.New("durable log unavailable")

// Config describes one stream: an append-only, subject-addressed log with
// retention limits. Streams are created idempotently.
type Config struct {
	Name     string
	Subjects []string

	// MaxAge and MaxMsgs bound retention; zero means unlimited. When the
	// count limit is hit the oldest message is evicted.
	MaxAge  time.Duration
	MaxMsgs int64
}

// ConsumerConfig describes one logical reader of a stream.
type ConsumerConfig struct {
	// Durable names a persistent consumer. Readers sharing a durable form
	// a consumer group: each message is delivered to exactly one of them
	// at a time. An empty name creates an ephemeral consumer that replays
	// the stream from the beginning and leaves no server state behind.
	Durable string

	// MaxDeliver caps delivery attempts per message; zero means unlimited.
	// Exhausted messages are no longer redelivered — escalation to the
	// dead-letter store is the consumer loop's job.
	MaxDeliver int

	// AckWait is how long a delivered message may stay unacknowledged
	// before it becomes eligible for redelivery. Zero selects the backend
	// default (30s).
	AckWait time.Duration
}

// Msg is a single delivery. Exactly one of Ack, Nak, or Term should be
// called; dropping a Msg unacknowledged makes it redeliverable after the
// consumer's ack-wait.
type Msg interface {
	Subject() string
	Data() []byte

	// Deliveries is the 1-based delivery attempt count for this message on
	// this consumer.
	Deliveries() int

	// Ack marks the message processed; it will not be redelivered.
	Ack() error

	// Nak requests redelivery of the message.
	Nak() error

	// Term removes the message from circulation on this consumer without
	// counting as success.
	Term() error
}

// Consumer pulls messages one at a time.
type Consumer interface {
	// Next blocks until a message is available or ctx is done. When ctx
	// expires with nothing to deliver it returns ErrNoMessages.
	Next(ctx context.Context) (Msg, error)

	// Stop releases the consumer. In-flight unacknowledged messages become
	// immediately redeliverable rather than being lost.
	Stop()
}

// Log is the durable publish/subscribe log. Implementations: JetStream for
// clustered deployments, memory for standalone mode and tests.
type Log interface {
	EnsureStream(ctx context.Context, cfg Config) error
	Publish(ctx context.Context, subject string, data []byte) error
	Consume(ctx context.Context, streamName string, cfg ConsumerConfig) (Consumer, error)
	Close() error
}
