// ABOUTME: Tests for the in-memory durable log.
// ABOUTME: Covers ordering, consumer groups, nak redelivery, max-deliver, and retention.

package stream

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLog(t *testing.T, cfg Config) *MemoryLog {
	t.Helper()
	l := NewMemoryLog()
	require.NoError(t, l.EnsureStream(context.Background(), cfg))
	return l
}

func nextWithin(t *testing.T, c Consumer, d time.Duration) Msg {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	msg, err := c.Next(ctx)
	require.NoError(t, err)
	return msg
}

func TestMemoryLog_PublishConsumeOrder(t *testing.T) {
	l := newTestLog(t, Config{Name: "INBOX", Subjects: []string{"inbox.a"}})
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, l.Publish(ctx, "inbox.a", fmt.Appendf(nil, "msg-%d", i)))
	}

	c, err := l.Consume(ctx, "INBOX", ConsumerConfig{Durable: "reader"})
	require.NoError(t, err)
	defer c.Stop()

	for i := 1; i <= 5; i++ {
		msg := nextWithin(t, c, time.Second)
		assert.Equal(t, fmt.Sprintf("msg-%d", i), string(msg.Data()))
		assert.Equal(t, 1, msg.Deliveries())
		require.NoError(t, msg.Ack())
	}

	drainCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = c.Next(drainCtx)
	assert.ErrorIs(t, err, ErrNoMessages)
}

func TestMemoryLog_NakRedelivers(t *testing.T) {
	l := newTestLog(t, Config{Name: "WORK", Subjects: []string{"work.go"}})
	ctx := context.Background()

	require.NoError(t, l.Publish(ctx, "work.go", []byte("item")))

	c, err := l.Consume(ctx, "WORK", ConsumerConfig{Durable: "workers"})
	require.NoError(t, err)
	defer c.Stop()

	first := nextWithin(t, c, time.Second)
	assert.Equal(t, 1, first.Deliveries())
	require.NoError(t, first.Nak())

	second := nextWithin(t, c, time.Second)
	assert.Equal(t, 2, second.Deliveries())
	assert.Equal(t, "item", string(second.Data()))
	require.NoError(t, second.Ack())
}

func TestMemoryLog_MaxDeliverStopsRedelivery(t *testing.T) {
	l := newTestLog(t, Config{Name: "WORK", Subjects: []string{"work.go"}})
	ctx := context.Background()

	require.NoError(t, l.Publish(ctx, "work.go", []byte("poison")))

	c, err := l.Consume(ctx, "WORK", ConsumerConfig{Durable: "workers", MaxDeliver: 3})
	require.NoError(t, err)
	defer c.Stop()

	for i := 1; i <= 3; i++ {
		msg := nextWithin(t, c, time.Second)
		assert.Equal(t, i, msg.Deliveries())
		require.NoError(t, msg.Nak())
	}

	// Attempt budget exhausted: the message is out of circulation.
	drainCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = c.Next(drainCtx)
	assert.ErrorIs(t, err, ErrNoMessages)
}

func TestMemoryLog_ConsumerGroupSingleDelivery(t *testing.T) {
	l := newTestLog(t, Config{Name: "WORK", Subjects: []string{"work.go"}})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Publish(ctx, "work.go", fmt.Appendf(nil, "%d", i)))
	}

	a, err := l.Consume(ctx, "WORK", ConsumerConfig{Durable: "workers"})
	require.NoError(t, err)
	defer a.Stop()
	b, err := l.Consume(ctx, "WORK", ConsumerConfig{Durable: "workers"})
	require.NoError(t, err)
	defer b.Stop()

	seen := make(map[string]int)
	for i := 0; i < 5; i++ {
		msg := nextWithin(t, a, time.Second)
		seen[string(msg.Data())]++
		require.NoError(t, msg.Ack())

		msg = nextWithin(t, b, time.Second)
		seen[string(msg.Data())]++
		require.NoError(t, msg.Ack())
	}

	assert.Len(t, seen, 10)
	for data, count := range seen {
		assert.Equal(t, 1, count, "message %s delivered more than once", data)
	}
}

func TestMemoryLog_EphemeralReplaysFromStart(t *testing.T) {
	l := newTestLog(t, Config{Name: "INBOX", Subjects: []string{"inbox.a"}})
	ctx := context.Background()

	require.NoError(t, l.Publish(ctx, "inbox.a", []byte("hello")))

	// A durable reader consumes and acks everything.
	d, err := l.Consume(ctx, "INBOX", ConsumerConfig{Durable: "reader"})
	require.NoError(t, err)
	msg := nextWithin(t, d, time.Second)
	require.NoError(t, msg.Ack())
	d.Stop()

	// An ephemeral reader still sees the retained message.
	e, err := l.Consume(ctx, "INBOX", ConsumerConfig{})
	require.NoError(t, err)
	defer e.Stop()
	msg = nextWithin(t, e, time.Second)
	assert.Equal(t, "hello", string(msg.Data()))
	require.NoError(t, msg.Ack())
}

func TestMemoryLog_StopRequeuesInflight(t *testing.T) {
	l := newTestLog(t, Config{Name: "WORK", Subjects: []string{"work.go"}})
	ctx := context.Background()

	require.NoError(t, l.Publish(ctx, "work.go", []byte("orphan")))

	a, err := l.Consume(ctx, "WORK", ConsumerConfig{Durable: "workers"})
	require.NoError(t, err)
	_ = nextWithin(t, a, time.Second)

	// Consumer dies without acking; the message must not be lost.
	a.Stop()

	b, err := l.Consume(ctx, "WORK", ConsumerConfig{Durable: "workers"})
	require.NoError(t, err)
	defer b.Stop()

	msg := nextWithin(t, b, time.Second)
	assert.Equal(t, "orphan", string(msg.Data()))
	assert.Equal(t, 2, msg.Deliveries())
	require.NoError(t, msg.Ack())
}

func TestMemoryLog_RetentionByCount(t *testing.T) {
	l := newTestLog(t, Config{Name: "INBOX", Subjects: []string{"inbox.a"}, MaxMsgs: 3})
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, l.Publish(ctx, "inbox.a", fmt.Appendf(nil, "msg-%d", i)))
	}

	c, err := l.Consume(ctx, "INBOX", ConsumerConfig{})
	require.NoError(t, err)
	defer c.Stop()

	// Oldest two were evicted.
	var got []string
	for i := 0; i < 3; i++ {
		msg := nextWithin(t, c, time.Second)
		got = append(got, string(msg.Data()))
		require.NoError(t, msg.Ack())
	}
	assert.Equal(t, []string{"msg-3", "msg-4", "msg-5"}, got)
}

func TestMemoryLog_AckWaitExpiryRedelivers(t *testing.T) {
	l := newTestLog(t, Config{Name: "WORK", Subjects: []string{"work.go"}})
	ctx := context.Background()

	require.NoError(t, l.Publish(ctx, "work.go", []byte("slow")))

	c, err := l.Consume(ctx, "WORK", ConsumerConfig{Durable: "workers", AckWait: 50 * time.Millisecond})
	require.NoError(t, err)
	defer c.Stop()

	_ = nextWithin(t, c, time.Second)
	// Never acked; after the ack-wait it comes back.
	msg := nextWithin(t, c, time.Second)
	assert.Equal(t, 2, msg.Deliveries())
	require.NoError(t, msg.Ack())
}

func TestMemoryLog_PublishUnknownSubject(t *testing.T) {
	l := NewMemoryLog()
	err := l.Publish(context.Background(), "nowhere", []byte("x"))
	assert.Error(t, err)
}
