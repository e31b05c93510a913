// ABOUTME: Tests for the mailbox service over the in-memory log.
// ABOUTME: Covers offline delivery, ordering, and non-destructive filtered reads.

package mailbox

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadworks/heddle/internal/stream"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return New(stream.NewMemoryLog(), "test-project", 1000, 24*time.Hour, slog.Default())
}

func send(t *testing.T, s *Service, sender, recipient, body, msgType string) {
	t.Helper()
	require.NoError(t, s.Send(context.Background(), DirectMessage{
		SenderGUID:    sender,
		RecipientGUID: recipient,
		Message:       body,
		MessageType:   msgType,
	}))
}

func TestSend_Validation(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	err := s.Send(ctx, DirectMessage{SenderGUID: "a"})
	assert.ErrorIs(t, err, ErrNoRecipient)

	err = s.Send(ctx, DirectMessage{RecipientGUID: "b"})
	assert.ErrorIs(t, err, ErrNoSender)
}

func TestSend_StampsTimestamp(t *testing.T) {
	s := newTestService(t)
	send(t, s, "a", "b", "hi", "chat")

	msgs, err := s.Read(context.Background(), "b", ReadFilter{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].Timestamp.IsZero())
}

func TestOfflineRecipientAccumulatesMessages(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	// Nobody registered "worker"; messages must still queue up.
	send(t, s, "boss", "worker", "message 1", "task")
	send(t, s, "boss", "worker", "message 2", "task")
	send(t, s, "boss", "worker", "message 3", "task")

	msgs, err := s.Read(ctx, "worker", ReadFilter{})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "message 1", msgs[0].Message)
	assert.Equal(t, "message 2", msgs[1].Message)
	assert.Equal(t, "message 3", msgs[2].Message)

	// Send order implies non-decreasing timestamps.
	for i := 1; i < len(msgs); i++ {
		assert.False(t, msgs[i].Timestamp.Before(msgs[i-1].Timestamp),
			"message %d stamped before message %d", i+1, i)
	}
}

func TestRead_EmptyInbox(t *testing.T) {
	s := newTestService(t)

	msgs, err := s.Read(context.Background(), "nobody", ReadFilter{})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestRead_Filters(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	send(t, s, "alice", "w", "status?", "query")
	send(t, s, "bob", "w", "deploy done", "status")
	send(t, s, "alice", "w", "ping", "status")

	byType, err := s.Read(ctx, "w", ReadFilter{MessageType: "status"})
	require.NoError(t, err)
	require.Len(t, byType, 2)
	assert.Equal(t, "deploy done", byType[0].Message)

	bySender, err := s.Read(ctx, "w", ReadFilter{SenderGUID: "alice"})
	require.NoError(t, err)
	assert.Len(t, bySender, 2)

	both, err := s.Read(ctx, "w", ReadFilter{MessageType: "status", SenderGUID: "alice"})
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, "ping", both[0].Message)
}

func TestFilteredReadDoesNotConsume(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	send(t, s, "a", "w", "one", "chat")
	send(t, s, "a", "w", "two", "alert")
	send(t, s, "a", "w", "three", "chat")

	filtered, err := s.Read(ctx, "w", ReadFilter{MessageType: "alert"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)

	// Everything is still there afterwards, in order.
	all, err := s.Read(ctx, "w", ReadFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "one", all[0].Message)
	assert.Equal(t, "three", all[2].Message)

	// And again: reads are repeatable.
	all, err = s.Read(ctx, "w", ReadFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestInboxesAreIsolated(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	send(t, s, "a", "w1", "for w1", "chat")
	send(t, s, "a", "w2", "for w2", "chat")

	msgs, err := s.Read(ctx, "w1", ReadFilter{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "for w1", msgs[0].Message)
}

func TestRetentionEvictsOldest(t *testing.T) {
	s := New(stream.NewMemoryLog(), "test-project", 2, 0, slog.Default())
	ctx := context.Background()

	send(t, s, "a", "w", "first", "chat")
	send(t, s, "a", "w", "second", "chat")
	send(t, s, "a", "w", "third", "chat")

	msgs, err := s.Read(ctx, "w", ReadFilter{})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "second", msgs[0].Message)
	assert.Equal(t, "third", msgs[1].Message)
}

func TestSignalShutdown(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.SignalShutdown(ctx, "worker-guid", true, "idle-timeout"))

	msgs, err := s.Read(ctx, "worker-guid", ReadFilter{MessageType: MessageTypeShutdownRequest})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, CoordinatorSender, msgs[0].SenderGUID)
	assert.Equal(t, "graceful", msgs[0].Metadata["mode"])
	assert.Equal(t, "idle-timeout", msgs[0].Metadata["reason"])
}
