// ABOUTME: Tests for the revisioned KV store implementations.
// ABOUTME: Runs the same contract against the memory and SQLite backends.

package store

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns every store implementation testable without a NATS server.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "heddle.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func TestKV_GetPut(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			kv, err := s.Bucket(ctx, "test")
			require.NoError(t, err)

			_, err = kv.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			rev, err := kv.Put(ctx, "k", []byte("v1"))
			require.NoError(t, err)
			assert.NotZero(t, rev)

			e, err := kv.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("v1"), e.Value)
			assert.Equal(t, rev, e.Revision)

			rev2, err := kv.Put(ctx, "k", []byte("v2"))
			require.NoError(t, err)
			assert.Greater(t, rev2, rev)
		})
	}
}

func TestKV_CreateConflict(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			kv, err := s.Bucket(ctx, "test")
			require.NoError(t, err)

			_, err = kv.Create(ctx, "k", []byte("first"))
			require.NoError(t, err)

			_, err = kv.Create(ctx, "k", []byte("second"))
			assert.ErrorIs(t, err, ErrConflict)

			e, err := kv.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("first"), e.Value)
		})
	}
}

func TestKV_UpdateCAS(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			kv, err := s.Bucket(ctx, "test")
			require.NoError(t, err)

			rev, err := kv.Put(ctx, "k", []byte("v1"))
			require.NoError(t, err)

			// Stale revision loses.
			_, err = kv.Update(ctx, "k", []byte("stale"), rev+100)
			assert.ErrorIs(t, err, ErrConflict)

			newRev, err := kv.Update(ctx, "k", []byte("v2"), rev)
			require.NoError(t, err)
			assert.Greater(t, newRev, rev)

			// The old revision is now stale.
			_, err = kv.Update(ctx, "k", []byte("v3"), rev)
			assert.ErrorIs(t, err, ErrConflict)

			_, err = kv.Update(ctx, "gone", []byte("x"), 1)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestKV_Delete(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			kv, err := s.Bucket(ctx, "test")
			require.NoError(t, err)

			rev, err := kv.Put(ctx, "k", []byte("v"))
			require.NoError(t, err)

			// Conditional delete with a stale revision fails.
			err = kv.Delete(ctx, "k", rev+1)
			assert.ErrorIs(t, err, ErrConflict)

			require.NoError(t, kv.Delete(ctx, "k", rev))

			// First writer won; the second caller sees not-found.
			err = kv.Delete(ctx, "k", rev)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestKV_ListPrefix(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			kv, err := s.Bucket(ctx, "test")
			require.NoError(t, err)

			for _, k := range []string{"agent-1", "agent-2", "work-1"} {
				_, err := kv.Put(ctx, k, []byte(k))
				require.NoError(t, err)
			}

			all, err := kv.List(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 3)

			agents, err := kv.List(ctx, "agent-")
			require.NoError(t, err)
			require.Len(t, agents, 2)
			assert.Equal(t, "agent-1", agents[0].Key)
			assert.Equal(t, "agent-2", agents[1].Key)
		})
	}
}

func TestKV_BucketIsolation(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a, err := s.Bucket(ctx, "a")
			require.NoError(t, err)
			b, err := s.Bucket(ctx, "b")
			require.NoError(t, err)

			_, err = a.Put(ctx, "k", []byte("in-a"))
			require.NoError(t, err)

			_, err = b.Get(ctx, "k")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMemoryStore_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewMemoryStore()
	kv, err := s.Bucket(ctx, "test")
	require.NoError(t, err)

	events, err := kv.Watch(ctx, "agent-")
	require.NoError(t, err)

	_, err = kv.Put(ctx, "agent-1", []byte("v"))
	require.NoError(t, err)
	_, err = kv.Put(ctx, "work-1", []byte("v"))
	require.NoError(t, err)
	require.NoError(t, kv.Delete(ctx, "agent-1", 0))

	var got []Event
	timeout := time.After(time.Second)
	for len(got) < 2 {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for watch events, have %d", len(got))
		}
	}

	assert.Equal(t, "agent-1", got[0].Key)
	assert.False(t, got[0].Deleted)
	assert.Equal(t, "agent-1", got[1].Key)
	assert.True(t, got[1].Deleted)
}

func TestSQLiteStore_WatchUnsupported(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "watch.db"), slog.Default())
	require.NoError(t, err)
	defer s.Close()

	kv, err := s.Bucket(context.Background(), "test")
	require.NoError(t, err)

	_, err = kv.Watch(context.Background(), "")
	assert.True(t, errors.Is(err, ErrWatchUnsupported))
}
