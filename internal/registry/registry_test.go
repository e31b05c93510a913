// ABOUTME: Tests for the agent registry over the in-memory store.
// ABOUTME: Covers registration, heartbeats, filtering, and offline transitions.

package registry

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadworks/heddle/internal/store"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	kv, err := store.NewMemoryStore().Bucket(context.Background(), store.BucketAgents)
	require.NoError(t, err)
	return New(kv, slog.Default())
}

func TestRegister_AssignsGUIDAndDefaults(t *testing.T) {
	r := newTestRegistry(t)

	a, err := r.Register(context.Background(), Agent{
		Handle:       "worker-1",
		AgentType:    "developer",
		Capabilities: []string{"typescript"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, a.GUID)
	assert.Equal(t, StatusOnline, a.Status)
	assert.Equal(t, VisibilityProjectOnly, a.Visibility)
	assert.False(t, a.RegisteredAt.IsZero())
	assert.False(t, a.LastHeartbeat.IsZero())

	got, err := r.Get(context.Background(), a.GUID)
	require.NoError(t, err)
	assert.Equal(t, "worker-1", got.Handle)
}

func TestRegister_RequiresCapabilities(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Register(context.Background(), Agent{Handle: "no-caps"})
	assert.ErrorIs(t, err, ErrNoCapabilities)
}

func TestRegister_UpsertPreservesRegisteredAt(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	first, err := r.Register(ctx, Agent{Handle: "w", Capabilities: []string{"go"}})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	second, err := r.Register(ctx, Agent{
		GUID:         first.GUID,
		Handle:       "w-renamed",
		Capabilities: []string{"go", "rust"},
	})
	require.NoError(t, err)

	assert.Equal(t, first.GUID, second.GUID)
	assert.Equal(t, first.RegisteredAt, second.RegisteredAt)
	assert.Equal(t, "w-renamed", second.Handle)
	assert.Equal(t, []string{"go", "rust"}, second.Capabilities)
}

func TestHeartbeat(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	a, err := r.Register(ctx, Agent{
		Handle:             "w",
		Capabilities:       []string{"go"},
		MaxConcurrentTasks: 3,
	})
	require.NoError(t, err)

	before := a.LastHeartbeat
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, r.Heartbeat(ctx, a.GUID, 2))

	got, err := r.Get(ctx, a.GUID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentTaskCount)
	assert.True(t, got.LastHeartbeat.After(before))
}

func TestHeartbeat_UnknownAgent(t *testing.T) {
	r := newTestRegistry(t)

	err := r.Heartbeat(context.Background(), "no-such-guid", 0)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHeartbeat_RejectsTaskCountOverMax(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	a, err := r.Register(ctx, Agent{
		Handle:             "w",
		Capabilities:       []string{"go"},
		MaxConcurrentTasks: 2,
	})
	require.NoError(t, err)

	err = r.Heartbeat(ctx, a.GUID, 3)
	assert.ErrorIs(t, err, ErrTaskCountExceedsMax)

	// The record is unchanged.
	got, err := r.Get(ctx, a.GUID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentTaskCount)
}

func TestHeartbeat_ClearsShutdownRequest(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	a, err := r.Register(ctx, Agent{Handle: "w", Capabilities: []string{"go"}})
	require.NoError(t, err)

	stamp := time.Now().UTC()
	_, err = r.mutate(ctx, a.GUID, func(rec *Agent) error {
		rec.ShutdownRequested = &stamp
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, r.Heartbeat(ctx, a.GUID, 0))

	got, err := r.Get(ctx, a.GUID)
	require.NoError(t, err)
	assert.Nil(t, got.ShutdownRequested)
}

func TestList_ConjunctiveFilter(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Register(ctx, Agent{Handle: "ts-a", Capabilities: []string{"typescript"}, ProjectID: "p1"})
	require.NoError(t, err)
	py, err := r.Register(ctx, Agent{Handle: "py-a", Capabilities: []string{"python"}, ProjectID: "p1"})
	require.NoError(t, err)
	_, err = r.Register(ctx, Agent{Handle: "py-b", Capabilities: []string{"python"}, ProjectID: "p2"})
	require.NoError(t, err)

	all, err := r.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	pythons, err := r.List(ctx, Filter{Capability: "python"})
	require.NoError(t, err)
	assert.Len(t, pythons, 2)

	p1Pythons, err := r.List(ctx, Filter{Capability: "python", ProjectID: "p1"})
	require.NoError(t, err)
	require.Len(t, p1Pythons, 1)
	assert.Equal(t, py.GUID, p1Pythons[0].GUID)

	require.NoError(t, r.MarkOffline(ctx, py.GUID))
	online, err := r.List(ctx, Filter{Capability: "python", Status: StatusOnline})
	require.NoError(t, err)
	assert.Len(t, online, 1)
	assert.Equal(t, "py-b", online[0].Handle)
}

func TestMarkOffline_PreservesRecord(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	a, err := r.Register(ctx, Agent{Handle: "w", Capabilities: []string{"go"}})
	require.NoError(t, err)

	require.NoError(t, r.MarkOffline(ctx, a.GUID))

	got, err := r.Get(ctx, a.GUID)
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, got.Status)
	assert.Equal(t, 0, got.CurrentTaskCount)
}

func TestConcurrentHeartbeats(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	a, err := r.Register(ctx, Agent{
		Handle:             "w",
		Capabilities:       []string{"go"},
		MaxConcurrentTasks: 100,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, r.Heartbeat(ctx, a.GUID, n))
		}(i)
	}
	wg.Wait()

	got, err := r.Get(ctx, a.GUID)
	require.NoError(t, err)
	assert.Equal(t, StatusOnline, got.Status)
}
