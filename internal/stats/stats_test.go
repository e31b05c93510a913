// ABOUTME: Tests for the stats aggregator over in-memory backends.

package stats

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadworks/heddle/internal/registry"
	"github.com/threadworks/heddle/internal/store"
	"github.com/threadworks/heddle/internal/stream"
	"github.com/threadworks/heddle/internal/work"
)

func newFixture(t *testing.T) (*Aggregator, *registry.Registry, *work.Router) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()

	agentKV, err := st.Bucket(ctx, store.BucketAgents)
	require.NoError(t, err)
	workKV, err := st.Bucket(ctx, store.BucketWorkItems)
	require.NoError(t, err)

	reg := registry.New(agentKV, slog.Default())
	router := work.NewRouter(workKV, stream.NewMemoryLog(), "proj", slog.Default())
	return New(reg, router, "proj", slog.Default()), reg, router
}

func TestSnapshot_Empty(t *testing.T) {
	agg, _, _ := newFixture(t)

	snap, err := agg.Snapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.Timestamp.IsZero())
	assert.Zero(t, snap.Totals.Agents)
	assert.Zero(t, snap.Totals.PendingWork)
	assert.Zero(t, snap.TotalProjects)
	assert.Empty(t, snap.ByProject)
}

func TestSnapshot_Rollup(t *testing.T) {
	agg, reg, router := newFixture(t)
	ctx := context.Background()

	_, err := reg.Register(ctx, registry.Agent{Handle: "a1", Capabilities: []string{"go"}, ProjectID: "proj"})
	require.NoError(t, err)
	a2, err := reg.Register(ctx, registry.Agent{Handle: "a2", Capabilities: []string{"go"}, ProjectID: "proj"})
	require.NoError(t, err)
	_, err = reg.Register(ctx, registry.Agent{Handle: "b1", Capabilities: []string{"rust"}, ProjectID: "other"})
	require.NoError(t, err)

	require.NoError(t, reg.MarkOffline(ctx, a2.GUID))

	_, err = router.Submit(ctx, work.Item{Capability: "go", Boundary: "backend", Description: "x"})
	require.NoError(t, err)
	_, err = router.Submit(ctx, work.Item{Capability: "go", Boundary: "backend", Description: "y"})
	require.NoError(t, err)

	snap, err := agg.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.Totals.Agents)
	assert.Equal(t, 2, snap.Totals.PendingWork)
	assert.Equal(t, 2, snap.TotalProjects)

	proj := snap.ByProject["proj"]
	assert.Equal(t, 2, proj.Agents)
	assert.Equal(t, 1, proj.OnlineAgents)
	assert.Equal(t, 2, proj.PendingWork)
	assert.False(t, proj.LastActivity.IsZero())

	other := snap.ByProject["other"]
	assert.Equal(t, 1, other.Agents)
	assert.Equal(t, 1, other.OnlineAgents)
	assert.Zero(t, other.PendingWork)
}

func TestSnapshot_CompletedWorkNotPending(t *testing.T) {
	agg, _, router := newFixture(t)
	ctx := context.Background()

	item, err := router.Submit(ctx, work.Item{Capability: "go", Boundary: "backend", Description: "x"})
	require.NoError(t, err)
	require.NoError(t, router.SetStatus(ctx, item.ID, func(rec *work.Item) {
		rec.Status = work.StatusCompleted
	}))

	snap, err := agg.Snapshot(ctx)
	require.NoError(t, err)
	assert.Zero(t, snap.Totals.PendingWork)
}

func TestSnapshot_LastActivityTracksNewest(t *testing.T) {
	agg, reg, _ := newFixture(t)
	ctx := context.Background()

	a, err := reg.Register(ctx, registry.Agent{Handle: "a", Capabilities: []string{"go"}, ProjectID: "proj"})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, reg.Heartbeat(ctx, a.GUID, 0))

	snap, err := agg.Snapshot(ctx)
	require.NoError(t, err)
	got, err := reg.Get(ctx, a.GUID)
	require.NoError(t, err)
	assert.Equal(t, got.LastActivity, snap.ByProject["proj"].LastActivity)
}
