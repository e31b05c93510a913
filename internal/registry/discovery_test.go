// ABOUTME: Tests for the agent discovery loop
// ABOUTME: Covers listing reconciliation and watch-driven tracking

package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadworks/heddle/internal/store"
)

func putAgentRecord(t *testing.T, kv store.KV, a Agent) {
	t.Helper()
	data, err := json.Marshal(a)
	require.NoError(t, err)
	_, err = kv.Put(context.Background(), a.GUID, data)
	require.NoError(t, err)
}

func TestDiscoverySyncOnceReportsNewAgents(t *testing.T) {
	kv, err := store.NewMemoryStore().Bucket(context.Background(), store.BucketAgents)
	require.NoError(t, err)
	d := NewDiscovery(kv, time.Minute, slog.Default())

	putAgentRecord(t, kv, Agent{GUID: "agent-1", Handle: "worker-one", Status: StatusOnline})

	added, err := d.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"agent-1"}, added)
	assert.Equal(t, []string{"agent-1"}, d.Known())

	// A second pass over the same contents reports nothing new.
	added, err = d.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, added)
}

func TestDiscoverySyncOnceDropsRemovedAgents(t *testing.T) {
	kv, err := store.NewMemoryStore().Bucket(context.Background(), store.BucketAgents)
	require.NoError(t, err)
	d := NewDiscovery(kv, time.Minute, slog.Default())

	putAgentRecord(t, kv, Agent{GUID: "agent-1", Handle: "worker-one"})
	_, err = d.SyncOnce(context.Background())
	require.NoError(t, err)

	require.NoError(t, kv.Delete(context.Background(), "agent-1", 0))

	_, err = d.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, d.Known())
}

func TestDiscoveryWatchTracksExternalRegistration(t *testing.T) {
	kv, err := store.NewMemoryStore().Bucket(context.Background(), store.BucketAgents)
	require.NoError(t, err)
	d := NewDiscovery(kv, time.Minute, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()

	// Registration written straight to the bucket, bypassing Register.
	putAgentRecord(t, kv, Agent{GUID: "agent-ext", Handle: "external", Status: StatusOnline})

	require.Eventually(t, func() bool {
		known := d.Known()
		return len(known) == 1 && known[0] == "agent-ext"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, kv.Delete(context.Background(), "agent-ext", 0))
	require.Eventually(t, func() bool {
		return len(d.Known()) == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
