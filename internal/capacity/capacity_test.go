// ABOUTME: Tests for capacity targets, spin-up idempotency, and auto spin-up.
// ABOUTME: Uses a recording spawner so no processes are launched.

package capacity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadworks/heddle/internal/registry"
	"github.com/threadworks/heddle/internal/store"
	"github.com/threadworks/heddle/internal/stream"
	"github.com/threadworks/heddle/internal/work"
)

// recordingSpawner counts spin-ups and probes; block lets a test hold a
// spin-up in flight.
type recordingSpawner struct {
	spinUps  atomic.Int64
	probes   atomic.Int64
	spinErr  error
	probeErr error
	block    chan struct{}
}

func (s *recordingSpawner) SpinUp(_ context.Context, _ Target) error {
	if s.block != nil {
		<-s.block
	}
	s.spinUps.Add(1)
	return s.spinErr
}

func (s *recordingSpawner) Probe(_ context.Context, _ Target) error {
	s.probes.Add(1)
	return s.probeErr
}

func newTestController(t *testing.T, spawner Spawner) *Controller {
	t.Helper()
	kv, err := store.NewMemoryStore().Bucket(context.Background(), store.BucketTargets)
	require.NoError(t, err)
	c := NewController(kv, 30*time.Second, time.Second, slog.Default())
	c.RegisterSpawner("test", spawner)
	return c
}

func createTarget(t *testing.T, c *Controller, name string, caps ...string) Target {
	t.Helper()
	target, err := c.CreateTarget(context.Background(), Target{
		Name:         name,
		Capabilities: caps,
		Mechanism:    "test",
	})
	require.NoError(t, err)
	return target
}

func TestCreateTarget(t *testing.T) {
	c := newTestController(t, &recordingSpawner{})

	target := createTarget(t, c, "local-pool", "go", "rust")
	assert.NotEmpty(t, target.ID)
	assert.Equal(t, TargetAvailable, target.Status)

	got, err := c.GetTarget(context.Background(), target.ID)
	require.NoError(t, err)
	assert.Equal(t, "local-pool", got.Name)
}

func TestCreateTarget_DuplicateName(t *testing.T) {
	c := newTestController(t, &recordingSpawner{})

	createTarget(t, c, "pool", "go")
	_, err := c.CreateTarget(context.Background(), Target{
		Name:         "pool",
		Capabilities: []string{"rust"},
		Mechanism:    "test",
	})
	assert.ErrorIs(t, err, ErrNameTaken)
}

func TestCreateTarget_Validation(t *testing.T) {
	c := newTestController(t, &recordingSpawner{})
	ctx := context.Background()

	_, err := c.CreateTarget(ctx, Target{Capabilities: []string{"go"}, Mechanism: "test"})
	assert.Error(t, err)

	_, err = c.CreateTarget(ctx, Target{Name: "x", Capabilities: []string{"go"}})
	assert.Error(t, err)

	_, err = c.CreateTarget(ctx, Target{Name: "x", Mechanism: "test"})
	assert.Error(t, err)
}

func TestTriggerSpinUp(t *testing.T) {
	spawner := &recordingSpawner{}
	c := newTestController(t, spawner)
	ctx := context.Background()

	target := createTarget(t, c, "pool", "go")

	res, err := c.TriggerSpinUp(ctx, target.ID)
	require.NoError(t, err)
	assert.True(t, res.Triggered)

	require.Eventually(t, func() bool {
		return spawner.spinUps.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	got, err := c.GetTarget(ctx, target.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSpinUp)
}

func TestTriggerSpinUp_CooldownSuppressesSecondTrigger(t *testing.T) {
	spawner := &recordingSpawner{}
	c := newTestController(t, spawner)
	ctx := context.Background()

	target := createTarget(t, c, "pool", "go")

	first, err := c.TriggerSpinUp(ctx, target.ID)
	require.NoError(t, err)
	assert.True(t, first.Triggered)

	require.Eventually(t, func() bool {
		return spawner.spinUps.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	second, err := c.TriggerSpinUp(ctx, target.ID)
	require.NoError(t, err)
	assert.False(t, second.Triggered)
	assert.Equal(t, "inside cooldown window", second.Reason)
	assert.Equal(t, int64(1), spawner.spinUps.Load())
}

func TestTriggerSpinUp_ConcurrentTriggersLaunchOnce(t *testing.T) {
	spawner := &recordingSpawner{block: make(chan struct{})}
	c := newTestController(t, spawner)
	ctx := context.Background()

	target := createTarget(t, c, "pool", "go")

	var wg sync.WaitGroup
	var triggered atomic.Int64
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.TriggerSpinUp(ctx, target.ID)
			assert.NoError(t, err)
			if res.Triggered {
				triggered.Add(1)
			}
		}()
	}
	wg.Wait()
	close(spawner.block)

	assert.Equal(t, int64(1), triggered.Load())
	require.Eventually(t, func() bool {
		return spawner.spinUps.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTriggerSpinUp_DisabledTarget(t *testing.T) {
	c := newTestController(t, &recordingSpawner{})
	ctx := context.Background()

	target := createTarget(t, c, "pool", "go")
	_, err := c.SetStatus(ctx, target.ID, TargetDisabled)
	require.NoError(t, err)

	_, err = c.TriggerSpinUp(ctx, target.ID)
	assert.ErrorIs(t, err, ErrTargetDisabled)
}

func TestTriggerSpinUp_UnknownTarget(t *testing.T) {
	c := newTestController(t, &recordingSpawner{})

	_, err := c.TriggerSpinUp(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTriggerSpinUp_FailureLandsOnRecord(t *testing.T) {
	spawner := &recordingSpawner{spinErr: errors.New("runner exploded")}
	c := newTestController(t, spawner)
	ctx := context.Background()

	target := createTarget(t, c, "pool", "go")

	res, err := c.TriggerSpinUp(ctx, target.ID)
	require.NoError(t, err)
	assert.True(t, res.Triggered)

	require.Eventually(t, func() bool {
		got, err := c.GetTarget(ctx, target.ID)
		return err == nil && got.LastError == "runner exploded"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTestTarget(t *testing.T) {
	spawner := &recordingSpawner{}
	c := newTestController(t, spawner)
	ctx := context.Background()

	target := createTarget(t, c, "pool", "go")

	res, err := c.TestTarget(ctx, target.ID)
	require.NoError(t, err)
	assert.True(t, res.Healthy)
	assert.Equal(t, int64(1), spawner.probes.Load())
	assert.Equal(t, int64(0), spawner.spinUps.Load(), "probing never launches")

	spawner.probeErr = errors.New("host unreachable")
	res, err = c.TestTarget(ctx, target.ID)
	require.NoError(t, err)
	assert.False(t, res.Healthy)
	assert.Equal(t, "host unreachable", res.Error)
}

func newAutoScaleFixture(t *testing.T, spawner Spawner) (*AutoScaler, *Controller, *registry.Registry, *work.Router) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()

	targetKV, err := st.Bucket(ctx, store.BucketTargets)
	require.NoError(t, err)
	agentKV, err := st.Bucket(ctx, store.BucketAgents)
	require.NoError(t, err)
	workKV, err := st.Bucket(ctx, store.BucketWorkItems)
	require.NoError(t, err)

	c := NewController(targetKV, 30*time.Second, time.Second, slog.Default())
	c.RegisterSpawner("test", spawner)
	reg := registry.New(agentKV, slog.Default())
	router := work.NewRouter(workKV, stream.NewMemoryLog(), "proj", slog.Default())
	return NewAutoScaler(c, reg, router, time.Second, slog.Default()), c, reg, router
}

func TestAutoScaler_TriggersForStarvedCapability(t *testing.T) {
	spawner := &recordingSpawner{}
	scaler, c, _, router := newAutoScaleFixture(t, spawner)
	ctx := context.Background()

	createTarget(t, c, "pool", "rust")
	_, err := router.Submit(ctx, work.Item{Capability: "rust", Boundary: "backend", Description: "x"})
	require.NoError(t, err)

	scaler.ScanOnce(ctx)

	require.Eventually(t, func() bool {
		return spawner.spinUps.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Repeated scans stay quiet inside the cooldown.
	scaler.ScanOnce(ctx)
	assert.Equal(t, int64(1), spawner.spinUps.Load())
}

func TestAutoScaler_QuietWhenAgentCovers(t *testing.T) {
	spawner := &recordingSpawner{}
	scaler, c, reg, router := newAutoScaleFixture(t, spawner)
	ctx := context.Background()

	createTarget(t, c, "pool", "rust")
	_, err := reg.Register(ctx, registry.Agent{Handle: "rustacean", Capabilities: []string{"rust"}})
	require.NoError(t, err)
	_, err = router.Submit(ctx, work.Item{Capability: "rust", Boundary: "backend", Description: "x"})
	require.NoError(t, err)

	scaler.ScanOnce(ctx)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(0), spawner.spinUps.Load())
}

func TestAutoScaler_SkipsDisabledTargets(t *testing.T) {
	spawner := &recordingSpawner{}
	scaler, c, _, router := newAutoScaleFixture(t, spawner)
	ctx := context.Background()

	target := createTarget(t, c, "pool", "rust")
	_, err := c.SetStatus(ctx, target.ID, TargetDisabled)
	require.NoError(t, err)
	_, err = router.Submit(ctx, work.Item{Capability: "rust", Boundary: "backend", Description: "x"})
	require.NoError(t, err)

	scaler.ScanOnce(ctx)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(0), spawner.spinUps.Load())
}
