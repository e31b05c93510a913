// ABOUTME: Spin-up coordination and health probing for capacity targets
// ABOUTME: Concurrent triggers collapse to one spawn; cooldowns stop replica storms

package capacity

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Spawner starts agents through one mechanism (local command, container
// runner, cloud API). SpinUp launches capacity; Probe checks the
// mechanism is usable without launching anything.
type Spawner interface {
	SpinUp(ctx context.Context, target Target) error
	Probe(ctx context.Context, target Target) error
}

// SpinUpResult reports what a trigger did. Duplicate and cooled-down
// triggers are successes that launched nothing.
type SpinUpResult struct {
	Triggered bool   `json:"triggered"`
	Reason    string `json:"reason,omitempty"`
}

// ProbeResult reports a target health check.
type ProbeResult struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// TriggerSpinUp asks the target's mechanism to bring an agent online. The
// launch runs in the background; the caller learns whether this trigger
// started one. Triggers while a spin-up is in flight or inside the
// cooldown window return Triggered false without error.
func (c *Controller) TriggerSpinUp(ctx context.Context, id string) (SpinUpResult, error) {
	target, err := c.GetTarget(ctx, id)
	if err != nil {
		return SpinUpResult{}, err
	}
	if target.Status != TargetAvailable {
		return SpinUpResult{}, fmt.Errorf("target %s: %w", target.Name, ErrTargetDisabled)
	}
	spawner, ok := c.spawners[target.Mechanism]
	if !ok {
		return SpinUpResult{}, fmt.Errorf("%w: %s", ErrUnknownMechanism, target.Mechanism)
	}

	c.mu.Lock()
	if c.inflight[id] {
		c.mu.Unlock()
		return SpinUpResult{Reason: "spin-up already in progress"}, nil
	}
	if target.LastSpinUp != nil && time.Since(*target.LastSpinUp) < c.Cooldown {
		c.mu.Unlock()
		return SpinUpResult{Reason: "inside cooldown window"}, nil
	}
	c.inflight[id] = true
	c.mu.Unlock()

	now := time.Now().UTC()
	if _, err := c.mutate(ctx, id, func(t *Target) {
		t.LastSpinUp = &now
		t.LastError = ""
	}); err != nil {
		c.clearInflight(id)
		return SpinUpResult{}, err
	}

	go c.runSpinUp(spawner, target)

	c.logger.Info("spin-up triggered", "id", id, "name", target.Name, "mechanism", target.Mechanism)
	return SpinUpResult{Triggered: true}, nil
}

// runSpinUp executes the launch detached from the caller's request.
// Failures land on the target record for the next GET to report.
func (c *Controller) runSpinUp(spawner Spawner, target Target) {
	defer c.clearInflight(target.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := spawner.SpinUp(ctx, target); err != nil {
		c.logger.Error("spin-up failed", "id", target.ID, "name", target.Name, "error", err)
		if _, merr := c.mutate(ctx, target.ID, func(t *Target) {
			t.LastError = err.Error()
		}); merr != nil {
			c.logger.Warn("recording spin-up failure failed", "id", target.ID, "error", merr)
		}
		return
	}
	c.logger.Info("spin-up completed", "id", target.ID, "name", target.Name)
}

func (c *Controller) clearInflight(id string) {
	c.mu.Lock()
	delete(c.inflight, id)
	c.mu.Unlock()
}

// TestTarget probes the target's mechanism without launching anything or
// touching the record. The probe is bounded by ProbeTimeout.
func (c *Controller) TestTarget(ctx context.Context, id string) (ProbeResult, error) {
	target, err := c.GetTarget(ctx, id)
	if err != nil {
		return ProbeResult{}, err
	}
	spawner, ok := c.spawners[target.Mechanism]
	if !ok {
		return ProbeResult{}, fmt.Errorf("%w: %s", ErrUnknownMechanism, target.Mechanism)
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.ProbeTimeout)
	defer cancel()

	if err := spawner.Probe(probeCtx, target); err != nil {
		return ProbeResult{Error: err.Error()}, nil
	}
	return ProbeResult{Healthy: true}, nil
}

// LocalCommandSpawner launches agents by running a command on the
// coordinator's host. The command comes from the target's config under
// "command", split on whitespace.
type LocalCommandSpawner struct{}

func (LocalCommandSpawner) command(target Target) ([]string, error) {
	raw := strings.TrimSpace(target.Config["command"])
	if raw == "" {
		return nil, errors.New("target config missing command")
	}
	return strings.Fields(raw), nil
}

// SpinUp starts the configured command and leaves it running.
func (s LocalCommandSpawner) SpinUp(ctx context.Context, target Target) error {
	argv, err := s.command(target)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", argv[0], err)
	}
	// The agent process outlives the spin-up; reap it in the background
	// so it never zombies.
	go func() { _ = cmd.Wait() }()
	return nil
}

// Probe checks the configured command resolves on this host.
func (s LocalCommandSpawner) Probe(_ context.Context, target Target) error {
	argv, err := s.command(target)
	if err != nil {
		return err
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return fmt.Errorf("command not found: %w", err)
	}
	return nil
}
