// ABOUTME: Auto spin-up loop: pending work with no live agent triggers a target
// ABOUTME: Cooldowns and in-flight tracking keep repeated scans from storming

package capacity

import (
	"context"
	"log/slog"
	"time"

	"github.com/threadworks/heddle/internal/registry"
	"github.com/threadworks/heddle/internal/work"
)

type agentLister interface {
	List(ctx context.Context, f registry.Filter) ([]registry.Agent, error)
}

type workLister interface {
	List(ctx context.Context, f work.Filter) ([]work.Item, error)
}

// AutoScaler watches for capabilities with pending work but no online
// agent and triggers a matching enabled target.
type AutoScaler struct {
	controller *Controller
	agents     agentLister
	items      workLister
	logger     *slog.Logger

	Interval time.Duration
}

// NewAutoScaler wires the loop.
func NewAutoScaler(c *Controller, agents agentLister, items workLister, interval time.Duration, logger *slog.Logger) *AutoScaler {
	return &AutoScaler{
		controller: c,
		agents:     agents,
		items:      items,
		logger:     logger.With("component", "autoscaler"),
		Interval:   interval,
	}
}

// Run scans on the configured interval until ctx is cancelled.
func (a *AutoScaler) Run(ctx context.Context) {
	ticker := time.NewTicker(a.Interval)
	defer ticker.Stop()

	a.logger.Info("auto spin-up started", "interval", a.Interval)
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("auto spin-up stopped")
			return
		case <-ticker.C:
			a.ScanOnce(ctx)
		}
	}
}

// ScanOnce runs a single pass. Exported so tests can drive the loop
// without timers.
func (a *AutoScaler) ScanOnce(ctx context.Context) {
	starved, err := a.starvedCapabilities(ctx)
	if err != nil {
		a.logger.Error("auto spin-up scan failed", "error", err)
		return
	}
	if len(starved) == 0 {
		return
	}

	targets, err := a.controller.ListTargets(ctx)
	if err != nil {
		a.logger.Error("auto spin-up scan failed", "error", err)
		return
	}

	for capability := range starved {
		target, ok := pickTarget(targets, capability)
		if !ok {
			a.logger.Debug("no target covers starved capability", "capability", capability)
			continue
		}
		res, err := a.controller.TriggerSpinUp(ctx, target.ID)
		if err != nil {
			a.logger.Error("auto spin-up trigger failed",
				"capability", capability, "target", target.Name, "error", err)
			continue
		}
		if res.Triggered {
			a.logger.Info("auto spin-up triggered",
				"capability", capability, "target", target.Name)
		}
	}
}

// starvedCapabilities returns capabilities that have pending work but no
// online agent offering them.
func (a *AutoScaler) starvedCapabilities(ctx context.Context) (map[string]struct{}, error) {
	pending, err := a.items.List(ctx, work.Filter{Status: work.StatusPending})
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	online, err := a.agents.List(ctx, registry.Filter{Status: registry.StatusOnline})
	if err != nil {
		return nil, err
	}

	starved := make(map[string]struct{})
	for _, item := range pending {
		covered := false
		for _, agent := range online {
			if agent.HasCapability(item.Capability) {
				covered = true
				break
			}
		}
		if !covered {
			starved[item.Capability] = struct{}{}
		}
	}
	return starved, nil
}

// pickTarget returns the first enabled target covering the capability.
func pickTarget(targets []Target, capability string) (Target, bool) {
	for _, t := range targets {
		if t.Status == TargetAvailable && t.HasCapability(capability) {
			return t, true
		}
	}
	return Target{}, false
}
