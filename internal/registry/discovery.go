// ABOUTME: Discovery loop surfacing agents that register through the bucket directly
// ABOUTME: Watches the agent prefix, falling back to interval listing without watch

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/threadworks/heddle/internal/store"
)

// Discovery observes the agent bucket for records written by other
// coordinator replicas or by agents registering out of band, so they show
// up in logs and snapshots without going through this process's Register.
type Discovery struct {
	kv       store.KV
	interval time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	known map[string]struct{}
}

// NewDiscovery creates a discovery loop over the agent bucket. interval is
// the listing cadence used when the store has no watch support.
func NewDiscovery(kv store.KV, interval time.Duration, logger *slog.Logger) *Discovery {
	return &Discovery{
		kv:       kv,
		interval: interval,
		logger:   logger.With("component", "discovery"),
		known:    make(map[string]struct{}),
	}
}

// Run blocks until ctx is cancelled.
func (d *Discovery) Run(ctx context.Context) {
	events, err := d.kv.Watch(ctx, "")
	if errors.Is(err, store.ErrWatchUnsupported) {
		d.logger.Debug("store has no watch support, polling", "interval", d.interval)
		d.poll(ctx)
		return
	}
	if err != nil {
		d.logger.Error("watch failed, polling", "error", err)
		d.poll(ctx)
		return
	}

	// Seed from the current bucket contents so pre-existing agents are not
	// reported as new.
	if _, err := d.SyncOnce(ctx); err != nil {
		d.logger.Warn("initial agent listing failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.apply(ev)
		}
	}
}

// Known returns the GUIDs currently tracked, sorted for stable output.
func (d *Discovery) Known() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.known))
	for guid := range d.known {
		out = append(out, guid)
	}
	sort.Strings(out)
	return out
}

// SyncOnce reconciles the known set against one full listing and returns
// the GUIDs that were newly discovered.
func (d *Discovery) SyncOnce(ctx context.Context) ([]string, error) {
	entries, err := d.kv.List(ctx, "")
	if err != nil {
		return nil, err
	}

	current := make(map[string]struct{}, len(entries))
	var added []string

	d.mu.Lock()
	for _, e := range entries {
		current[e.Key] = struct{}{}
		if _, ok := d.known[e.Key]; !ok {
			added = append(added, e.Key)
		}
	}
	var removed []string
	for guid := range d.known {
		if _, ok := current[guid]; !ok {
			removed = append(removed, guid)
		}
	}
	d.known = current
	d.mu.Unlock()

	for _, e := range entries {
		for _, guid := range added {
			if e.Key == guid {
				d.logDiscovered(e.Value)
			}
		}
	}
	for _, guid := range removed {
		d.logger.Info("agent removed from registry", "guid", guid)
	}
	return added, nil
}

func (d *Discovery) poll(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	if _, err := d.SyncOnce(ctx); err != nil {
		d.logger.Warn("agent listing failed", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.SyncOnce(ctx); err != nil {
				d.logger.Warn("agent listing failed", "error", err)
			}
		}
	}
}

func (d *Discovery) apply(ev store.Event) {
	d.mu.Lock()
	if ev.Deleted {
		_, existed := d.known[ev.Key]
		delete(d.known, ev.Key)
		d.mu.Unlock()
		if existed {
			d.logger.Info("agent removed from registry", "guid", ev.Key)
		}
		return
	}
	_, existed := d.known[ev.Key]
	d.known[ev.Key] = struct{}{}
	d.mu.Unlock()

	if !existed {
		d.logDiscovered(ev.Value)
	}
}

func (d *Discovery) logDiscovered(value []byte) {
	var a Agent
	if err := json.Unmarshal(value, &a); err != nil {
		d.logger.Warn("undecodable agent record", "error", err)
		return
	}
	d.logger.Info("agent discovered",
		"guid", a.GUID,
		"handle", a.Handle,
		"capabilities", a.Capabilities,
		"project", a.ProjectID,
	)
}
