// ABOUTME: Agent registry over the replicated store: register, heartbeat, liveness
// ABOUTME: All mutations go through revision CAS so coordinator replicas never clobber each other

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/threadworks/heddle/internal/store"
)

// ErrNoCapabilities is returned by Register when the record carries no
// capability tags. An agent without capabilities can never be routed to.
var ErrNoCapabilities = errors.New("agent must declare at least one capability")

// ErrTaskCountExceedsMax is returned when a heartbeat reports more
// concurrent tasks than the agent's declared maximum.
var ErrTaskCountExceedsMax = errors.New("task count exceeds max concurrent tasks")

// Agent status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Agent visibility values.
const (
	VisibilityProjectOnly = "project-only"
	VisibilityUserOnly    = "user-only"
	VisibilityPublic      = "public"
)

// Agent is one registered agent record, keyed by GUID in the shared
// agent-registry bucket. Field names match the wire format agents write.
type Agent struct {
	GUID               string     `json:"guid"`
	Handle             string     `json:"handle"`
	AgentType          string     `json:"agentType"`
	Capabilities       []string   `json:"capabilities"`
	Boundaries         []string   `json:"boundaries,omitempty"`
	Status             string     `json:"status"`
	CurrentTaskCount   int        `json:"currentTaskCount"`
	MaxConcurrentTasks int        `json:"maxConcurrentTasks"`
	LastHeartbeat      time.Time  `json:"lastHeartbeat"`
	LastActivity       time.Time  `json:"lastActivity"`
	RegisteredAt       time.Time  `json:"registeredAt"`
	ProjectID          string     `json:"projectId"`
	Visibility         string     `json:"visibility"`
	ShutdownRequested  *time.Time `json:"shutdownRequestedAt,omitempty"`
}

// HasCapability reports whether the agent offers the capability tag.
func (a *Agent) HasCapability(capability string) bool {
	for _, c := range a.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// HasBoundary reports whether the agent may accept work inside the trust
// boundary.
func (a *Agent) HasBoundary(boundary string) bool {
	for _, b := range a.Boundaries {
		if b == boundary {
			return true
		}
	}
	return false
}

// Filter narrows List results. Fields are conjunctive; zero values match
// everything.
type Filter struct {
	Capability string
	Status     string
	ProjectID  string
}

// casRetries bounds the CAS retry loop for single-record mutations.
const casRetries = 5

// Registry manages agent lifecycle over the shared store bucket.
type Registry struct {
	kv     store.KV
	logger *slog.Logger
}

// New creates a Registry over the agent bucket.
func New(kv store.KV, logger *slog.Logger) *Registry {
	return &Registry{kv: kv, logger: logger.With("component", "registry")}
}

// Register upserts an agent record by GUID. A missing GUID gets one
// assigned; re-registration by a known GUID preserves the original
// RegisteredAt. Returns the stored record.
func (r *Registry) Register(ctx context.Context, a Agent) (Agent, error) {
	if len(a.Capabilities) == 0 {
		return Agent{}, ErrNoCapabilities
	}

	now := time.Now().UTC()
	if a.GUID == "" {
		a.GUID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = StatusOnline
	}
	if a.Visibility == "" {
		a.Visibility = VisibilityProjectOnly
	}
	if a.MaxConcurrentTasks <= 0 {
		a.MaxConcurrentTasks = 1
	}
	if a.RegisteredAt.IsZero() {
		a.RegisteredAt = now
	}
	if a.LastHeartbeat.IsZero() {
		a.LastHeartbeat = now
	}
	if a.LastActivity.IsZero() {
		a.LastActivity = now
	}

	for attempt := 0; attempt < casRetries; attempt++ {
		existing, err := r.kv.Get(ctx, a.GUID)
		if errors.Is(err, store.ErrNotFound) {
			data, err := json.Marshal(a)
			if err != nil {
				return Agent{}, fmt.Errorf("encoding agent: %w", err)
			}
			if _, err := r.kv.Create(ctx, a.GUID, data); errors.Is(err, store.ErrConflict) {
				continue // lost a registration race, retry as update
			} else if err != nil {
				return Agent{}, fmt.Errorf("creating agent record: %w", err)
			}
			r.logger.Info("agent registered",
				"guid", a.GUID, "handle", a.Handle, "capabilities", a.Capabilities)
			return a, nil
		}
		if err != nil {
			return Agent{}, fmt.Errorf("reading agent record: %w", err)
		}

		var prev Agent
		if jsonErr := json.Unmarshal(existing.Value, &prev); jsonErr == nil && !prev.RegisteredAt.IsZero() {
			a.RegisteredAt = prev.RegisteredAt
		}
		data, err := json.Marshal(a)
		if err != nil {
			return Agent{}, fmt.Errorf("encoding agent: %w", err)
		}
		if _, err := r.kv.Update(ctx, a.GUID, data, existing.Revision); errors.Is(err, store.ErrConflict) {
			continue
		} else if err != nil {
			return Agent{}, fmt.Errorf("updating agent record: %w", err)
		}
		r.logger.Info("agent re-registered", "guid", a.GUID, "handle", a.Handle)
		return a, nil
	}
	return Agent{}, fmt.Errorf("registering %s: %w", a.GUID, store.ErrConflict)
}

// Heartbeat refreshes the agent's liveness timestamps and task count.
func (r *Registry) Heartbeat(ctx context.Context, guid string, taskCount int) error {
	if taskCount < 0 {
		return fmt.Errorf("%w: negative task count", ErrTaskCountExceedsMax)
	}
	_, err := r.mutate(ctx, guid, func(a *Agent) error {
		if taskCount > a.MaxConcurrentTasks {
			return fmt.Errorf("%w: %d > %d", ErrTaskCountExceedsMax, taskCount, a.MaxConcurrentTasks)
		}
		now := time.Now().UTC()
		a.LastHeartbeat = now
		a.LastActivity = now
		a.CurrentTaskCount = taskCount
		a.Status = StatusOnline
		// A live heartbeat cancels any pending idle shutdown.
		a.ShutdownRequested = nil
		return nil
	})
	return err
}

// Get returns the agent record for guid.
func (r *Registry) Get(ctx context.Context, guid string) (Agent, error) {
	entry, err := r.kv.Get(ctx, guid)
	if err != nil {
		return Agent{}, fmt.Errorf("reading agent %s: %w", guid, err)
	}
	var a Agent
	if err := json.Unmarshal(entry.Value, &a); err != nil {
		return Agent{}, fmt.Errorf("decoding agent %s: %w", guid, err)
	}
	return a, nil
}

// List returns all agents matching the filter, in stable key order.
// Records other processes wrote directly to the bucket are picked up here
// without any registration call — the bucket is the source of truth.
func (r *Registry) List(ctx context.Context, f Filter) ([]Agent, error) {
	entries, err := r.kv.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}

	out := make([]Agent, 0, len(entries))
	for _, e := range entries {
		var a Agent
		if err := json.Unmarshal(e.Value, &a); err != nil {
			r.logger.Warn("skipping malformed agent record", "key", e.Key, "error", err)
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.ProjectID != "" && a.ProjectID != f.ProjectID {
			continue
		}
		if f.Capability != "" && !a.HasCapability(f.Capability) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// MarkOffline transitions the agent to offline without deleting its
// record, preserving registry history for stats and re-registration.
func (r *Registry) MarkOffline(ctx context.Context, guid string) error {
	_, err := r.mutate(ctx, guid, func(a *Agent) error {
		a.Status = StatusOffline
		a.CurrentTaskCount = 0
		a.ShutdownRequested = nil
		return nil
	})
	if err == nil {
		r.logger.Info("agent marked offline", "guid", guid)
	}
	return err
}

// Remove deletes the record entirely. Administrative use only; normal
// lifecycle never deletes.
func (r *Registry) Remove(ctx context.Context, guid string) error {
	if err := r.kv.Delete(ctx, guid, 0); err != nil {
		return fmt.Errorf("removing agent %s: %w", guid, err)
	}
	return nil
}

// mutate applies fn to the agent record under a CAS retry loop.
func (r *Registry) mutate(ctx context.Context, guid string, fn func(*Agent) error) (Agent, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		entry, err := r.kv.Get(ctx, guid)
		if err != nil {
			return Agent{}, fmt.Errorf("reading agent %s: %w", guid, err)
		}

		var a Agent
		if err := json.Unmarshal(entry.Value, &a); err != nil {
			return Agent{}, fmt.Errorf("decoding agent %s: %w", guid, err)
		}
		if err := fn(&a); err != nil {
			return Agent{}, err
		}

		data, err := json.Marshal(a)
		if err != nil {
			return Agent{}, fmt.Errorf("encoding agent %s: %w", guid, err)
		}
		if _, err := r.kv.Update(ctx, guid, data, entry.Revision); errors.Is(err, store.ErrConflict) {
			continue
		} else if err != nil {
			return Agent{}, fmt.Errorf("updating agent %s: %w", guid, err)
		}
		return a, nil
	}
	return Agent{}, fmt.Errorf("mutating agent %s: %w", guid, store.ErrConflict)
}
