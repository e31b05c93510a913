// ABOUTME: Capacity targets: records describing how to bring more agents online
// ABOUTME: CRUD over the targets bucket with unique names and CAS updates

package capacity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/threadworks/heddle/internal/store"
)

// ErrNameTaken is returned when a target's name collides with an existing
// one. Names are the human handle for targets and must be unique.
var ErrNameTaken = errors.New("target name already in use")

// ErrTargetDisabled is returned when a spin-up is requested for a
// disabled target.
var ErrTargetDisabled = errors.New("target is disabled")

// ErrUnknownMechanism is returned when no spawner is registered for the
// target's mechanism.
var ErrUnknownMechanism = errors.New("no spawner for mechanism")

// Target status values.
const (
	TargetAvailable = "available"
	TargetDisabled  = "disabled"
)

// Target describes one way to bring an agent online. Field names match
// the wire format.
type Target struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	AgentType    string            `json:"agentType,omitempty"`
	Capabilities []string          `json:"capabilities"`
	Boundaries   []string          `json:"boundaries,omitempty"`
	Mechanism    string            `json:"mechanism"`
	Config       map[string]string `json:"config,omitempty"`
	Status       string            `json:"status"`
	LastSpinUp   *time.Time        `json:"lastSpinUp,omitempty"`
	LastError    string            `json:"lastError,omitempty"`
}

// HasCapability reports whether the target can supply the capability.
func (t *Target) HasCapability(capability string) bool {
	for _, c := range t.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Controller manages capacity targets and coordinates spin-ups. Spin-up
// idempotency within one process uses the in-flight set; across replicas
// the cooldown stamp in the shared record does the de-duplication.
type Controller struct {
	kv       store.KV
	spawners map[string]Spawner
	logger   *slog.Logger

	Cooldown     time.Duration
	ProbeTimeout time.Duration

	mu       sync.Mutex
	inflight map[string]bool
}

// NewController creates a Controller over the targets bucket.
func NewController(kv store.KV, cooldown, probeTimeout time.Duration, logger *slog.Logger) *Controller {
	return &Controller{
		kv:           kv,
		spawners:     make(map[string]Spawner),
		logger:       logger.With("component", "capacity"),
		Cooldown:     cooldown,
		ProbeTimeout: probeTimeout,
		inflight:     make(map[string]bool),
	}
}

// RegisterSpawner binds a mechanism name to its spawner implementation.
func (c *Controller) RegisterSpawner(mechanism string, s Spawner) {
	c.spawners[mechanism] = s
}

// CreateTarget stores a new target. Names must be unique; duplicates get
// ErrNameTaken.
func (c *Controller) CreateTarget(ctx context.Context, t Target) (Target, error) {
	if t.Name == "" {
		return Target{}, errors.New("target name required")
	}
	if t.Mechanism == "" {
		return Target{}, errors.New("target mechanism required")
	}
	if len(t.Capabilities) == 0 {
		return Target{}, errors.New("target must declare at least one capability")
	}

	existing, err := c.ListTargets(ctx)
	if err != nil {
		return Target{}, err
	}
	for _, e := range existing {
		if e.Name == t.Name {
			return Target{}, fmt.Errorf("%w: %s", ErrNameTaken, t.Name)
		}
	}

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = TargetAvailable
	}

	data, err := json.Marshal(t)
	if err != nil {
		return Target{}, fmt.Errorf("encoding target: %w", err)
	}
	if _, err := c.kv.Create(ctx, t.ID, data); err != nil {
		return Target{}, fmt.Errorf("creating target: %w", err)
	}
	c.logger.Info("capacity target created",
		"id", t.ID, "name", t.Name, "mechanism", t.Mechanism)
	return t, nil
}

// GetTarget returns one target.
func (c *Controller) GetTarget(ctx context.Context, id string) (Target, error) {
	entry, err := c.kv.Get(ctx, id)
	if err != nil {
		return Target{}, fmt.Errorf("reading target %s: %w", id, err)
	}
	var t Target
	if err := json.Unmarshal(entry.Value, &t); err != nil {
		return Target{}, fmt.Errorf("decoding target %s: %w", id, err)
	}
	return t, nil
}

// ListTargets returns all targets.
func (c *Controller) ListTargets(ctx context.Context) ([]Target, error) {
	entries, err := c.kv.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing targets: %w", err)
	}
	out := make([]Target, 0, len(entries))
	for _, e := range entries {
		var t Target
		if err := json.Unmarshal(e.Value, &t); err != nil {
			c.logger.Warn("skipping malformed target record", "key", e.Key, "error", err)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// UpdateTarget rewrites a target's mutable fields. Renaming onto another
// target's name gets ErrNameTaken.
func (c *Controller) UpdateTarget(ctx context.Context, id string, upd Target) (Target, error) {
	if upd.Name != "" {
		existing, err := c.ListTargets(ctx)
		if err != nil {
			return Target{}, err
		}
		for _, e := range existing {
			if e.Name == upd.Name && e.ID != id {
				return Target{}, fmt.Errorf("%w: %s", ErrNameTaken, upd.Name)
			}
		}
	}
	return c.mutate(ctx, id, func(t *Target) {
		if upd.Name != "" {
			t.Name = upd.Name
		}
		if upd.AgentType != "" {
			t.AgentType = upd.AgentType
		}
		if len(upd.Capabilities) > 0 {
			t.Capabilities = upd.Capabilities
		}
		if len(upd.Boundaries) > 0 {
			t.Boundaries = upd.Boundaries
		}
		if upd.Mechanism != "" {
			t.Mechanism = upd.Mechanism
		}
		if upd.Config != nil {
			t.Config = upd.Config
		}
	})
}

// SetStatus enables or disables a target.
func (c *Controller) SetStatus(ctx context.Context, id, status string) (Target, error) {
	if status != TargetAvailable && status != TargetDisabled {
		return Target{}, fmt.Errorf("invalid target status %q", status)
	}
	return c.mutate(ctx, id, func(t *Target) {
		t.Status = status
	})
}

// DeleteTarget removes the target record.
func (c *Controller) DeleteTarget(ctx context.Context, id string) error {
	if err := c.kv.Delete(ctx, id, 0); err != nil {
		return fmt.Errorf("deleting target %s: %w", id, err)
	}
	c.logger.Info("capacity target deleted", "id", id)
	return nil
}

// mutate applies fn to a target record under a CAS retry loop.
func (c *Controller) mutate(ctx context.Context, id string, fn func(*Target)) (Target, error) {
	for attempt := 0; attempt < 5; attempt++ {
		entry, err := c.kv.Get(ctx, id)
		if err != nil {
			return Target{}, fmt.Errorf("reading target %s: %w", id, err)
		}
		var t Target
		if err := json.Unmarshal(entry.Value, &t); err != nil {
			return Target{}, fmt.Errorf("decoding target %s: %w", id, err)
		}
		fn(&t)

		data, err := json.Marshal(t)
		if err != nil {
			return Target{}, fmt.Errorf("encoding target %s: %w", id, err)
		}
		if _, err := c.kv.Update(ctx, id, data, entry.Revision); errors.Is(err, store.ErrConflict) {
			continue
		} else if err != nil {
			return Target{}, fmt.Errorf("updating target %s: %w", id, err)
		}
		return t, nil
	}
	return Target{}, fmt.Errorf("updating target %s: %w", id, store.ErrConflict)
}
