// ABOUTME: Work item model and router: capability-addressed durable queues
// ABOUTME: Items live twice, as a status record in the store and a queue entry in the log

package work

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/threadworks/heddle/internal/store"
	"github.com/threadworks/heddle/internal/stream"
)

// ErrNoCapability is returned by Submit when the item carries no
// capability tag. Routing is by capability; an untagged item has no queue.
var ErrNoCapability = errors.New("work item must declare a capability")

// ErrNoBoundary is returned by Submit when the item carries no trust
// boundary tag.
var ErrNoBoundary = errors.New("work item must declare a boundary")

// Work item status values.
const (
	StatusPending      = "pending"
	StatusInProgress   = "in-progress"
	StatusCompleted    = "completed"
	StatusDeadLettered = "dead-lettered"
)

// Item is one unit of work. Field names match the wire format.
type Item struct {
	ID          string         `json:"id"`
	TaskID      string         `json:"taskId,omitempty"`
	Capability  string         `json:"capability"`
	Boundary    string         `json:"boundary"`
	Description string         `json:"description"`
	Priority    int            `json:"priority,omitempty"`
	ContextData map[string]any `json:"contextData,omitempty"`
	Status      string         `json:"status"`
	Attempts    int            `json:"attempts"`
	Errors      []string       `json:"errors,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	OfferedBy   string         `json:"offeredBy,omitempty"`
}

// Filter narrows List results. Fields are conjunctive.
type Filter struct {
	Capability string
	Status     string
}

// Router submits work into per-capability queues and tracks item status in
// the shared store. Queues are created lazily on first submit; items for a
// capability no agent offers simply wait.
type Router struct {
	kv        store.KV
	log       stream.Log
	projectID string
	logger    *slog.Logger
}

// NewRouter creates a Router over the work-items bucket and the durable log.
func NewRouter(kv store.KV, log stream.Log, projectID string, logger *slog.Logger) *Router {
	return &Router{
		kv:        kv,
		log:       log,
		projectID: projectID,
		logger:    logger.With("component", "work-router"),
	}
}

// Submit validates the item, assigns it an ID, records it as pending, and
// enqueues it on its capability's queue. Returns the stored item.
func (r *Router) Submit(ctx context.Context, item Item) (Item, error) {
	if item.Capability == "" {
		return Item{}, ErrNoCapability
	}
	if item.Boundary == "" {
		return Item{}, ErrNoBoundary
	}

	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	item.Status = StatusPending
	item.Attempts = 0
	item.Errors = nil
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(item)
	if err != nil {
		return Item{}, fmt.Errorf("encoding work item: %w", err)
	}
	if _, err := r.kv.Create(ctx, item.ID, data); err != nil {
		return Item{}, fmt.Errorf("recording work item: %w", err)
	}

	if err := r.ensureQueue(ctx, item.Capability); err != nil {
		return Item{}, err
	}
	subject := stream.WorkSubject(r.projectID, item.Capability)
	if err := r.log.Publish(ctx, subject, data); err != nil {
		return Item{}, fmt.Errorf("enqueuing work item: %w", err)
	}

	r.logger.Info("work item submitted",
		"id", item.ID, "capability", item.Capability, "boundary", item.Boundary)
	return item, nil
}

// Enqueue republishes an existing item onto its capability queue without
// creating a new record. Used by dead-letter retry.
func (r *Router) Enqueue(ctx context.Context, item Item) error {
	if err := r.ensureQueue(ctx, item.Capability); err != nil {
		return err
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encoding work item: %w", err)
	}
	subject := stream.WorkSubject(r.projectID, item.Capability)
	if err := r.log.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("enqueuing work item: %w", err)
	}
	return nil
}

// Get returns the current record for one item.
func (r *Router) Get(ctx context.Context, id string) (Item, error) {
	entry, err := r.kv.Get(ctx, id)
	if err != nil {
		return Item{}, fmt.Errorf("reading work item %s: %w", id, err)
	}
	var item Item
	if err := json.Unmarshal(entry.Value, &item); err != nil {
		return Item{}, fmt.Errorf("decoding work item %s: %w", id, err)
	}
	return item, nil
}

// List returns all item records matching the filter.
func (r *Router) List(ctx context.Context, f Filter) ([]Item, error) {
	entries, err := r.kv.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing work items: %w", err)
	}

	out := make([]Item, 0, len(entries))
	for _, e := range entries {
		var item Item
		if err := json.Unmarshal(e.Value, &item); err != nil {
			r.logger.Warn("skipping malformed work item record", "key", e.Key, "error", err)
			continue
		}
		if f.Capability != "" && item.Capability != f.Capability {
			continue
		}
		if f.Status != "" && item.Status != f.Status {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

// SetStatus rewrites an item's record under CAS. Missing records are
// tolerated so queue entries can outlive administratively removed records.
func (r *Router) SetStatus(ctx context.Context, id string, fn func(*Item)) error {
	for attempt := 0; attempt < 5; attempt++ {
		entry, err := r.kv.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading work item %s: %w", id, err)
		}

		var item Item
		if err := json.Unmarshal(entry.Value, &item); err != nil {
			return fmt.Errorf("decoding work item %s: %w", id, err)
		}
		fn(&item)

		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("encoding work item %s: %w", id, err)
		}
		if _, err := r.kv.Update(ctx, id, data, entry.Revision); errors.Is(err, store.ErrConflict) {
			continue
		} else if err != nil {
			return fmt.Errorf("updating work item %s: %w", id, err)
		}
		return nil
	}
	return fmt.Errorf("updating work item %s: %w", id, store.ErrConflict)
}

func (r *Router) ensureQueue(ctx context.Context, capability string) error {
	cfg := stream.Config{
		Name:     stream.WorkStreamName(r.projectID, capability),
		Subjects: []string{stream.WorkSubject(r.projectID, capability)},
	}
	if err := r.log.EnsureStream(ctx, cfg); err != nil {
		return fmt.Errorf("ensuring work queue for %s: %w", capability, err)
	}
	return nil
}
