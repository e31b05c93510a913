// ABOUTME: Dead-letter store for work items that exhausted their delivery attempts
// ABOUTME: Retry and discard race safely through revision CAS, first writer wins

package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/threadworks/heddle/internal/store"
	"github.com/threadworks/heddle/internal/work"
)

// Entry is one dead-lettered item, keyed by the work item's ID so
// escalation is idempotent across replicas. Field names match the wire
// format.
type Entry struct {
	ID       string    `json:"id"`
	WorkItem work.Item `json:"workItem"`
	Reason   string    `json:"reason"`
	Errors   []string  `json:"errors,omitempty"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failedAt"`
}

// Manager owns the dead-letter bucket.
type Manager struct {
	kv     store.KV
	router *work.Router
	logger *slog.Logger
}

// NewManager creates a Manager over the dead-letter bucket. The router is
// used to requeue retried items and keep their status records current.
func NewManager(kv store.KV, router *work.Router, logger *slog.Logger) *Manager {
	return &Manager{kv: kv, router: router, logger: logger.With("component", "deadletter")}
}

// Escalate records the item as dead-lettered. Escalating the same item
// twice is a no-op; only the first replica's entry sticks.
func (m *Manager) Escalate(ctx context.Context, item work.Item, reason string) error {
	entry := Entry{
		ID:       item.ID,
		WorkItem: item,
		Reason:   reason,
		Errors:   item.Errors,
		Attempts: item.Attempts,
		FailedAt: time.Now().UTC(),
	}
	entry.WorkItem.Status = work.StatusDeadLettered

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding dead letter: %w", err)
	}
	if _, err := m.kv.Create(ctx, entry.ID, data); errors.Is(err, store.ErrConflict) {
		return nil
	} else if err != nil {
		return fmt.Errorf("recording dead letter: %w", err)
	}

	if err := m.router.SetStatus(ctx, item.ID, func(rec *work.Item) {
		rec.Status = work.StatusDeadLettered
	}); err != nil {
		m.logger.Warn("marking item dead-lettered failed", "id", item.ID, "error", err)
	}

	m.logger.Warn("work item escalated to dead letter",
		"id", item.ID, "capability", item.Capability, "reason", reason)
	return nil
}

// Get returns one dead-letter entry.
func (m *Manager) Get(ctx context.Context, id string) (Entry, error) {
	raw, err := m.kv.Get(ctx, id)
	if err != nil {
		return Entry{}, fmt.Errorf("reading dead letter %s: %w", id, err)
	}
	var entry Entry
	if err := json.Unmarshal(raw.Value, &entry); err != nil {
		return Entry{}, fmt.Errorf("decoding dead letter %s: %w", id, err)
	}
	return entry, nil
}

// List returns dead letters, optionally filtered by capability. Listing
// never mutates the bucket.
func (m *Manager) List(ctx context.Context, capability string) ([]Entry, error) {
	raws, err := m.kv.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing dead letters: %w", err)
	}

	out := make([]Entry, 0, len(raws))
	for _, raw := range raws {
		var entry Entry
		if err := json.Unmarshal(raw.Value, &entry); err != nil {
			m.logger.Warn("skipping malformed dead letter", "key", raw.Key, "error", err)
			continue
		}
		if capability != "" && entry.WorkItem.Capability != capability {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// Retry removes the entry and requeues its work item. With resetAttempts
// the item starts over with a clean attempt budget; without it the prior
// attempts carry forward and the next failure re-escalates immediately.
// Concurrent retries and discards of one entry resolve by revision: the
// first caller wins, the rest get store.ErrNotFound.
func (m *Manager) Retry(ctx context.Context, id string, resetAttempts bool) (work.Item, error) {
	entry, rev, err := m.getWithRevision(ctx, id)
	if err != nil {
		return work.Item{}, err
	}

	if err := m.claim(ctx, id, rev); err != nil {
		return work.Item{}, err
	}

	item := entry.WorkItem
	item.Status = work.StatusPending
	if resetAttempts {
		item.Attempts = 0
		item.Errors = nil
	}

	if err := m.router.SetStatus(ctx, item.ID, func(rec *work.Item) {
		rec.Status = work.StatusPending
		rec.Attempts = item.Attempts
		rec.Errors = item.Errors
	}); err != nil {
		m.logger.Warn("resetting item status failed", "id", item.ID, "error", err)
	}
	if err := m.router.Enqueue(ctx, item); err != nil {
		return work.Item{}, err
	}

	m.logger.Info("dead letter retried",
		"id", id, "reset_attempts", resetAttempts, "capability", item.Capability)
	return item, nil
}

// Discard removes the entry permanently. The work item's record stays
// dead-lettered for the audit trail. Discarding a missing entry returns
// store.ErrNotFound.
func (m *Manager) Discard(ctx context.Context, id string) error {
	_, rev, err := m.getWithRevision(ctx, id)
	if err != nil {
		return err
	}
	if err := m.claim(ctx, id, rev); err != nil {
		return err
	}
	m.logger.Info("dead letter discarded", "id", id)
	return nil
}

func (m *Manager) getWithRevision(ctx context.Context, id string) (Entry, uint64, error) {
	raw, err := m.kv.Get(ctx, id)
	if err != nil {
		return Entry{}, 0, fmt.Errorf("reading dead letter %s: %w", id, err)
	}
	var entry Entry
	if err := json.Unmarshal(raw.Value, &entry); err != nil {
		return Entry{}, 0, fmt.Errorf("decoding dead letter %s: %w", id, err)
	}
	return entry, raw.Revision, nil
}

// claim deletes the entry at the observed revision. A concurrent winner
// already removed it, so any conflict collapses to not-found for the
// loser.
func (m *Manager) claim(ctx context.Context, id string, rev uint64) error {
	err := m.kv.Delete(ctx, id, rev)
	if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("claiming dead letter %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("claiming dead letter %s: %w", id, err)
	}
	return nil
}
