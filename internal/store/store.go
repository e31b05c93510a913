// ABOUTME: Store interface and error sentinels for heddle's replicated registry state
// ABOUTME: Defines revisioned key-value buckets with CAS updates and prefix watches

package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested key or bucket entry does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a compare-and-swap update or delete loses a
// race, or when creating a key that already exists.
var ErrConflict = errors.New("revision conflict")

// ErrUnavailable is returned when the backing store cannot be reached after
// the internal retry budget is exhausted.
var ErrUnavailable = errors.New("store unavailable")

// ErrWatchUnsupported is returned by Watch on backends without change
// notification. Callers fall back to interval polling.
var ErrWatchUnsupported = errors.New("watch not supported")

// Entry is a single revisioned key-value pair.
type Entry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// Event is a change notification delivered by Watch.
type Event struct {
	Entry
	Deleted bool
}

// KV is one named bucket of revisioned keys. All mutations are atomic per
// key; concurrent writers are resolved by revision checks, never by
// last-writer-wins overwrites of stale reads.
type KV interface {
	// Get returns the current entry for key, or ErrNotFound.
	Get(ctx context.Context, key string) (Entry, error)

	// Put writes key unconditionally and returns the new revision.
	Put(ctx context.Context, key string, value []byte) (uint64, error)

	// Create writes key only if it does not exist. Returns ErrConflict if
	// the key is already present.
	Create(ctx context.Context, key string, value []byte) (uint64, error)

	// Update writes key only if its current revision matches rev.
	// Returns ErrConflict on a lost race and ErrNotFound if the key is gone.
	Update(ctx context.Context, key string, value []byte, rev uint64) (uint64, error)

	// Delete removes key. A non-zero rev makes the delete conditional on the
	// current revision. Returns ErrNotFound if the key does not exist.
	Delete(ctx context.Context, key string, rev uint64) error

	// List returns all entries whose key starts with prefix. An empty
	// prefix returns the whole bucket.
	List(ctx context.Context, prefix string) ([]Entry, error)

	// Watch streams change events for keys under prefix until ctx is
	// cancelled. Backends without native notification return
	// ErrWatchUnsupported.
	Watch(ctx context.Context, prefix string) (<-chan Event, error)
}

// Store hands out named buckets. Implementations: JetStream KV for
// clustered deployments, SQLite for standalone mode, memory for tests.
type Store interface {
	Bucket(ctx context.Context, name string) (KV, error)
	Close() error
}

// Well-known bucket names shared by the coordinator components.
const (
	BucketAgents      = "agent-registry"
	BucketWorkItems   = "work-items"
	BucketDeadLetters = "dead-letter"
	BucketTargets     = "targets"
)
