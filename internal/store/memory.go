// ABOUTME: In-memory Store implementation with revisions and prefix watches
// ABOUTME: Backs component tests and doubles as the reference CAS semantics

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store. It is safe for concurrent use and
// implements the same revision semantics as the JetStream backend.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]*memoryBucket)}
}

// Bucket returns the named bucket, creating it on first use.
func (s *MemoryStore) Bucket(_ context.Context, name string) (KV, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[name]
	if !ok {
		b = &memoryBucket{entries: make(map[string]Entry)}
		s.buckets[name] = b
	}
	return b, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

type memoryBucket struct {
	mu       sync.Mutex
	rev      uint64
	entries  map[string]Entry
	watchers []*memoryWatcher
}

type memoryWatcher struct {
	prefix string
	ch     chan Event
	done   <-chan struct{}
}

func (b *memoryBucket) Get(_ context.Context, key string) (Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (b *memoryBucket) Put(_ context.Context, key string, value []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writeLocked(key, value), nil
}

func (b *memoryBucket) Create(_ context.Context, key string, value []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.entries[key]; exists {
		return 0, ErrConflict
	}
	return b.writeLocked(key, value), nil
}

func (b *memoryBucket) Update(_ context.Context, key string, value []byte, rev uint64) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur, ok := b.entries[key]
	if !ok {
		return 0, ErrNotFound
	}
	if cur.Revision != rev {
		return 0, ErrConflict
	}
	return b.writeLocked(key, value), nil
}

func (b *memoryBucket) Delete(_ context.Context, key string, rev uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur, ok := b.entries[key]
	if !ok {
		return ErrNotFound
	}
	if rev != 0 && cur.Revision != rev {
		return ErrConflict
	}
	delete(b.entries, key)
	b.notifyLocked(Event{Entry: Entry{Key: key, Revision: cur.Revision}, Deleted: true})
	return nil
}

func (b *memoryBucket) List(_ context.Context, prefix string) ([]Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Entry, 0, len(b.entries))
	for k, e := range b.entries {
		if strings.HasPrefix(k, prefix) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (b *memoryBucket) Watch(ctx context.Context, prefix string) (<-chan Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	w := &memoryWatcher{
		prefix: prefix,
		ch:     make(chan Event, 64),
		done:   ctx.Done(),
	}
	b.watchers = append(b.watchers, w)

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		for i, ww := range b.watchers {
			if ww == w {
				b.watchers = append(b.watchers[:i], b.watchers[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		close(w.ch)
	}()

	return w.ch, nil
}

// writeLocked stores the value under the next bucket revision and notifies
// watchers. Must be called with mu held.
func (b *memoryBucket) writeLocked(key string, value []byte) uint64 {
	b.rev++
	e := Entry{Key: key, Value: append([]byte(nil), value...), Revision: b.rev}
	b.entries[key] = e
	b.notifyLocked(Event{Entry: e})
	return b.rev
}

// notifyLocked fans an event out to matching watchers. Slow watchers drop
// events rather than block mutations; watch consumers reconcile by listing.
func (b *memoryBucket) notifyLocked(ev Event) {
	for _, w := range b.watchers {
		if !strings.HasPrefix(ev.Key, w.prefix) {
			continue
		}
		select {
		case <-w.done:
		case w.ch <- ev:
		default:
		}
	}
}
