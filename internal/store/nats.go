// ABOUTME: JetStream key-value implementation of the Store interface
// ABOUTME: Maps buckets to KV buckets with revision CAS and prefix watches

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSStore implements Store over JetStream key-value buckets. This is the
// production backend: replicas of the coordinator share state through the
// cluster instead of in-process memory.
type NATSStore struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewNATSStore connects to the given NATS URL and prepares a JetStream
// context. The connection retries forever with backoff once established;
// the initial dial uses a bounded timeout.
func NewNATSStore(url string, logger *slog.Logger) (*NATSStore, error) {
	nc, err := nats.Connect(url,
		nats.Timeout(10*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}

	logger.Info("connected to NATS", "url", url)
	return &NATSStore{nc: nc, js: js, logger: logger.With("component", "store")}, nil
}

// NewNATSStoreFromConn wraps an existing connection. The durable log and
// the store share one connection in the coordinator.
func NewNATSStoreFromConn(nc *nats.Conn, logger *slog.Logger) (*NATSStore, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}
	return &NATSStore{nc: nc, js: js, logger: logger.With("component", "store")}, nil
}

// Conn exposes the underlying connection for the durable log.
func (s *NATSStore) Conn() *nats.Conn { return s.nc }

// Bucket returns the named KV bucket, creating it with history depth 1 if
// it does not exist yet. Creation is idempotent across replicas.
func (s *NATSStore) Bucket(ctx context.Context, name string) (KV, error) {
	kv, err := s.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  name,
		History: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("ensuring bucket %s: %w", name, wrapNATSErr(err))
	}
	return &natsBucket{kv: kv}, nil
}

// Close drains the connection so pending publishes flush before exit.
func (s *NATSStore) Close() error {
	if s.nc.IsClosed() {
		return nil
	}
	return s.nc.Drain()
}

type natsBucket struct {
	kv jetstream.KeyValue
}

func (b *natsBucket) Get(ctx context.Context, key string) (Entry, error) {
	entry, err := b.kv.Get(ctx, key)
	if err != nil {
		return Entry{}, wrapNATSErr(err)
	}
	return Entry{Key: key, Value: entry.Value(), Revision: entry.Revision()}, nil
}

func (b *natsBucket) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	rev, err := b.kv.Put(ctx, key, value)
	if err != nil {
		return 0, wrapNATSErr(err)
	}
	return rev, nil
}

func (b *natsBucket) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	rev, err := b.kv.Create(ctx, key, value)
	if err != nil {
		return 0, wrapNATSErr(err)
	}
	return rev, nil
}

func (b *natsBucket) Update(ctx context.Context, key string, value []byte, rev uint64) (uint64, error) {
	newRev, err := b.kv.Update(ctx, key, value, rev)
	if err != nil {
		return 0, wrapNATSErr(err)
	}
	return newRev, nil
}

func (b *natsBucket) Delete(ctx context.Context, key string, rev uint64) error {
	// Purge rather than delete: a delete leaves a tombstone that still
	// shows up in history and key listings of some server versions.
	var opts []jetstream.KVDeleteOpt
	if rev != 0 {
		opts = append(opts, jetstream.LastRevision(rev))
	}
	if _, err := b.kv.Get(ctx, key); err != nil {
		return wrapNATSErr(err)
	}
	if err := b.kv.Purge(ctx, key, opts...); err != nil {
		return wrapNATSErr(err)
	}
	return nil
}

func (b *natsBucket) List(ctx context.Context, prefix string) ([]Entry, error) {
	watcher, err := b.kv.WatchAll(ctx)
	if err != nil {
		return nil, wrapNATSErr(err)
	}
	defer watcher.Stop()

	var out []Entry
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case update := <-watcher.Updates():
			// A nil update marks the end of the initial replay.
			if update == nil {
				return out, nil
			}
			if update.Operation() != jetstream.KeyValuePut {
				continue
			}
			if !strings.HasPrefix(update.Key(), prefix) {
				continue
			}
			out = append(out, Entry{
				Key:      update.Key(),
				Value:    update.Value(),
				Revision: update.Revision(),
			})
		}
	}
}

func (b *natsBucket) Watch(ctx context.Context, prefix string) (<-chan Event, error) {
	// KV key filters are token wildcards, not string prefixes, so watch
	// everything and filter here. Buckets are small (one record per agent
	// or work item), this is not a hot path.
	watcher, err := b.kv.WatchAll(ctx, jetstream.UpdatesOnly())
	if err != nil {
		return nil, wrapNATSErr(err)
	}

	ch := make(chan Event, 64)
	go func() {
		defer close(ch)
		defer watcher.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case update := <-watcher.Updates():
				if update == nil {
					continue
				}
				if !strings.HasPrefix(update.Key(), prefix) {
					continue
				}
				ev := Event{Entry: Entry{
					Key:      update.Key(),
					Value:    update.Value(),
					Revision: update.Revision(),
				}}
				if update.Operation() != jetstream.KeyValuePut {
					ev.Deleted = true
					ev.Value = nil
				}
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// wrapNATSErr folds JetStream error values into the store sentinels so
// callers never import the nats packages.
func wrapNATSErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jetstream.ErrKeyNotFound), errors.Is(err, jetstream.ErrKeyDeleted):
		return ErrNotFound
	case errors.Is(err, jetstream.ErrKeyExists):
		return ErrConflict
	case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, nats.ErrNoResponders),
		errors.Is(err, nats.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// Revision mismatches surface as a stream "wrong last sequence" API
	// error rather than a typed sentinel.
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence {
		return ErrConflict
	}
	return err
}
