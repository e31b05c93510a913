// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Standalone-mode backend with per-key revision counters for CAS

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a local SQLite file. It exists for
// standalone deployments without a NATS cluster; it must not be shared by
// multiple coordinator replicas. Watch is unsupported — callers poll.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a store at the given path. The schema is created
// if it doesn't exist, and parent directories are created as needed.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for concurrent readers alongside the writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS kv (
			bucket   TEXT NOT NULL,
			key      TEXT NOT NULL,
			value    BLOB NOT NULL,
			revision INTEGER NOT NULL,
			PRIMARY KEY (bucket, key)
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return &SQLiteStore{db: db, logger: logger.With("component", "store")}, nil
}

// Bucket returns a view over the named bucket. Buckets exist implicitly.
func (s *SQLiteStore) Bucket(_ context.Context, name string) (KV, error) {
	return &sqliteBucket{db: s.db, name: name}, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

type sqliteBucket struct {
	db   *sql.DB
	name string
}

func (b *sqliteBucket) Get(ctx context.Context, key string) (Entry, error) {
	var e Entry
	e.Key = key
	err := b.db.QueryRowContext(ctx,
		"SELECT value, revision FROM kv WHERE bucket = ? AND key = ?",
		b.name, key,
	).Scan(&e.Value, &e.Revision)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return e, nil
}

func (b *sqliteBucket) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	var rev uint64
	err := b.db.QueryRowContext(ctx, `
		INSERT INTO kv (bucket, key, value, revision) VALUES (?, ?, ?, 1)
		ON CONFLICT (bucket, key) DO UPDATE SET value = excluded.value, revision = kv.revision + 1
		RETURNING revision`,
		b.name, key, value,
	).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rev, nil
}

func (b *sqliteBucket) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	res, err := b.db.ExecContext(ctx,
		"INSERT INTO kv (bucket, key, value, revision) VALUES (?, ?, ?, 1) ON CONFLICT DO NOTHING",
		b.name, key, value,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 0 {
		return 0, ErrConflict
	}
	return 1, nil
}

func (b *sqliteBucket) Update(ctx context.Context, key string, value []byte, rev uint64) (uint64, error) {
	res, err := b.db.ExecContext(ctx,
		"UPDATE kv SET value = ?, revision = revision + 1 WHERE bucket = ? AND key = ? AND revision = ?",
		value, b.name, key, rev,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 0 {
		// Distinguish a missing key from a lost race for the caller.
		if _, err := b.Get(ctx, key); errors.Is(err, ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, ErrConflict
	}
	return rev + 1, nil
}

func (b *sqliteBucket) Delete(ctx context.Context, key string, rev uint64) error {
	query := "DELETE FROM kv WHERE bucket = ? AND key = ?"
	args := []any{b.name, key}
	if rev != 0 {
		query += " AND revision = ?"
		args = append(args, rev)
	}
	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 0 {
		if _, err := b.Get(ctx, key); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (b *sqliteBucket) List(ctx context.Context, prefix string) ([]Entry, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT key, value, revision FROM kv WHERE bucket = ? AND substr(key, 1, length(?)) = ? ORDER BY key",
		b.name, prefix, prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value, &e.Revision); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (b *sqliteBucket) Watch(context.Context, string) (<-chan Event, error) {
	return nil, ErrWatchUnsupported
}
