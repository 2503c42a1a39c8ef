// Package storage provides durable local persistence for geodash on a
// single-file SQLite database. Everything is stored as a key-value table:
// cached weather series under the "series:" namespace and the application
// snapshot under "state:". Values are gzip-compressed JSON blobs.
package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/klauspost/compress/gzip"
	_ "modernc.org/sqlite"

	"geodash/internal/types"
)

// Namespace prefixes for keys. Callers compose full keys with BuildKey.
const (
	NamespaceSeries = "series"
	NamespaceState  = "state"
)

// ErrNotFound is returned by Get when no row exists for a key.
var ErrNotFound = errors.New("storage: key not found")

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_kv_updated_at ON kv(updated_at);
`

// Store is a durable key-value store on a local SQLite file. Safe for
// concurrent use; SQLite serializes writers internally and the connection
// pool is capped at one writer.
type Store struct {
	db     *sql.DB
	clock  types.Clock
	logger *slog.Logger
}

// Options configures a Store.
type Options struct {
	// Path is the SQLite file path. ":memory:" gives an in-process store,
	// useful in tests.
	Path   string
	Clock  types.Clock
	Logger *slog.Logger
}

// Open opens (creating if needed) the SQLite database at opts.Path and
// ensures the schema exists.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, types.NewAppError(types.ErrCodeInternalStorage, "storage path is required", nil)
	}
	clock := opts.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", opts.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStorage, "failed to open storage database", err)
	}
	// A single connection avoids SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, types.NewAppError(types.ErrCodeInternalStorage, "failed to initialize storage schema", err)
	}

	logger.Debug("storage opened", "path", opts.Path)
	return &Store{db: db, clock: clock, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// BuildKey composes a namespaced key.
func BuildKey(namespace, key string) string {
	return namespace + ":" + key
}

// Put upserts a value for key, compressing it before write.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	compressed, err := compress(value)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, "failed to compress value", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, compressed, s.clock.Now().UTC().Unix(),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, fmt.Sprintf("failed to write key %q", key), err)
	}
	return nil
}

// Get returns the decompressed value for key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&compressed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStorage, fmt.Sprintf("failed to read key %q", key), err)
	}
	value, err := decompress(compressed)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalStorage, fmt.Sprintf("failed to decompress key %q", key), err)
	}
	return value, nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return types.NewAppError(types.ErrCodeInternalStorage, fmt.Sprintf("failed to delete key %q", key), err)
	}
	return nil
}

// DeleteNamespace removes every key under a namespace prefix and returns
// the number of rows removed.
func (s *Store) DeleteNamespace(ctx context.Context, namespace string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key LIKE ? ESCAPE '\'`, escapeLike(namespace)+":%")
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalStorage, fmt.Sprintf("failed to clear namespace %q", namespace), err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PruneOlderThan removes entries in a namespace whose last write predates
// the cutoff. Used to keep stale cached series from accumulating.
func (s *Store) PruneOlderThan(ctx context.Context, namespace string, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE key LIKE ? ESCAPE '\' AND updated_at < ?`,
		escapeLike(namespace)+":%", cutoff.UTC().Unix(),
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalStorage, fmt.Sprintf("failed to prune namespace %q", namespace), err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func escapeLike(s string) string {
	var b bytes.Buffer
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func compress(value []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(value); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(compressed []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
