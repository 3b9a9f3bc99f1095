// Package sqlite implements queue.Store on an embedded SQLite database.
//
// The database runs in WAL mode with synchronous=FULL so every committed
// mutation survives process death. A single connection serializes writers,
// which makes IncrementRetry atomic without explicit transactions.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/bft-labs/syncq/pkg/queue"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS mutations (
	id             TEXT PRIMARY KEY,
	operation      TEXT NOT NULL,
	resource       TEXT NOT NULL,
	payload        BLOB,
	enqueued_at    INTEGER NOT NULL,
	retry_count    INTEGER NOT NULL DEFAULT 0,
	owner_id       TEXT NOT NULL,
	credential_ref TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_mutations_owner ON mutations(owner_id);
CREATE INDEX IF NOT EXISTS idx_mutations_retry ON mutations(retry_count);
CREATE INDEX IF NOT EXISTS idx_mutations_enqueued ON mutations(enqueued_at);
`

const selectColumns = `SELECT id, operation, resource, payload, enqueued_at, retry_count, owner_id, credential_ref FROM mutations`

// Store is a queue.Store backed by SQLite.
type Store struct {
	path string
	opts queue.Options

	mu sync.RWMutex
	db *sql.DB
}

var _ queue.Store = (*Store)(nil)

// New creates a Store for the database file at path. The file is opened by
// Initialize.
func New(path string, opts ...queue.Option) *Store {
	return &Store{
		path: path,
		opts: queue.BuildOptions(opts...),
	}
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Initialize opens the database and applies the schema. Safe to call more
// than once.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("%w: create directory: %v", queue.ErrStorageUnavailable, err)
	}

	db, err := sql.Open("sqlite3", "file:"+s.path)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", queue.ErrStorageUnavailable, s.path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("%w: ping %s: %v", queue.ErrStorageUnavailable, s.path, err)
	}
	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return fmt.Errorf("%w: %v", queue.ErrStorageUnavailable, err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return fmt.Errorf("%w: apply schema: %v", queue.ErrStorageUnavailable, err)
	}

	s.db = db
	return nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("execute %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, queue.ErrNotInitialized
	}
	return s.db, nil
}

// Add implements queue.Store.
func (s *Store) Add(ctx context.Context, m queue.Mutation) (string, error) {
	if err := m.Validate(); err != nil {
		return "", err
	}
	db, err := s.conn()
	if err != nil {
		return "", err
	}

	return queue.AddWithRetry(s.opts.Generator, func(id string) error {
		rec := queue.NewRecord(id, m, s.opts.Clock.Now())

		var payload []byte
		if len(rec.Payload) > 0 {
			payload = rec.Payload
		}

		res, err := db.ExecContext(ctx, `
			INSERT INTO mutations (id, operation, resource, payload, enqueued_at, retry_count, owner_id, credential_ref)
			VALUES (?, ?, ?, ?, ?, 0, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			rec.ID, string(rec.Operation), rec.Resource, payload,
			rec.EnqueuedAt.UnixNano(), rec.OwnerID, rec.CredentialRef,
		)
		if err != nil {
			return fmt.Errorf("insert mutation: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert mutation: %w", err)
		}
		if n == 0 {
			return queue.ErrWriteConflict
		}
		return nil
	})
}

// GetAll implements queue.Store.
func (s *Store) GetAll(ctx context.Context) ([]queue.Record, error) {
	return s.query(ctx, selectColumns+` ORDER BY enqueued_at, id`)
}

// GetByOwner implements queue.Store.
func (s *Store) GetByOwner(ctx context.Context, ownerID string) ([]queue.Record, error) {
	return s.query(ctx, selectColumns+` WHERE owner_id = ? ORDER BY enqueued_at, id`, ownerID)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]queue.Record, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query mutations: %w", err)
	}
	defer rows.Close()

	out := make([]queue.Record, 0)
	for rows.Next() {
		var (
			rec      queue.Record
			op       string
			payload  []byte
			enqueued int64
		)
		if err := rows.Scan(&rec.ID, &op, &rec.Resource, &payload, &enqueued,
			&rec.RetryCount, &rec.OwnerID, &rec.CredentialRef); err != nil {
			return nil, fmt.Errorf("scan mutation: %w", err)
		}
		rec.Operation = queue.Operation(op)
		if len(payload) > 0 {
			rec.Payload = json.RawMessage(payload)
		}
		rec.EnqueuedAt = time.Unix(0, enqueued).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mutations: %w", err)
	}
	return out, nil
}

// Remove implements queue.Store.
func (s *Store) Remove(ctx context.Context, id string) error {
	return s.execOne(ctx, `DELETE FROM mutations WHERE id = ?`, id)
}

// IncrementRetry implements queue.Store.
func (s *Store) IncrementRetry(ctx context.Context, id string) error {
	return s.execOne(ctx, `UPDATE mutations SET retry_count = retry_count + 1 WHERE id = ?`, id)
}

// execOne runs a statement expected to touch exactly one row.
func (s *Store) execOne(ctx context.Context, q string, id string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("update mutation %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update mutation %s: %w", id, err)
	}
	if n == 0 {
		return queue.ErrNotFound
	}
	return nil
}

// Clear implements queue.Store.
func (s *Store) Clear(ctx context.Context) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM mutations`); err != nil {
		return fmt.Errorf("clear mutations: %w", err)
	}
	return nil
}

// Stats implements queue.Store.
func (s *Store) Stats(ctx context.Context) (queue.Stats, error) {
	db, err := s.conn()
	if err != nil {
		return queue.Stats{}, err
	}

	var st queue.Stats
	err = db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN retry_count = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN retry_count >= ? THEN 1 ELSE 0 END), 0)
		FROM mutations`, s.opts.MaxRetries,
	).Scan(&st.Total, &st.Pending, &st.FailedPermanently)
	if err != nil {
		return queue.Stats{}, fmt.Errorf("query stats: %w", err)
	}
	return st, nil
}

// Close checkpoints the WAL and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := s.db.Close()
	s.db = nil
	if err != nil && !errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
