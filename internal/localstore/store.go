// Package localstore is the client-local, non-replicated persistent
// storage backing migration markers, legacy data, and backup history.
// It deliberately lives outside the CRDT mechanism: nothing stored here
// syncs to other devices.
package localstore

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added updated_at index for retention scans
const currentSchemaVersion = 1

// ErrQuotaExceeded is returned by Put when the value exceeds the
// configured per-value quota. Callers with droppable history (backups)
// shrink and retry.
var ErrQuotaExceeded = errors.New("localstore: value exceeds storage quota")

// markerValue is the literal stored for completed one-time markers.
const markerValue = "true"

// Store is a key-to-blob store on SQLite.
type Store struct {
	db       *sql.DB
	maxBytes int
}

// Option configures a Store at Open time.
type Option func(*Store)

// WithMaxValueBytes caps the size of a single stored value. Zero means
// unlimited. Oversized writes fail with ErrQuotaExceeded.
func WithMaxValueBytes(n int) Option {
	return func(s *Store) {
		s.maxBytes = n
	}
}

// Open creates or opens the storage database at path (":memory:" works
// for tests). Applies required pragmas and schema migrations; idempotent.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent use.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put writes one key as a single atomic blob, replacing any prior value.
func (s *Store) Put(key string, value []byte) error {
	if s.maxBytes > 0 && len(value) > s.maxBytes {
		return fmt.Errorf("put %q (%d bytes): %w", key, len(value), ErrQuotaExceeded)
	}
	_, err := s.db.Exec(`
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// Get reads one key. ok is false when the key is absent.
func (s *Store) Get(key string) (value []byte, ok bool, err error) {
	err = s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// Delete removes one key. No-op when absent.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// PutMarker sets a one-time completion marker (the literal "true").
func (s *Store) PutMarker(key string) error {
	return s.Put(key, []byte(markerValue))
}

// HasMarker reports whether a one-time marker is set.
func (s *Store) HasMarker(key string) (bool, error) {
	v, ok, err := s.Get(key)
	if err != nil {
		return false, err
	}
	return ok && string(v) == markerValue, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
		version = 1
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_kv_updated ON kv(updated_at)`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}
