// Package store is the embedded SQL database (C1): schema, migrations,
// write serialization, integrity check/repair, full-text search and
// pagination over indexed conversations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure-Go, bundled SQLite driver (design note: "bundle the database engine")

	"github.com/aimemory/engine/internal/logging"
)

// Store owns the only durable state of the engine. The read pool serves
// concurrent readers; the single write connection is owned exclusively
// by the writer actor (writer.go).
type Store struct {
	path string

	readDB  *sql.DB
	writeDB *sql.DB

	writer              *writer
	lastIntegrityStatus IntegrityStatus
}

// Open opens or creates the database at path, verifies integrity,
// applies pending migrations, and starts the single-writer actor.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	readDB, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open read pool: %w", err)
	}
	if err := applyPragmas(ctx, readDB); err != nil {
		_ = readDB.Close()
		return nil, err
	}

	writeDB, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		_ = readDB.Close()
		return nil, fmt.Errorf("open write connection: %w", err)
	}
	writeDB.SetMaxOpenConns(1)
	if err := applyPragmas(ctx, writeDB); err != nil {
		_ = readDB.Close()
		_ = writeDB.Close()
		return nil, err
	}

	s := &Store{path: path, readDB: readDB, writeDB: writeDB}

	status, err := s.CheckAndRepair(ctx)
	if err != nil {
		_ = readDB.Close()
		_ = writeDB.Close()
		return nil, fmt.Errorf("integrity check: %w", err)
	}
	s.lastIntegrityStatus = status
	if status != IntegrityOK {
		logging.Warn(ctx, "database integrity repaired", "status", string(status))
	}

	if err := runMigrations(ctx, s.writeDB); err != nil {
		_ = readDB.Close()
		_ = writeDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s.writer = newWriter(s.writeDB)
	return s, nil
}

// LastIntegrityStatus reports the outcome of the startup integrity
// check, surfaced verbatim by RPC health_check (spec §6.3).
func (s *Store) LastIntegrityStatus() IntegrityStatus { return s.lastIntegrityStatus }

func dsn(path string) string {
	return path + "?_pragma=busy_timeout(5000)"
}

func dbOpen(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}
	return nil
}

// Close checkpoints the WAL and closes both connections. The writer
// actor is stopped first so no job is dropped mid-flight.
func (s *Store) Close() error {
	if s.writer != nil {
		s.writer.stop()
	}
	_, _ = s.writeDB.Exec("PRAGMA wal_checkpoint(TRUNCATE);")
	werr := s.writeDB.Close()
	rerr := s.readDB.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// SizeMB returns the on-disk database file size, for health_check.
func (s *Store) SizeMB() (float64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, err
	}
	return float64(info.Size()) / (1024 * 1024), nil
}

// withTimeout is a small helper shared by read-side queries so no single
// read can block indefinitely on a busy writer.
func withTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, 10*time.Second)
}
