package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// migrations is an ordered list of database migrations. Each migration
// runs inside one transaction. Never modify an existing entry — only
// append.
var migrations = []func(ctx context.Context, tx *sql.Tx) error{
	migrateV0,
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	);`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var current int
	row := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), -1) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for v := current + 1; v < len(migrations); v++ {
		if err := runMigration(ctx, db, v); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
	}
	return nil
}

func runMigration(ctx context.Context, db *sql.DB, version int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := migrations[version](ctx, tx); err != nil {
		return fmt.Errorf("apply: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version, applied_at) VALUES (?, ?)", version, now); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}

func migrateV0(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			session_id TEXT PRIMARY KEY,
			project_name TEXT NOT NULL DEFAULT '',
			project_path TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			first_seen_at TEXT NOT NULL,
			last_updated_at TEXT NOT NULL,
			message_count INTEGER NOT NULL DEFAULT 0,
			token_count INTEGER NOT NULL DEFAULT 0,
			source_path TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			conversation_id TEXT NOT NULL REFERENCES conversations(session_id) ON DELETE CASCADE,
			ordinal INTEGER NOT NULL,
			message_id TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			content_kind TEXT NOT NULL DEFAULT 'text',
			created_at TEXT NOT NULL,
			PRIMARY KEY (conversation_id, ordinal)
		);`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
			content,
			content='messages',
			content_rowid='rowid',
			tokenize='porter unicode61'
		);`,
		`CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
			INSERT INTO messages_fts(rowid, content) VALUES (new.rowid, new.content);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
			INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
			INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
			INSERT INTO messages_fts(rowid, content) VALUES (new.rowid, new.content);
		END;`,
		`CREATE TABLE IF NOT EXISTS repositories (
			root TEXT PRIMARY KEY,
			remote_url TEXT NOT NULL DEFAULT '',
			default_branch TEXT NOT NULL DEFAULT '',
			is_monorepo_subdirectory INTEGER NOT NULL DEFAULT 0 CHECK (is_monorepo_subdirectory IN (0,1)),
			subdirectory_path TEXT NOT NULL DEFAULT '',
			cached_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS repository_settings (
			repository_root TEXT PRIMARY KEY REFERENCES repositories(root) ON DELETE CASCADE,
			enabled INTEGER NOT NULL DEFAULT 1 CHECK (enabled IN (0,1)),
			notification_pref TEXT NOT NULL DEFAULT 'every-commit',
			excluded_globs TEXT NOT NULL DEFAULT '[]',
			throttle_seconds INTEGER NOT NULL DEFAULT 2,
			max_file_size_mb INTEGER NOT NULL DEFAULT 10,
			shadow_prefix TEXT NOT NULL DEFAULT 'shadow/'
		);`,
		`CREATE TABLE IF NOT EXISTS shadow_commits (
			commit_hash TEXT PRIMARY KEY,
			shadow_branch TEXT NOT NULL,
			original_branch TEXT NOT NULL,
			repository_root TEXT NOT NULL,
			changed_files TEXT NOT NULL DEFAULT '[]',
			message TEXT NOT NULL DEFAULT '',
			session_id TEXT,
			confidence REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_shadow_commits_repo ON shadow_commits(repository_root, created_at);`,
		`CREATE TABLE IF NOT EXISTS correlations (
			session_id TEXT NOT NULL,
			commit_hash TEXT NOT NULL,
			repository_root TEXT NOT NULL,
			confidence REAL NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (session_id, commit_hash)
		);`,
		`CREATE TABLE IF NOT EXISTS restore_points (
			repository_root TEXT NOT NULL,
			label TEXT NOT NULL,
			commit_hash TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			PRIMARY KEY (repository_root, label)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_restore_points_repo ON restore_points(repository_root, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}
