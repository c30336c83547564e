package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Repository is the cached metadata the resolver (C5) persists so it
// doesn't have to re-derive default branch/remote on every lookup
// within the cache TTL (spec §3 "Repository").
type Repository struct {
	Root                  string
	RemoteURL             string
	DefaultBranch         string
	IsMonorepoSubdirectory bool
	SubdirectoryPath      string
	CachedAt              time.Time
}

// RepositorySettings is the per-repository shadow-commit configuration
// (spec §3 "Repository Settings").
type RepositorySettings struct {
	RepositoryRoot   string
	Enabled          bool
	NotificationPref string
	ExcludedGlobs    []string
	ThrottleSeconds  int
	MaxFileSizeMB    int
	ShadowPrefix     string
}

// UpsertRepository records or refreshes the cached repository row.
func (s *Store) UpsertRepository(ctx context.Context, r Repository) error {
	return s.writer.submit(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO repositories (root, remote_url, default_branch, is_monorepo_subdirectory, subdirectory_path, cached_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(root) DO UPDATE SET
				remote_url = excluded.remote_url,
				default_branch = excluded.default_branch,
				is_monorepo_subdirectory = excluded.is_monorepo_subdirectory,
				subdirectory_path = excluded.subdirectory_path,
				cached_at = excluded.cached_at`,
			r.Root, r.RemoteURL, r.DefaultBranch, boolToInt(r.IsMonorepoSubdirectory), r.SubdirectoryPath, r.CachedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("upsert repository: %w", err)
		}
		return nil
	})
}

// GetRepository returns the cached row for root, or nil if never seen.
func (s *Store) GetRepository(ctx context.Context, root string) (*Repository, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.readDB.QueryRowContext(ctx, `
		SELECT root, remote_url, default_branch, is_monorepo_subdirectory, subdirectory_path, cached_at
		FROM repositories WHERE root = ?`, root)

	var r Repository
	var isMonorepo int
	var cachedAt string
	if err := row.Scan(&r.Root, &r.RemoteURL, &r.DefaultBranch, &isMonorepo, &r.SubdirectoryPath, &cachedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get repository: %w", err)
	}
	r.IsMonorepoSubdirectory = intToBool(isMonorepo)
	r.CachedAt, _ = time.Parse(time.RFC3339, cachedAt)
	return &r, nil
}

// EnsureRepositorySettings creates a default settings row for root if one
// does not already exist (lazy creation on first discovery, spec §3).
func (s *Store) EnsureRepositorySettings(ctx context.Context, root string, defaults RepositorySettings) error {
	return s.writer.submit(ctx, func(ctx context.Context, tx *sql.Tx) error {
		globsJSON, err := json.Marshal(defaults.ExcludedGlobs)
		if err != nil {
			return fmt.Errorf("marshal excluded globs: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO repository_settings
				(repository_root, enabled, notification_pref, excluded_globs, throttle_seconds, max_file_size_mb, shadow_prefix)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(repository_root) DO NOTHING`,
			root, boolToInt(defaults.Enabled), defaults.NotificationPref, string(globsJSON), defaults.ThrottleSeconds, defaults.MaxFileSizeMB, defaults.ShadowPrefix)
		if err != nil {
			return fmt.Errorf("ensure repository settings: %w", err)
		}
		return nil
	})
}

// GetRepositorySettings reads the effective settings for root, or nil if
// the repository has never been registered.
func (s *Store) GetRepositorySettings(ctx context.Context, root string) (*RepositorySettings, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.readDB.QueryRowContext(ctx, `
		SELECT repository_root, enabled, notification_pref, excluded_globs, throttle_seconds, max_file_size_mb, shadow_prefix
		FROM repository_settings WHERE repository_root = ?`, root)

	var rs RepositorySettings
	var enabled int
	var globsJSON string
	if err := row.Scan(&rs.RepositoryRoot, &enabled, &rs.NotificationPref, &globsJSON, &rs.ThrottleSeconds, &rs.MaxFileSizeMB, &rs.ShadowPrefix); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get repository settings: %w", err)
	}
	rs.Enabled = intToBool(enabled)
	_ = json.Unmarshal([]byte(globsJSON), &rs.ExcludedGlobs)
	return &rs, nil
}

// UpdateRepositorySettings overwrites the settings row for root (must
// already exist via EnsureRepositorySettings).
func (s *Store) UpdateRepositorySettings(ctx context.Context, rs RepositorySettings) error {
	return s.writer.submit(ctx, func(ctx context.Context, tx *sql.Tx) error {
		globsJSON, err := json.Marshal(rs.ExcludedGlobs)
		if err != nil {
			return fmt.Errorf("marshal excluded globs: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE repository_settings SET
				enabled = ?, notification_pref = ?, excluded_globs = ?,
				throttle_seconds = ?, max_file_size_mb = ?, shadow_prefix = ?
			WHERE repository_root = ?`,
			boolToInt(rs.Enabled), rs.NotificationPref, string(globsJSON), rs.ThrottleSeconds, rs.MaxFileSizeMB, rs.ShadowPrefix, rs.RepositoryRoot)
		if err != nil {
			return fmt.Errorf("update repository settings: %w", err)
		}
		return nil
	})
}

// ListEnabledRepositories returns every repository with enabled settings,
// for startup re-registration of shadow workers.
func (s *Store) ListEnabledRepositories(ctx context.Context) ([]string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.readDB.QueryContext(ctx, `SELECT repository_root FROM repository_settings WHERE enabled = 1`)
	if err != nil {
		return nil, fmt.Errorf("list enabled repositories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var root string
		if err := rows.Scan(&root); err != nil {
			return nil, err
		}
		out = append(out, root)
	}
	return out, rows.Err()
}

// ListAllRepositorySettings returns every registered repository's
// settings, enabled or not, ordered by root — used by the CLI's "list"
// command (spec §6.4 management surface).
func (s *Store) ListAllRepositorySettings(ctx context.Context) ([]RepositorySettings, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.readDB.QueryContext(ctx, `
		SELECT repository_root, enabled, notification_pref, excluded_globs, throttle_seconds, max_file_size_mb, shadow_prefix
		FROM repository_settings ORDER BY repository_root`)
	if err != nil {
		return nil, fmt.Errorf("list repository settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RepositorySettings
	for rows.Next() {
		var rs RepositorySettings
		var enabled int
		var globsJSON string
		if err := rows.Scan(&rs.RepositoryRoot, &enabled, &rs.NotificationPref, &globsJSON, &rs.ThrottleSeconds, &rs.MaxFileSizeMB, &rs.ShadowPrefix); err != nil {
			return nil, err
		}
		rs.Enabled = intToBool(enabled)
		_ = json.Unmarshal([]byte(globsJSON), &rs.ExcludedGlobs)
		out = append(out, rs)
	}
	return out, rows.Err()
}
