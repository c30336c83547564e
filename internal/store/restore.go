package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// RestorePoint is a named, stored commit hash serving as a safety
// bookmark for one-click recovery (spec §3/§4.8, C8).
type RestorePoint struct {
	RepositoryRoot string
	Label          string
	CommitHash     string
	Description    string
	CreatedAt      time.Time
}

// ErrRestorePointExists is returned by CreateRestorePoint when the
// (repository, label) pair is already taken — labels are unique per
// repository (spec §3).
var ErrRestorePointExists = fmt.Errorf("restore point label already exists for this repository")

// CreateRestorePoint inserts a new restore point. Fails with
// ErrRestorePointExists if the label is already used for this repository.
func (s *Store) CreateRestorePoint(ctx context.Context, rp RestorePoint) error {
	return s.writer.submit(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var exists int
		row := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM restore_points WHERE repository_root = ? AND label = ?`, rp.RepositoryRoot, rp.Label)
		if err := row.Scan(&exists); err != nil {
			return fmt.Errorf("check existing restore point: %w", err)
		}
		if exists > 0 {
			return ErrRestorePointExists
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO restore_points (repository_root, label, commit_hash, description, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			rp.RepositoryRoot, rp.Label, rp.CommitHash, rp.Description, rp.CreatedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("insert restore point: %w", err)
		}
		return nil
	})
}

// ListRestorePoints returns restore points for root, newest first.
func (s *Store) ListRestorePoints(ctx context.Context, root string, limit int) ([]RestorePoint, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT repository_root, label, commit_hash, description, created_at
		FROM restore_points WHERE repository_root = ?
		ORDER BY created_at DESC LIMIT ?`, root, limit)
	if err != nil {
		return nil, fmt.Errorf("list restore points: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RestorePoint
	for rows.Next() {
		var rp RestorePoint
		var createdAt string
		if err := rows.Scan(&rp.RepositoryRoot, &rp.Label, &rp.CommitHash, &rp.Description, &createdAt); err != nil {
			return nil, err
		}
		rp.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, rp)
	}
	return out, rows.Err()
}

// GetRestorePoint reads a single restore point by label.
func (s *Store) GetRestorePoint(ctx context.Context, root, label string) (*RestorePoint, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.readDB.QueryRowContext(ctx, `
		SELECT repository_root, label, commit_hash, description, created_at
		FROM restore_points WHERE repository_root = ? AND label = ?`, root, label)

	var rp RestorePoint
	var createdAt string
	if err := row.Scan(&rp.RepositoryRoot, &rp.Label, &rp.CommitHash, &rp.Description, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get restore point: %w", err)
	}
	rp.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &rp, nil
}
