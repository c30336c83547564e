package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// ShadowCommit is one auto-commit produced by the shadow-commit engine
// (C6), optionally correlated with a conversation (spec §3).
type ShadowCommit struct {
	CommitHash     string
	ShadowBranch   string
	OriginalBranch string
	RepositoryRoot string
	ChangedFiles   []string
	Message        string
	SessionID      string // empty when uncorrelated
	Confidence     float64
	CreatedAt      time.Time
}

// RecordShadowCommit persists a shadow commit and, if it carries a
// correlated session, the matching Correlation row, in one transaction
// (spec §3 invariant: "every shadow commit's correlated session, if
// any, exists in Conversation" — the caller is responsible for having
// already upserted that conversation before calling this).
func (s *Store) RecordShadowCommit(ctx context.Context, c ShadowCommit) error {
	return s.writer.submit(ctx, func(ctx context.Context, tx *sql.Tx) error {
		filesJSON, err := json.Marshal(c.ChangedFiles)
		if err != nil {
			return fmt.Errorf("marshal changed files: %w", err)
		}

		var sessionID sql.NullString
		if c.SessionID != "" {
			sessionID = sql.NullString{String: c.SessionID, Valid: true}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO shadow_commits
				(commit_hash, shadow_branch, original_branch, repository_root, changed_files, message, session_id, confidence, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(commit_hash) DO UPDATE SET
				changed_files = excluded.changed_files,
				message = excluded.message,
				session_id = excluded.session_id,
				confidence = excluded.confidence`,
			c.CommitHash, c.ShadowBranch, c.OriginalBranch, c.RepositoryRoot, string(filesJSON), c.Message, sessionID, c.Confidence, c.CreatedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("insert shadow commit: %w", err)
		}

		if c.SessionID != "" {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO correlations (session_id, commit_hash, repository_root, confidence, created_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(session_id, commit_hash) DO UPDATE SET confidence = excluded.confidence`,
				c.SessionID, c.CommitHash, c.RepositoryRoot, c.Confidence, c.CreatedAt.UTC().Format(time.RFC3339)); err != nil {
				return fmt.Errorf("insert correlation: %w", err)
			}
		}
		return nil
	})
}

// ShadowCommitsForRepository lists shadow commits for a repository,
// most recent first, bounded by limit.
func (s *Store) ShadowCommitsForRepository(ctx context.Context, root string, limit int) ([]ShadowCommit, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT commit_hash, shadow_branch, original_branch, repository_root, changed_files, message, session_id, confidence, created_at
		FROM shadow_commits WHERE repository_root = ?
		ORDER BY created_at DESC LIMIT ?`, root, limit)
	if err != nil {
		return nil, fmt.Errorf("list shadow commits: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ShadowCommit
	for rows.Next() {
		c, err := scanShadowCommit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CorrelatedSession returns the session most strongly correlated with a
// commit hash, if any (spec §6.3 consumers that answer "which
// conversation produced this commit?").
func (s *Store) CorrelatedSession(ctx context.Context, commitHash string) (string, float64, bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var sessionID string
	var confidence float64
	row := s.readDB.QueryRowContext(ctx, `
		SELECT session_id, confidence FROM correlations
		WHERE commit_hash = ? ORDER BY confidence DESC LIMIT 1`, commitHash)
	if err := row.Scan(&sessionID, &confidence); err != nil {
		if err == sql.ErrNoRows {
			return "", 0, false, nil
		}
		return "", 0, false, fmt.Errorf("get correlated session: %w", err)
	}
	return sessionID, confidence, true, nil
}

func scanShadowCommit(rows *sql.Rows) (ShadowCommit, error) {
	var c ShadowCommit
	var filesJSON, createdAt string
	var sessionID sql.NullString
	if err := rows.Scan(&c.CommitHash, &c.ShadowBranch, &c.OriginalBranch, &c.RepositoryRoot, &filesJSON, &c.Message, &sessionID, &c.Confidence, &createdAt); err != nil {
		return ShadowCommit{}, err
	}
	_ = json.Unmarshal([]byte(filesJSON), &c.ChangedFiles)
	c.SessionID = sessionID.String
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return c, nil
}
