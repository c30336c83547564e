package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Conversation is the durable record of one indexed session file.
type Conversation struct {
	SessionID     string
	ProjectName   string
	ProjectPath   string
	Title         string
	FirstSeenAt   time.Time
	LastUpdatedAt time.Time
	MessageCount  int
	TokenCount    int
	SourcePath    string
}

// Message is one entry in a conversation, identified by its dense
// ordinal position.
type Message struct {
	Ordinal     int
	MessageID   string
	Role        string
	Content     string
	ContentKind string
	CreatedAt   time.Time
}

// UpsertConversation inserts or updates a conversation row by session
// identifier (spec §3: "re-indexing the same file never creates a
// duplicate conversation row").
func (s *Store) UpsertConversation(ctx context.Context, c Conversation) error {
	return s.writer.submit(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return upsertConversationTx(ctx, tx, c)
	})
}

func upsertConversationTx(ctx context.Context, tx *sql.Tx, c Conversation) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO conversations
			(session_id, project_name, project_path, title, first_seen_at, last_updated_at, message_count, token_count, source_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			project_name = excluded.project_name,
			project_path = excluded.project_path,
			title = excluded.title,
			last_updated_at = excluded.last_updated_at,
			message_count = excluded.message_count,
			token_count = excluded.token_count,
			source_path = excluded.source_path
	`,
		c.SessionID, c.ProjectName, c.ProjectPath, c.Title,
		c.FirstSeenAt.UTC().Format(time.RFC3339), c.LastUpdatedAt.UTC().Format(time.RFC3339),
		c.MessageCount, c.TokenCount, c.SourcePath)
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

// ReplaceMessages replaces the full message set of a conversation within
// the same transaction as the conversation upsert, so a re-index is
// atomic (spec §4.3: "upsert + replace-messages under one transaction").
func (s *Store) ReplaceMessages(ctx context.Context, c Conversation, messages []Message) error {
	return s.writer.submit(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := upsertConversationTx(ctx, tx, c); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", c.SessionID); err != nil {
			return fmt.Errorf("clear previous messages: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO messages (conversation_id, ordinal, message_id, role, content, content_kind, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare message insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, m := range messages {
			if _, err := stmt.ExecContext(ctx, c.SessionID, m.Ordinal, m.MessageID, m.Role, m.Content, m.ContentKind, m.CreatedAt.UTC().Format(time.RFC3339)); err != nil {
				return fmt.Errorf("insert message ordinal %d: %w", m.Ordinal, err)
			}
		}
		return nil
	})
}

// GetConversation reads a single conversation by session identifier.
func (s *Store) GetConversation(ctx context.Context, sessionID string) (*Conversation, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.readDB.QueryRowContext(ctx, `
		SELECT session_id, project_name, project_path, title, first_seen_at, last_updated_at, message_count, token_count, source_path
		FROM conversations WHERE session_id = ?`, sessionID)
	return scanConversation(row)
}

func scanConversation(row *sql.Row) (*Conversation, error) {
	var c Conversation
	var firstSeen, lastUpdated string
	err := row.Scan(&c.SessionID, &c.ProjectName, &c.ProjectPath, &c.Title, &firstSeen, &lastUpdated, &c.MessageCount, &c.TokenCount, &c.SourcePath)
	if err != nil {
		return nil, err
	}
	c.FirstSeenAt, _ = time.Parse(time.RFC3339, firstSeen)
	c.LastUpdatedAt, _ = time.Parse(time.RFC3339, lastUpdated)
	return &c, nil
}

// ListRecentConversations returns the most recently updated
// conversations, optionally filtered to the last `timeframe` (a Go
// duration string such as "24h"; empty means unbounded).
func (s *Store) ListRecentConversations(ctx context.Context, limit int, since *time.Time) ([]Conversation, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT session_id, project_name, project_path, title, first_seen_at, last_updated_at, message_count, token_count, source_path
		FROM conversations`
	args := []any{}
	if since != nil {
		query += " WHERE last_updated_at >= ?"
		args = append(args, since.UTC().Format(time.RFC3339))
	}
	query += " ORDER BY last_updated_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recent conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var firstSeen, lastUpdated string
		if err := rows.Scan(&c.SessionID, &c.ProjectName, &c.ProjectPath, &c.Title, &firstSeen, &lastUpdated, &c.MessageCount, &c.TokenCount, &c.SourcePath); err != nil {
			return nil, err
		}
		c.FirstSeenAt, _ = time.Parse(time.RFC3339, firstSeen)
		c.LastUpdatedAt, _ = time.Parse(time.RFC3339, lastUpdated)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ConversationsForProjectPath returns conversations whose cwd equals
// projectPath, most recently updated first, for the correlator (C7:
// "the most recently modified session file whose cwd equals the
// repository root").
func (s *Store) ConversationsForProjectPath(ctx context.Context, projectPath string, limit int) ([]Conversation, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.readDB.QueryContext(ctx, `
		SELECT session_id, project_name, project_path, title, first_seen_at, last_updated_at, message_count, token_count, source_path
		FROM conversations WHERE project_path = ? ORDER BY last_updated_at DESC LIMIT ?`,
		projectPath, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations for project path: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var firstSeen, lastUpdated string
		if err := rows.Scan(&c.SessionID, &c.ProjectName, &c.ProjectPath, &c.Title, &firstSeen, &lastUpdated, &c.MessageCount, &c.TokenCount, &c.SourcePath); err != nil {
			return nil, err
		}
		c.FirstSeenAt, _ = time.Parse(time.RFC3339, firstSeen)
		c.LastUpdatedAt, _ = time.Parse(time.RFC3339, lastUpdated)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Stats reports counts used by health_check and performance_metrics.
type Stats struct {
	Conversations int
	Messages      int
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var st Stats
	if err := s.readDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations").Scan(&st.Conversations); err != nil {
		return st, err
	}
	if err := s.readDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&st.Messages); err != nil {
		return st, err
	}
	return st, nil
}
