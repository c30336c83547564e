package store

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// ClampPageSize applies the spec §4.1 pagination bounds: [1, 500],
// default 50.
func ClampPageSize(pageSize int) int {
	if pageSize <= 0 {
		return DefaultPageSize
	}
	if pageSize > MaxPageSize {
		return MaxPageSize
	}
	return pageSize
}

// MessagePage is one page of a conversation's messages, with totals for
// the caller to compute navigation (spec §6.3 get_conversation_context).
type MessagePage struct {
	Page          int
	PageSize      int
	TotalPages    int
	TotalMessages int
	Messages      []Message
}

// ConversationMessages returns a page of messages ordered by ordinal
// index (spec §4.1 "conversation_messages returns a page by
// ordinal-index range, plus total count and total pages").
func (s *Store) ConversationMessages(ctx context.Context, sessionID string, page, pageSize int) (MessagePage, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	pageSize = ClampPageSize(pageSize)
	if page < 1 {
		page = 1
	}

	var total int
	if err := s.readDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages WHERE conversation_id = ?", sessionID).Scan(&total); err != nil {
		return MessagePage{}, fmt.Errorf("count messages: %w", err)
	}

	totalPages := (total + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}

	offset := (page - 1) * pageSize
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT ordinal, message_id, role, content, content_kind, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY ordinal ASC LIMIT ? OFFSET ?`, sessionID, pageSize, offset)
	if err != nil {
		return MessagePage{}, fmt.Errorf("query messages page: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []Message
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.Ordinal, &m.MessageID, &m.Role, &m.Content, &m.ContentKind, &createdAt); err != nil {
			return MessagePage{}, err
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return MessagePage{}, err
	}

	return MessagePage{
		Page:          page,
		PageSize:      pageSize,
		TotalPages:    totalPages,
		TotalMessages: total,
		Messages:      messages,
	}, nil
}
