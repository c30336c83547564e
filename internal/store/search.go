package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// SearchHit is one full-text search result (spec §6.3 search_conversations).
type SearchHit struct {
	SessionID    string
	ProjectName  string
	MessageCount int
	Preview      string
	Rank         float64
}

const snippetMaxChars = 200

var quotedPhraseRegex = regexp.MustCompile(`"[^"]*"`)

// buildMatchExpression tokenizes a user search query into an FTS5 MATCH
// expression: quoted substrings become literal phrase matches, bare
// words become literal term matches, and the whole thing is OR'd
// together (spec §4.1 "default logic is OR"). Every token is quoted so
// the query can never smuggle FTS5 query-syntax operators (column
// filters, NOT, NEAR) through to the engine.
func buildMatchExpression(query string) string {
	var clauses []string

	remaining := query
	for _, phrase := range quotedPhraseRegex.FindAllString(query, -1) {
		inner := strings.Trim(phrase, `"`)
		if strings.TrimSpace(inner) == "" {
			continue
		}
		clauses = append(clauses, quoteFTSTerm(inner))
		remaining = strings.Replace(remaining, phrase, " ", 1)
	}

	for _, word := range strings.Fields(remaining) {
		clauses = append(clauses, quoteFTSTerm(word))
	}

	if len(clauses) == 0 {
		return `""`
	}
	return strings.Join(clauses, " OR ")
}

func quoteFTSTerm(s string) string {
	escaped := strings.ReplaceAll(s, `"`, `""`)
	return `"` + escaped + `"`
}

// Search performs full-text search over message content and returns one
// hit per matching conversation, ranked with ties broken by recency
// (spec §4.1).
func (s *Store) Search(ctx context.Context, query string, limit int) ([]SearchHit, int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}
	matchExpr := buildMatchExpression(query)

	rows, err := s.readDB.QueryContext(ctx, `
		SELECT c.session_id, c.project_name, c.message_count,
		       snippet(messages_fts, 0, '>>>', '<<<', '...', 10) AS snippet,
		       MIN(bm25(messages_fts)) AS rank
		FROM messages_fts
		JOIN messages ON messages.rowid = messages_fts.rowid
		JOIN conversations c ON c.session_id = messages.conversation_id
		WHERE messages_fts MATCH ?
		GROUP BY c.session_id
		ORDER BY rank ASC, c.last_updated_at DESC
		LIMIT ?`, matchExpr, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		var rawSnippet string
		if err := rows.Scan(&h.SessionID, &h.ProjectName, &h.MessageCount, &rawSnippet, &h.Rank); err != nil {
			return nil, 0, err
		}
		h.Preview = truncateSnippet(strings.ReplaceAll(strings.ReplaceAll(rawSnippet, ">>>", ""), "<<<", ""))
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	total, err := s.searchTotal(ctx, matchExpr)
	if err != nil {
		return nil, 0, fmt.Errorf("count search matches: %w", err)
	}
	return hits, total, nil
}

// searchTotal counts the distinct conversations matching matchExpr,
// independent of limit, so search_conversations' total_found reflects
// the unbounded match count rather than the page size (spec §6.3).
func (s *Store) searchTotal(ctx context.Context, matchExpr string) (int, error) {
	var total int
	err := s.readDB.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT messages.conversation_id)
		FROM messages_fts
		JOIN messages ON messages.rowid = messages_fts.rowid
		WHERE messages_fts MATCH ?`, matchExpr).Scan(&total)
	return total, err
}

func truncateSnippet(s string) string {
	if len(s) <= snippetMaxChars {
		return s
	}
	return s[:snippetMaxChars-3] + "..."
}
