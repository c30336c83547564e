package correlate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aimemory/engine/internal/store"
)

func writeTranscript(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(context.Background(), filepath.Join(dir, "conversations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCorrelateExactPathMatchScoresHigh(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	tsLine := `{"type":"assistant","timestamp":"` + now.Format(time.RFC3339) + `","message":{"role":"assistant","content":[{"type":"tool_use","name":"Edit","input":{"file_path":"src/a.go"}}]}}`
	source := writeTranscript(t, dir, "sess1.jsonl", []string{tsLine})

	s := openTestStore(t)
	require.NoError(t, s.ReplaceMessages(context.Background(), store.Conversation{
		SessionID:     "sess-1",
		ProjectPath:   "/repo",
		FirstSeenAt:   now,
		LastUpdatedAt: now,
		SourcePath:    source,
	}, nil))

	c := New(s)
	result, ok, err := c.Correlate(context.Background(), "/repo", "src/a.go", now)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "sess-1", result.SessionID)
	require.InDelta(t, 1.0, result.Confidence, 0.001)
}

func TestCorrelateNoEvidenceReturnsNoMatch(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	source := writeTranscript(t, dir, "sess1.jsonl", []string{
		`{"type":"user","timestamp":"` + now.Format(time.RFC3339) + `","message":{"role":"user","content":"hello"}}`,
	})

	s := openTestStore(t)
	require.NoError(t, s.ReplaceMessages(context.Background(), store.Conversation{
		SessionID:     "sess-1",
		ProjectPath:   "/repo",
		FirstSeenAt:   now,
		LastUpdatedAt: now,
		SourcePath:    source,
	}, nil))

	c := New(s)
	_, ok, err := c.Correlate(context.Background(), "/repo", "src/unrelated.go", now)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCorrelateNoConversationsForPath(t *testing.T) {
	s := openTestStore(t)
	c := New(s)
	_, ok, err := c.Correlate(context.Background(), "/nowhere", "x.go", time.Now())
	require.NoError(t, err)
	require.False(t, ok)
}
