package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aimemory/engine/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(context.Background(), filepath.Join(dir, "conversations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeSession(t *testing.T, root, project, name string, lines []string) {
	t.Helper()
	dir := filepath.Join(root, project)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestInitialScanIndexesExistingSessions(t *testing.T) {
	root := t.TempDir()
	writeSession(t, root, "proj-a", "sess1.jsonl", []string{
		`{"sessionId":"sess-1","cwd":"/repo/a","type":"user","message":{"role":"user","content":"hello"}}`,
	})

	s := openTestStore(t)
	ix := New(s, root)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, ix.Start(ctx))
	defer ix.Stop()

	require.Eventually(t, func() bool {
		return ix.Progress().ConversationsIndexed >= 1
	}, 2*time.Second, 10*time.Millisecond)

	conv, err := s.GetConversation(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, conv)
	require.Equal(t, "/repo/a", conv.ProjectPath)
}

func TestIsWatchingTrueImmediatelyAfterStart(t *testing.T) {
	root := t.TempDir()
	s := openTestStore(t)
	ix := New(s, root)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, ix.Start(ctx))
	require.True(t, ix.IsWatching())
	ix.Stop()
	require.False(t, ix.IsWatching())
}

func TestLiveWatchIndexesNewSessionFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "proj-b"), 0o755))

	s := openTestStore(t)
	ix := New(s, root)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, ix.Start(ctx))
	defer ix.Stop()

	writeSession(t, root, "proj-b", "sess2.jsonl", []string{
		`{"sessionId":"sess-2","cwd":"/repo/b","type":"user","message":{"role":"user","content":"hi"}}`,
	})

	require.Eventually(t, func() bool {
		conv, err := s.GetConversation(ctx, "sess-2")
		return err == nil && conv != nil
	}, 3*time.Second, 20*time.Millisecond)
}
