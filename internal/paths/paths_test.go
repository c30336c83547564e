package paths

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		require.NoError(t, cmd.Run())
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi"), 0o600))
	run("add", "a.txt")
	run("commit", "-q", "-m", "init")
	return dir
}

func TestRepoRootFindsTopLevel(t *testing.T) {
	dir := initRepo(t)
	ClearRepoRootCache()

	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(sub, 0o750))

	root, err := RepoRoot(context.Background(), sub)
	require.NoError(t, err)

	resolvedDir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	resolvedRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	require.Equal(t, resolvedDir, resolvedRoot)
}

func TestParseSessionTrailer(t *testing.T) {
	msg := "Auto-save: a.txt - shadow/main\n\nFile modified during an AI-assisted session\n\nSession: abc-123\nConfidence: 0.90\n"
	session, ok := ParseSessionTrailer(msg)
	require.True(t, ok)
	require.Equal(t, "abc-123", session)

	confidence, ok := ParseConfidenceTrailer(msg)
	require.True(t, ok)
	require.Equal(t, "0.90", confidence)
}

func TestSubdirectoryOf(t *testing.T) {
	rel, err := SubdirectoryOf("/R", "/R/ketchup/sub")
	require.NoError(t, err)
	require.Equal(t, "ketchup/sub", rel)

	rel, err = SubdirectoryOf("/R", "/R")
	require.NoError(t, err)
	require.Equal(t, ".", rel)
}
