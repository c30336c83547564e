package autodetect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiscoverFindsGitRepositoriesWithinDepth(t *testing.T) {
	root := t.TempDir()

	shallow := filepath.Join(root, "proj-a")
	require.NoError(t, os.MkdirAll(filepath.Join(shallow, ".git"), 0o755))

	nested := filepath.Join(root, "group", "proj-b")
	require.NoError(t, os.MkdirAll(filepath.Join(nested, ".git"), 0o755))

	tooDeep := filepath.Join(root, "a", "b", "c", "d", "proj-c")
	require.NoError(t, os.MkdirAll(filepath.Join(tooDeep, ".git"), 0o755))

	found := Discover([]string{root})

	require.Contains(t, found, shallow)
	require.Contains(t, found, nested)
	require.NotContains(t, found, tooDeep)
}

func TestDiscoverSkipsMissingRoots(t *testing.T) {
	found := Discover([]string{filepath.Join(t.TempDir(), "does-not-exist")})
	require.Empty(t, found)
}

func TestProjectPathsListsSubdirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "ketchup"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "not-a-dir.txt"), []byte("x"), 0o644))

	paths := ProjectPaths(dir)
	require.Equal(t, []string{filepath.Join(dir, "ketchup")}, paths)
}
