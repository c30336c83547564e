package repo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	gr, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := gr.Worktree()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi"), 0o644))
	_, err = wt.Add("README.md")
	require.NoError(t, err)

	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "t", Email: "t@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	return dir
}

func TestResolveAtRepositoryRoot(t *testing.T) {
	dir := initTestRepo(t)
	r := NewResolver()

	info, err := r.Resolve(context.Background(), dir)
	require.NoError(t, err)
	require.False(t, info.IsMonorepoSubdirectory)
	require.Equal(t, ".", info.SubdirectoryPath)
}

func TestResolveAtMonorepoSubdirectory(t *testing.T) {
	dir := initTestRepo(t)
	sub := filepath.Join(dir, "packages", "app")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	r := NewResolver()
	info, err := r.Resolve(context.Background(), sub)
	require.NoError(t, err)
	require.True(t, info.IsMonorepoSubdirectory)
	require.Equal(t, "packages/app", info.SubdirectoryPath)
}

func TestResolveCachesWithinTTL(t *testing.T) {
	dir := initTestRepo(t)
	r := NewResolver()

	info1, err := r.Resolve(context.Background(), dir)
	require.NoError(t, err)

	abs, err := filepath.Abs(dir)
	require.NoError(t, err)
	r.cache[abs] = cacheEntry{info: Info{Root: "stale"}, cachedAt: time.Now()}

	info2, err := r.Resolve(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, "stale", info2.Root)
	require.NotEqual(t, info1.Root, info2.Root)
}

func TestInvalidateDropsCacheEntry(t *testing.T) {
	dir := initTestRepo(t)
	r := NewResolver()

	_, err := r.Resolve(context.Background(), dir)
	require.NoError(t, err)

	r.Invalidate(dir)

	abs, err := filepath.Abs(dir)
	require.NoError(t, err)
	_, ok := r.lookup(abs)
	require.False(t, ok)
}
