package restore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"github.com/aimemory/engine/internal/gitexec"
	"github.com/aimemory/engine/internal/store"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\n"), 0o644))
	_, err = wt.Add("a.txt")
	require.NoError(t, err)
	sig := &object.Signature{Name: "Test", Email: "test@example.com"}
	_, err = wt.Commit("initial", &git.CommitOptions{Author: sig})
	require.NoError(t, err)

	return dir
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(context.Background(), filepath.Join(dir, "conversations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndListRestorePoints(t *testing.T) {
	root := initRepo(t)
	s := openTestStore(t)
	m := New(s, gitexec.NewExecutor())
	ctx := context.Background()

	rp, err := m.Create(ctx, root, "before-refactor", "checkpoint")
	require.NoError(t, err)
	require.NotEmpty(t, rp.CommitHash)

	list, err := m.List(ctx, root, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "before-refactor", list[0].Label)
}

func TestCreateDuplicateLabelFails(t *testing.T) {
	root := initRepo(t)
	s := openTestStore(t)
	m := New(s, gitexec.NewExecutor())
	ctx := context.Background()

	_, err := m.Create(ctx, root, "dup", "")
	require.NoError(t, err)
	_, err = m.Create(ctx, root, "dup", "")
	require.ErrorIs(t, err, store.ErrRestorePointExists)
}

func TestPreviewUnknownLabelErrors(t *testing.T) {
	root := initRepo(t)
	s := openTestStore(t)
	m := New(s, gitexec.NewExecutor())

	_, err := m.Preview(context.Background(), root, "missing")
	require.Error(t, err)
}

func TestRestoreCreatesSafetyPointFirst(t *testing.T) {
	root := initRepo(t)
	s := openTestStore(t)
	m := New(s, gitexec.NewExecutor())
	ctx := context.Background()

	rp, err := m.Create(ctx, root, "checkpoint-1", "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("two\n"), 0o644))
	repo, err := git.PlainOpen(root)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("a.txt")
	require.NoError(t, err)
	sig := &object.Signature{Name: "Test", Email: "test@example.com"}
	_, err = wt.Commit("second", &git.CommitOptions{Author: sig})
	require.NoError(t, err)

	restored, err := m.Restore(ctx, root, "checkpoint-1")
	require.NoError(t, err)
	require.Equal(t, rp.CommitHash, restored.CommitHash)

	list, err := m.List(ctx, root, 10)
	require.NoError(t, err)

	var sawSafety bool
	for _, l := range list {
		if strings.HasPrefix(l.Label, "safety-") {
			sawSafety = true
		}
	}
	require.True(t, sawSafety, "expected an automatic safety restore point labeled safety-<ts>")
}
