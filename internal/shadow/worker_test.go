package shadow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"github.com/aimemory/engine/internal/config"
	"github.com/aimemory/engine/internal/gitexec"
	"github.com/aimemory/engine/internal/store"
)

func initRepoWithBranch(t *testing.T, branch string) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0o644))
	_, err = wt.Add("a.go")
	require.NoError(t, err)
	sig := &object.Signature{Name: "Test", Email: "test@example.com"}
	_, err = wt.Commit("initial", &git.CommitOptions{Author: sig})
	require.NoError(t, err)

	head, err := repo.Head()
	require.NoError(t, err)
	if branch != "" && head.Name().Short() != branch {
		require.NoError(t, wt.Checkout(&git.CheckoutOptions{
			Branch: plumbing.ReferenceName("refs/heads/" + plumbing.ReferenceName(branch).String()),
			Create: true,
		}))
	}
	return dir
}

func openShadowTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(context.Background(), filepath.Join(dir, "conversations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWorkerCommitsToShadowBranchAndRestoresOriginal(t *testing.T) {
	root := initRepoWithBranch(t, "")
	s := openShadowTestStore(t)
	exec := gitexec.NewExecutor()

	settings := store.RepositorySettings{
		RepositoryRoot:  root,
		Enabled:         true,
		ThrottleSeconds: 0,
		MaxFileSizeMB:   10,
		ShadowPrefix:    "shadow/",
	}

	w, err := newRepoWorker(root, settings, config.DefaultExcludeGlobs, exec, s, nil)
	require.NoError(t, err)

	originalBefore, err := exec.Run(context.Background(), root, gitexec.BranchShowCurrent)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\n\nfunc F() {}\n"), 0o644))

	err = w.commitOne(context.Background(), fileEvent{
		relativePath: "a.go",
		absolutePath: filepath.Join(root, "a.go"),
	})
	require.NoError(t, err)

	originalAfter, err := exec.Run(context.Background(), root, gitexec.BranchShowCurrent)
	require.NoError(t, err)
	require.Equal(t, originalBefore, originalAfter, "worker must restore the original branch after committing")

	commits, err := s.ShadowCommitsForRepository(context.Background(), root, 10)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	require.Equal(t, "shadow/"+originalBefore, commits[0].ShadowBranch)
}

func TestWorkerThrottlesRepeatedEvents(t *testing.T) {
	root := initRepoWithBranch(t, "")
	s := openShadowTestStore(t)
	exec := gitexec.NewExecutor()

	settings := store.RepositorySettings{
		RepositoryRoot:  root,
		Enabled:         true,
		ThrottleSeconds: 60,
		MaxFileSizeMB:   10,
		ShadowPrefix:    "shadow/",
	}
	w, err := newRepoWorker(root, settings, config.DefaultExcludeGlobs, exec, s, nil)
	require.NoError(t, err)
	w.setLastCommit("a.go", time.Now())

	reason, ok := w.gate.Check(Event{RelativePath: "a.go", AbsolutePath: filepath.Join(root, "a.go")}, w.lastCommit("a.go"))
	require.False(t, ok)
	require.Equal(t, RejectThrottled, reason)
}

func TestIsTransientClassifiesTimeoutAndLockContention(t *testing.T) {
	require.True(t, isTransient(&gitexec.Error{Kind: gitexec.FailureTimeout}))
	require.True(t, isTransient(&gitexec.Error{
		Kind:   gitexec.FailureNonzeroExit,
		Stderr: "fatal: Unable to create '/repo/.git/index.lock': File exists.",
	}))
	require.False(t, isTransient(&gitexec.Error{
		Kind:   gitexec.FailureNonzeroExit,
		Stderr: "fatal: pathspec 'missing.go' did not match any files",
	}))
	require.False(t, isTransient(fmt.Errorf("some other error")))
}

func TestDisabledWorkerDropsQueuedAndIncomingEvents(t *testing.T) {
	root := initRepoWithBranch(t, "")
	s := openShadowTestStore(t)
	exec := gitexec.NewExecutor()

	settings := store.RepositorySettings{
		RepositoryRoot:  root,
		Enabled:         true,
		ThrottleSeconds: 0,
		MaxFileSizeMB:   10,
		ShadowPrefix:    "shadow/",
	}
	w, err := newRepoWorker(root, settings, config.DefaultExcludeGlobs, exec, s, nil)
	require.NoError(t, err)

	w.submit(fileEvent{relativePath: "a.go", absolutePath: filepath.Join(root, "a.go")})
	require.Error(t, w.disableFatal(context.Background(), fmt.Errorf("working tree stuck on shadow branch")))
	require.True(t, w.Disabled())
	require.Len(t, w.events, 0)

	w.handle(context.Background(), fileEvent{relativePath: "a.go", absolutePath: filepath.Join(root, "a.go")})

	commits, err := s.ShadowCommitsForRepository(context.Background(), root, 10)
	require.NoError(t, err)
	require.Empty(t, commits, "a disabled worker must not produce new shadow commits")
}
