package shadow

import (
	"context"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/require"

	"github.com/aimemory/engine/internal/config"
	"github.com/aimemory/engine/internal/gitexec"
	"github.com/aimemory/engine/internal/store"
)

func TestSweepOrphansDeletesBranchWithoutOriginal(t *testing.T) {
	root := initRepoWithBranch(t, "")
	s := openShadowTestStore(t)
	exec := gitexec.NewExecutor()
	ctx := context.Background()

	repo, err := git.PlainOpen(root)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)

	_, err = exec.Run(ctx, root, gitexec.BranchCreate, "shadow/gone-branch", head.Hash().String())
	require.NoError(t, err)

	settings := store.RepositorySettings{
		RepositoryRoot:  root,
		Enabled:         true,
		ThrottleSeconds: 0,
		MaxFileSizeMB:   10,
		ShadowPrefix:    "shadow/",
		ExcludedGlobs:   config.DefaultExcludeGlobs,
	}

	engine := NewEngine(s, exec, nil)
	require.NoError(t, engine.Watch(ctx, root, settings))
	defer engine.Unwatch(root)

	results, err := engine.SweepOrphans(ctx, root)
	require.NoError(t, err)

	var found bool
	for _, r := range results {
		if r.ShadowBranch == "shadow/gone-branch" {
			found = true
			require.True(t, r.Deleted)
		}
	}
	require.True(t, found, "expected shadow/gone-branch to be swept as orphaned")
}
