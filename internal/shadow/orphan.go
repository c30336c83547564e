package shadow

import (
	"context"
	"strings"
	"time"

	"github.com/aimemory/engine/internal/gitexec"
	"github.com/aimemory/engine/internal/logging"
)

// orphanSweepInterval is how often Engine.SweepOrphans should be invoked
// by the daemon's periodic job (spec §4.6 "orphan shadow branches").
const orphanSweepInterval = 1 * time.Hour

// OrphanSweepInterval exposes orphanSweepInterval to callers that
// schedule the periodic sweep (cmd/aimemoryd).
func OrphanSweepInterval() time.Duration { return orphanSweepInterval }

// OrphanResult records one shadow branch the sweep found and what it did
// with it, for the notification log and CLI status output.
type OrphanResult struct {
	ShadowBranch string
	Deleted      bool
	Err          error
}

// SweepOrphans finds shadow branches whose original branch no longer
// exists and deletes them, grounded on doctor.go's
// canDeleteShadowBranch/discardSession idiom: a shadow branch is orphaned
// once nothing references the branch it shadows, and removing it is safe
// because the shadow-commit history it held is no longer reachable from
// any live branch a user could return to.
func (e *Engine) SweepOrphans(ctx context.Context, root string) ([]OrphanResult, error) {
	e.mu.Lock()
	worker, ok := e.workers[root]
	e.mu.Unlock()
	if !ok {
		return nil, nil
	}
	prefix := worker.settings.ShadowPrefix

	out, err := e.exec.Run(ctx, root, gitexec.BranchList)
	if err != nil {
		return nil, err
	}

	existing := make(map[string]bool)
	var shadows []string
	for _, line := range strings.Split(out, "\n") {
		name := strings.TrimPrefix(strings.TrimSpace(line), "* ")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		existing[name] = true
		if strings.HasPrefix(name, prefix) {
			shadows = append(shadows, name)
		}
	}

	var results []OrphanResult
	for _, shadowBranch := range shadows {
		original := strings.TrimPrefix(shadowBranch, prefix)
		if existing[original] {
			continue
		}

		vcsOpsSemaphore <- struct{}{}
		_, delErr := e.exec.Run(ctx, root, gitexec.BranchDelete, shadowBranch)
		<-vcsOpsSemaphore

		result := OrphanResult{ShadowBranch: shadowBranch, Deleted: delErr == nil, Err: delErr}
		results = append(results, result)
		if delErr != nil {
			logging.Warn(ctx, "failed to delete orphaned shadow branch",
				"repository", root, "branch", shadowBranch, "error", delErr.Error())
		} else {
			logging.Info(ctx, "deleted orphaned shadow branch", "repository", root, "branch", shadowBranch)
		}
	}

	return results, nil
}
