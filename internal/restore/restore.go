// Package restore is the Restore Points component (spec §4.8, C8): a
// named, stored commit hash on the user's own branch that acts as a
// one-click recovery bookmark. Grounded on strategy/auto_commit.go's
// GetRewindPoints/Rewind/CanRewind/PreviewRewind and the CLI's
// rewind.go safety-checkpoint idiom ("create a safety point before a
// destructive rewind"), generalized from the teacher's
// checkpoint-rewind-point model to the plain (repo,label)->commit-hash
// bookmark this spec's data model defines.
package restore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aimemory/engine/internal/gitexec"
	"github.com/aimemory/engine/internal/store"
)

// Manager implements create/list/preview/restore against one store and
// the shared git executor (C4, the only component permitted to spawn
// the git binary).
type Manager struct {
	store *store.Store
	exec  *gitexec.Executor
}

func New(st *store.Store, exec *gitexec.Executor) *Manager {
	return &Manager{store: st, exec: exec}
}

// Create captures the current commit hash on the repository's active
// branch under label (spec §4.8 create). Labels are unique per
// repository; store.ErrRestorePointExists surfaces a duplicate.
func (m *Manager) Create(ctx context.Context, root, label, description string) (store.RestorePoint, error) {
	hash, err := m.exec.Run(ctx, root, gitexec.RevParse, "HEAD")
	if err != nil {
		return store.RestorePoint{}, fmt.Errorf("resolve HEAD: %w", err)
	}

	rp := store.RestorePoint{
		RepositoryRoot: root,
		Label:          label,
		CommitHash:     strings.TrimSpace(hash),
		Description:    description,
		CreatedAt:      time.Now(),
	}
	if err := m.store.CreateRestorePoint(ctx, rp); err != nil {
		return store.RestorePoint{}, err
	}
	return rp, nil
}

// List returns restore points for root, newest first.
func (m *Manager) List(ctx context.Context, root string, limit int) ([]store.RestorePoint, error) {
	return m.store.ListRestorePoints(ctx, root, limit)
}

// Plan is the spec §4.8 preview output: the files that would change and
// the version-control commands restore would run.
type Plan struct {
	RestorePoint store.RestorePoint
	ChangedFiles []string
	Commands     []string
}

// Preview produces the plan for restoring to label without making any
// change (spec §4.8 preview): a diff of files between the restore
// point's commit and the working tree, plus the commands restore would
// issue.
func (m *Manager) Preview(ctx context.Context, root, label string) (Plan, error) {
	rp, err := m.store.GetRestorePoint(ctx, root, label)
	if err != nil {
		return Plan{}, err
	}
	if rp == nil {
		return Plan{}, fmt.Errorf("restore point %q not found for %s", label, root)
	}

	out, err := m.exec.Run(ctx, root, gitexec.Diff, "--name-only", rp.CommitHash)
	if err != nil {
		return Plan{}, fmt.Errorf("diff against restore point: %w", err)
	}

	var files []string
	for _, line := range strings.Split(out, "\n") {
		if f := strings.TrimSpace(line); f != "" {
			files = append(files, f)
		}
	}

	return Plan{
		RestorePoint: *rp,
		ChangedFiles: files,
		Commands: []string{
			fmt.Sprintf("git checkout %s", rp.CommitHash),
		},
	}, nil
}

// Restore moves the working tree to label's commit, after first
// creating a safety restore point of the current state (spec §4.8: "on
// failure, the safety point enables manual recovery"). It never
// force-deletes untracked changes; it does not stage or commit on the
// caller's behalf.
func (m *Manager) Restore(ctx context.Context, root, label string) (store.RestorePoint, error) {
	target, err := m.store.GetRestorePoint(ctx, root, label)
	if err != nil {
		return store.RestorePoint{}, err
	}
	if target == nil {
		return store.RestorePoint{}, fmt.Errorf("restore point %q not found for %s", label, root)
	}

	safetyLabel := fmt.Sprintf("safety-%d", time.Now().Unix())
	if _, err := m.Create(ctx, root, safetyLabel, fmt.Sprintf("automatic safety point before restoring %q", label)); err != nil {
		return store.RestorePoint{}, fmt.Errorf("create safety restore point: %w", err)
	}

	if _, err := m.exec.Run(ctx, root, gitexec.Checkout, target.CommitHash); err != nil {
		return store.RestorePoint{}, fmt.Errorf("checkout restore point %q: %w", label, err)
	}

	return *target, nil
}
