// Package repo answers "what repository is this path in, and what part
// of it", caching the answer for 30 seconds (spec §4.5, C5). Grounded on
// git_operations.go's openRepository/IsOnDefaultBranch/getDefaultBranchFromRemote
// (go-git Reference/Head() calls) and paths.RepoRoot's upward .git walk
// with gitdir: indirection handling, which this package reuses directly.
package repo

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/aimemory/engine/internal/paths"
)

// Info is the answer to "what is the repository here and what part of
// it is this" (spec §4.5).
type Info struct {
	Root                   string
	SubdirectoryPath       string // "." when the input path is the root itself
	IsMonorepoSubdirectory bool
	RemoteURL              string // best-effort, empty if absent
	CurrentBranch          string // best-effort, empty if detached/absent
	DefaultBranch          string // best-effort
}

const cacheTTL = 30 * time.Second

type cacheEntry struct {
	info    Info
	cachedAt time.Time
}

// Resolver caches repository resolutions by input path for cacheTTL,
// read-copy-update per the spec §5 resource table entry for "Repository
// cache".
type Resolver struct {
	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewResolver returns a ready-to-use Resolver.
func NewResolver() *Resolver {
	return &Resolver{cache: make(map[string]cacheEntry)}
}

// Resolve walks upward from path to find the repository root, computes
// the relative subdirectory, and best-effort fetches remote/branch info.
// Results are cached by the literal input path for 30 seconds.
func (r *Resolver) Resolve(ctx context.Context, path string) (Info, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Info{}, err
	}

	if info, ok := r.lookup(abs); ok {
		return info, nil
	}

	root, err := paths.RepoRoot(ctx, abs)
	if err != nil {
		return Info{}, err
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil {
		rel = "."
	}
	rel = filepath.ToSlash(rel)

	info := Info{
		Root:                   root,
		SubdirectoryPath:       rel,
		IsMonorepoSubdirectory: rel != ".",
	}

	if gr, err := git.PlainOpen(root); err == nil {
		info.RemoteURL = remoteURL(gr)
		info.CurrentBranch = currentBranch(gr)
		info.DefaultBranch = defaultBranch(gr)
	}

	r.store(abs, info)
	return info, nil
}

func (r *Resolver) lookup(path string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[path]
	if !ok || time.Since(entry.cachedAt) > cacheTTL {
		return Info{}, false
	}
	return entry.info, true
}

func (r *Resolver) store(path string, info Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[path] = cacheEntry{info: info, cachedAt: time.Now()}
}

// Invalidate drops any cached entry for path, used after a shadow commit
// changes branch state out from under the cache.
func (r *Resolver) Invalidate(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	r.mu.Lock()
	delete(r.cache, abs)
	r.mu.Unlock()
}

func remoteURL(gr *git.Repository) string {
	remote, err := gr.Remote("origin")
	if err != nil {
		return ""
	}
	cfg := remote.Config()
	if len(cfg.URLs) == 0 {
		return ""
	}
	return cfg.URLs[0]
}

func currentBranch(gr *git.Repository) string {
	head, err := gr.Head()
	if err != nil || !head.Name().IsBranch() {
		return ""
	}
	return head.Name().Short()
}

// defaultBranch reports the remote HEAD's target branch, falling back to
// the common main/master names if origin has no symbolic HEAD recorded
// locally (best-effort, per spec §4.5 "absence is non-fatal").
func defaultBranch(gr *git.Repository) string {
	ref, err := gr.Reference(plumbing.NewRemoteHEADReferenceName("origin"), true)
	if err == nil && ref.Name().IsBranch() {
		return ref.Name().Short()
	}
	for _, candidate := range []string{"main", "master"} {
		if _, err := gr.Reference(plumbing.NewBranchReferenceName(candidate), false); err == nil {
			return candidate
		}
	}
	return ""
}
