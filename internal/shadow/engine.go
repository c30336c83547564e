package shadow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-git/v5"

	"github.com/aimemory/engine/internal/config"
	"github.com/aimemory/engine/internal/correlate"
	"github.com/aimemory/engine/internal/gitexec"
	"github.com/aimemory/engine/internal/logging"
	"github.com/aimemory/engine/internal/notify"
	"github.com/aimemory/engine/internal/store"
)

// Engine owns one repoWorker and one recursive fsnotify watch per
// monitored repository (spec §4.6, §9 "is monitoring" contract: the flag
// for a repository is true iff its OS filesystem subscription is
// active). Grounded on hazyhaar-GoClode's Engine.WatchFile for the
// fsnotify wiring idiom, generalized from a single file to a recursive
// repository tree walk.
type Engine struct {
	store      *store.Store
	exec       *gitexec.Executor
	correlator *correlate.Correlator
	scheduler  *notify.Scheduler

	mu       sync.Mutex
	workers  map[string]*repoWorker
	watchers map[string]*fsnotify.Watcher
	cancels  map[string]context.CancelFunc
}

// NewEngine wires the shadow-commit engine against its dependencies. exec
// is the sole component permitted to spawn the git binary (C4); all
// mutation in this package goes through it.
func NewEngine(st *store.Store, exec *gitexec.Executor, corr *correlate.Correlator) *Engine {
	return &Engine{
		store:      st,
		exec:       exec,
		correlator: corr,
		workers:    make(map[string]*repoWorker),
		watchers:   make(map[string]*fsnotify.Watcher),
		cancels:    make(map[string]context.CancelFunc),
	}
}

// SetNotifier wires the sidecar notification scheduler (spec §6.2): every
// successful shadow commit on every currently-watched, and subsequently
// watched, repository routes through it according to that repository's
// notification preference (spec §3 Repository Settings). Optional — a nil
// scheduler (the zero value of Engine) means commits are recorded to the
// store but never surfaced to the notifications sidecar.
func (e *Engine) SetNotifier(s *notify.Scheduler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scheduler = s
}

// Watch begins monitoring root: the OS subscription is established
// synchronously, before this call returns, so a caller's "is monitoring"
// check immediately after Watch reflects reality (spec §9).
func (e *Engine) Watch(ctx context.Context, root string, settings store.RepositorySettings) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.workers[root]; exists {
		return nil
	}

	worker, err := newRepoWorker(root, settings, config.DefaultExcludeGlobs, e.exec, e.store, e.correlator)
	if err != nil {
		return fmt.Errorf("create shadow worker for %s: %w", root, err)
	}
	worker.isTracked = trackedFileChecker(root)
	worker.notifier = e.scheduler

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher for %s: %w", root, err)
	}
	if err := addTreeRecursive(watcher, root); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch tree %s: %w", root, err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	e.workers[root] = worker
	e.watchers[root] = watcher
	e.cancels[root] = cancel

	go worker.run(workerCtx)
	go e.pump(workerCtx, root, worker, watcher)

	logging.Info(ctx, "shadow engine watching repository", "repository", root)
	return nil
}

// Unwatch stops monitoring root. The flag flips to "not monitoring"
// before this call returns (spec §9).
func (e *Engine) Unwatch(root string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cancel, ok := e.cancels[root]; ok {
		cancel()
		delete(e.cancels, root)
	}
	if watcher, ok := e.watchers[root]; ok {
		_ = watcher.Close()
		delete(e.watchers, root)
	}
	delete(e.workers, root)
}

// IsWatching reports whether root currently has an active OS filesystem
// subscription. This is read directly from the watcher map under the
// same lock Watch/Unwatch use, never inferred from the event-pump
// goroutine's state, per spec §9.
func (e *Engine) IsWatching(root string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.watchers[root]
	return ok
}

// WatchedRepositories lists every repository currently monitored.
func (e *Engine) WatchedRepositories() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.watchers))
	for root := range e.watchers {
		out = append(out, root)
	}
	return out
}

// DisabledRepositories lists repositories whose worker entered the
// fatal-repository state (spec §7) and stopped accepting commits.
func (e *Engine) DisabledRepositories() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for root, w := range e.workers {
		if w.Disabled() {
			out = append(out, root)
		}
	}
	return out
}

// Shutdown stops every watcher and worker, waiting up to the caller's
// context deadline for in-flight commits to finish their restore-branch
// step (spec §5: "an in-progress shadow commit must complete its restore
// original branch step before shutdown").
func (e *Engine) Shutdown(ctx context.Context) {
	e.mu.Lock()
	roots := make([]string, 0, len(e.workers))
	for root := range e.workers {
		roots = append(roots, root)
	}
	workers := make([]*repoWorker, 0, len(e.workers))
	for _, w := range e.workers {
		workers = append(workers, w)
	}
	e.mu.Unlock()

	for _, root := range roots {
		e.Unwatch(root)
	}
	for _, w := range workers {
		select {
		case <-w.done:
		case <-ctx.Done():
		}
	}
}

func (e *Engine) pump(ctx context.Context, root string, worker *repoWorker, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			e.handleFSEvent(ctx, root, worker, watcher, ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Warn(ctx, "shadow watcher error", "repository", root, "error", err.Error())
		}
	}
}

func (e *Engine) handleFSEvent(ctx context.Context, root string, worker *repoWorker, watcher *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := addTreeRecursive(watcher, ev.Name); err != nil {
				logging.Debug(ctx, "failed to watch new directory", "path", ev.Name, "error", err.Error())
			}
			return
		}
	}

	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	rel, err := filepath.Rel(root, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	if strings.HasPrefix(filepath.ToSlash(rel), ".git/") {
		return
	}

	worker.submit(fileEvent{
		relativePath: filepath.ToSlash(rel),
		absolutePath: ev.Name,
		isCreate:     ev.Op&fsnotify.Create == fsnotify.Create,
	})
}

// addTreeRecursive registers root and every subdirectory with watcher,
// skipping .git. fsnotify has no native recursive mode; this walk is the
// idiomatic Go workaround the ecosystem uses.
func addTreeRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort: a single unreadable subdirectory shouldn't abort the whole tree
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// trackedFileChecker returns a predicate for Event.IsTracked backed by a
// best-effort go-git worktree status read for root. A nil return means
// tracked-status can't be determined (e.g. bare repository); the gate
// then treats every non-create event as eligible.
func trackedFileChecker(root string) func(relativePath string) bool {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil
	}
	return func(relativePath string) bool {
		status, err := wt.Status()
		if err != nil {
			return true
		}
		st, ok := status[relativePath]
		return ok && st.Worktree != git.Untracked
	}
}
