package shadow

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/aimemory/engine/internal/correlate"
	"github.com/aimemory/engine/internal/gitexec"
	"github.com/aimemory/engine/internal/logging"
	"github.com/aimemory/engine/internal/notify"
	"github.com/aimemory/engine/internal/store"
)

// Global concurrency ceilings shared across every repoWorker (spec §4.6
// "Throughput and concurrency contract"): at most 2 VCS operations and 5
// parse-gate (secret-scan/stat) operations in flight at any time.
var (
	vcsOpsSemaphore   = make(chan struct{}, 2)
	parseGateSemaphore = make(chan struct{}, 5)
)

// eventQueueSize is the spec §5 "1,024 entries, drop-oldest on overflow"
// ceiling for file events.
const eventQueueSize = 1024

const (
	retryBase = 1 * time.Second
	retryCap  = 30 * time.Second
	maxRetries = 3
)

// fileEvent is one candidate change queued from the filesystem watcher.
type fileEvent struct {
	relativePath string
	absolutePath string
	isCreate     bool
}

// repoWorker is the single actor that serializes all shadow-commit
// activity for one repository (spec §5 "Per-repository shadow worker":
// exactly one worker; concurrent commits against the same working tree
// are forbidden).
type repoWorker struct {
	root     string
	settings store.RepositorySettings
	gate     *Gate

	exec        *gitexec.Executor
	store       *store.Store
	correlator  *correlate.Correlator
	isTracked   func(relativePath string) bool
	notifier    *notify.Scheduler

	events chan fileEvent
	stop   chan struct{}
	done   chan struct{}

	mu             sync.Mutex
	lastCommitTime map[string]time.Time
	disabled       bool
}

func newRepoWorker(root string, settings store.RepositorySettings, defaultExcludes []string, exec *gitexec.Executor, st *store.Store, corr *correlate.Correlator) (*repoWorker, error) {
	gate, err := NewGate(settings, defaultExcludes)
	if err != nil {
		return nil, err
	}
	return &repoWorker{
		root:           root,
		settings:       settings,
		gate:           gate,
		exec:           exec,
		store:          st,
		correlator:     corr,
		events:         make(chan fileEvent, eventQueueSize),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
		lastCommitTime: make(map[string]time.Time),
	}, nil
}

// submit enqueues a file event, dropping the oldest queued event on
// overflow rather than blocking the OS notify thread (spec §5 "File-event
// handlers ... never block the OS notify thread").
func (w *repoWorker) submit(ev fileEvent) {
	select {
	case w.events <- ev:
	default:
		select {
		case <-w.events:
		default:
		}
		select {
		case w.events <- ev:
		default:
		}
	}
}

// run is the worker's single consumer loop.
func (w *repoWorker) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case ev := <-w.events:
			w.handle(ctx, ev)
		}
	}
}

func (w *repoWorker) handle(ctx context.Context, ev fileEvent) {
	if w.Disabled() {
		logging.Debug(ctx, "dropping file event for fatally-disabled repository",
			"repository", w.root)
		return
	}

	parseGateSemaphore <- struct{}{}
	reason, ok := w.gate.Check(Event{
		RelativePath: ev.relativePath,
		AbsolutePath: ev.absolutePath,
		IsCreate:     ev.isCreate,
		IsTracked:    w.isTracked,
	}, w.lastCommit(ev.relativePath))
	<-parseGateSemaphore

	if !ok {
		logging.Debug(ctx, "shadow commit gate rejected event",
			"repository", w.root, "reason", string(reason))
		return
	}

	if err := w.commitWithRetry(ctx, ev); err != nil {
		logging.Warn(ctx, "shadow commit failed", "repository", w.root, "error", err.Error())
	}
}

func (w *repoWorker) lastCommit(relativePath string) time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastCommitTime[relativePath]
}

func (w *repoWorker) setLastCommit(relativePath string, t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastCommitTime[relativePath] = t
}

// commitWithRetry wraps commitOne in the spec §4.6/§7 transient-failure
// retry policy: exponential backoff with jitter, base 1s, cap 30s, max 3
// retries.
func (w *repoWorker) commitWithRetry(ctx context.Context, ev fileEvent) error {
	var lastErr error
	backoff := retryBase
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := w.commitOne(ctx, ev)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTransient(err) {
			return err
		}
		if attempt == maxRetries {
			break
		}
		jitter := time.Duration(rand.Int63n(int64(backoff) / 2)) //nolint:gosec // jitter timing, not security-sensitive
		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > retryCap {
			backoff = retryCap
		}
	}
	return lastErr
}

// lockContentionPattern matches git's own error text for an index/ref
// lock held by another process, the EBADF-class contention spec §7's
// transient taxonomy groups alongside SQLITE_BUSY.
var lockContentionPattern = regexp.MustCompile(`(?i)(index\.lock|unable to create .*\.lock|another git process)`)

func isTransient(err error) bool {
	var gitErr *gitexec.Error
	if asGitExecError(err, &gitErr) {
		if gitErr.Kind == gitexec.FailureTimeout {
			return true
		}
		if gitErr.Kind == gitexec.FailureNonzeroExit && lockContentionPattern.MatchString(gitErr.Stderr) {
			return true
		}
	}
	return false
}

func asGitExecError(err error, target **gitexec.Error) bool {
	ge, ok := err.(*gitexec.Error)
	if ok {
		*target = ge
	}
	return ok
}

// shadowBranchName computes {prefix}{original-branch} (spec §3).
func (w *repoWorker) shadowBranchName(original string) string {
	return w.settings.ShadowPrefix + original
}

// commitOne runs the full spec §4.6 per-repository commit algorithm for
// one file event.
func (w *repoWorker) commitOne(ctx context.Context, ev fileEvent) error {
	vcsOpsSemaphore <- struct{}{}
	defer func() { <-vcsOpsSemaphore }()

	original, err := w.exec.Run(ctx, w.root, gitexec.BranchShowCurrent)
	if err != nil {
		return fmt.Errorf("read current branch: %w", err)
	}
	original = strings.TrimSpace(original)
	if original == "" {
		return fmt.Errorf("repository is in detached HEAD state, shadow-commit skipped")
	}

	shadowBranch := w.shadowBranchName(original)
	if err := w.ensureShadowBranch(ctx, shadowBranch); err != nil {
		return fmt.Errorf("ensure shadow branch: %w", err)
	}

	correlation, hasCorrelation := correlate.Result{}, false
	if w.correlator != nil {
		if r, ok, cErr := w.correlator.Correlate(ctx, w.root, ev.relativePath, time.Now()); cErr == nil {
			correlation, hasCorrelation = r, ok
		}
	}

	before := readFileBestEffort(ev.absolutePath)

	var stashed bool
	if original != shadowBranch {
		dirty, statusErr := w.isDirty(ctx)
		if statusErr != nil {
			return fmt.Errorf("check working tree status: %w", statusErr)
		}
		if dirty {
			if _, err := w.exec.Run(ctx, w.root, gitexec.StashPush, "--include-untracked"); err != nil {
				return fmt.Errorf("stash working tree: %w", err)
			}
			stashed = true
		}
		if _, err := w.exec.Run(ctx, w.root, gitexec.Checkout, shadowBranch); err != nil {
			restoreErr := w.restoreOriginal(ctx, original, stashed)
			if restoreErr != nil {
				return w.disableFatal(ctx, fmt.Errorf("checkout shadow branch: %w (restore also failed: %v)", err, restoreErr))
			}
			return fmt.Errorf("checkout shadow branch: %w", err)
		}
	}

	msg := commitMessage(CommitMessageInput{
		RelativePath:  ev.relativePath,
		ShadowBranch:  shadowBranch,
		SessionID:     correlation.SessionID,
		Confidence:    correlation.Confidence,
		BeforeContent: before,
		AfterContent:  readFileBestEffort(ev.absolutePath),
		Timestamp:     time.Now(),
	})
	if !hasCorrelation {
		msg = commitMessage(CommitMessageInput{
			RelativePath:  ev.relativePath,
			ShadowBranch:  shadowBranch,
			BeforeContent: before,
			AfterContent:  readFileBestEffort(ev.absolutePath),
			Timestamp:     time.Now(),
		})
	}

	commitHash, commitErr := w.addAndCommit(ctx, ev.relativePath, msg)

	if original != shadowBranch {
		if err := w.restoreOriginal(ctx, original, stashed); err != nil {
			return w.disableFatal(ctx, fmt.Errorf("restore original branch after commit: %w", err))
		}
	}

	if commitErr != nil {
		return fmt.Errorf("commit shadow change: %w", commitErr)
	}

	if err := w.store.RecordShadowCommit(ctx, store.ShadowCommit{
		CommitHash:     commitHash,
		ShadowBranch:   shadowBranch,
		OriginalBranch: original,
		RepositoryRoot: w.root,
		ChangedFiles:   []string{ev.relativePath},
		Message:        msg,
		SessionID:      correlation.SessionID,
		Confidence:     correlation.Confidence,
		CreatedAt:      time.Now(),
	}); err != nil {
		return fmt.Errorf("persist shadow commit: %w", err)
	}

	if w.notifier != nil {
		w.notifier.Submit(w.settings.NotificationPref, notify.Record{
			Timestamp:  time.Now(),
			Type:       "shadow-commit",
			Repository: w.root,
			File:       ev.relativePath,
			Branch:     shadowBranch,
			CommitHash: commitHash,
			SessionID:  correlation.SessionID,
		})
	}

	w.setLastCommit(ev.relativePath, time.Now())
	return nil
}

func (w *repoWorker) ensureShadowBranch(ctx context.Context, shadowBranch string) error {
	out, err := w.exec.Run(ctx, w.root, gitexec.BranchList, shadowBranch)
	if err != nil {
		return err
	}
	if strings.TrimSpace(out) != "" {
		return nil
	}
	_, err = w.exec.Run(ctx, w.root, gitexec.BranchCreate, shadowBranch)
	return err
}

func (w *repoWorker) isDirty(ctx context.Context) (bool, error) {
	out, err := w.exec.Run(ctx, w.root, gitexec.StatusPorcelain)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

func (w *repoWorker) addAndCommit(ctx context.Context, relativePath, message string) (string, error) {
	if _, err := w.exec.Run(ctx, w.root, gitexec.Add, relativePath); err != nil {
		return "", fmt.Errorf("stage %s: %w", relativePath, err)
	}
	if _, err := w.exec.Run(ctx, w.root, gitexec.Commit, "-m", message); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	hash, err := w.exec.Run(ctx, w.root, gitexec.RevParse, "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve commit hash: %w", err)
	}
	return strings.TrimSpace(hash), nil
}

func (w *repoWorker) restoreOriginal(ctx context.Context, original string, stashed bool) error {
	if _, err := w.exec.Run(ctx, w.root, gitexec.Checkout, original); err != nil {
		return err
	}
	if stashed {
		if _, err := w.exec.Run(ctx, w.root, gitexec.StashPop); err != nil {
			return err
		}
	}
	return nil
}

// disableFatal marks the repository fatal-repository (spec §7): a
// partial failure that leaves the working tree on the shadow branch.
// The caller must disable further commits and surface the error to the
// user; recovery is manual.
func (w *repoWorker) disableFatal(ctx context.Context, err error) error {
	w.mu.Lock()
	w.disabled = true
	w.mu.Unlock()
	w.drainEvents()
	logging.Error(ctx, "repository disabled after fatal shadow-commit failure",
		"repository", w.root, "error", err.Error())
	return err
}

// drainEvents discards any file events already queued at the moment the
// repository is fatally disabled, so a burst of saves right before the
// failure doesn't sit around waiting to be rejected one by one.
func (w *repoWorker) drainEvents() {
	for {
		select {
		case <-w.events:
		default:
			return
		}
	}
}

// Disabled reports whether this worker stopped accepting new commits
// after a fatal-repository failure.
func (w *repoWorker) Disabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.disabled
}

func readFileBestEffort(path string) string {
	data, err := os.ReadFile(path) //nolint:gosec // path is inside a watched repository working tree
	if err != nil {
		return ""
	}
	return string(data)
}
