// Package engine wires the Store (C1), Transcript Indexer (C3), Git
// Executor (C4), Repository Resolver (C5), Shadow-Commit Engine (C6),
// Correlator (C7), and Restore Points (C8) into one long-lived object
// that both the daemon (cmd/aimemoryd) and the RPC server (internal/rpc)
// hold a reference to. Grounded on cmd/entire/main.go's context-cancel
// + signal-handling shape, generalized here from "one cobra command
// invocation" to "one long-running process wiring several
// subcomponents together".
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/aimemory/engine/internal/appinfo"
	"github.com/aimemory/engine/internal/config"
	"github.com/aimemory/engine/internal/correlate"
	"github.com/aimemory/engine/internal/gitexec"
	"github.com/aimemory/engine/internal/indexer"
	"github.com/aimemory/engine/internal/logging"
	"github.com/aimemory/engine/internal/notify"
	"github.com/aimemory/engine/internal/redact"
	"github.com/aimemory/engine/internal/repo"
	"github.com/aimemory/engine/internal/restore"
	"github.com/aimemory/engine/internal/shadow"
	"github.com/aimemory/engine/internal/store"
)

// Engine is the fully-wired core: every spec §2 component except the
// RPC server itself, which wraps an Engine rather than embedding it, so
// the CLI (cmd/aimemory) can also hold one without a network listener.
type Engine struct {
	Store      *store.Store
	Settings   *config.Settings
	Resolver   *repo.Resolver
	GitExec    *gitexec.Executor
	Correlator *correlate.Correlator
	Indexer    *indexer.Indexer
	Shadow     *shadow.Engine
	Restore    *restore.Manager
	Notify     *notify.Sink

	notifyScheduler *notify.Scheduler
}

// Open loads global settings, opens the store, and constructs every
// stateless collaborator. It does not yet start the indexer watch or any
// shadow-commit workers — call Start for that.
func Open(ctx context.Context) (*Engine, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	logging.SetLevelGetter(func() string { return settings.LogLevel })

	dbPath, err := appinfo.DatabasePath()
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	st, err := store.Open(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	sink, err := notify.New("")
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("open notifications sink: %w", err)
	}

	gitExec := gitexec.NewExecutor()
	resolver := repo.NewResolver()
	correlator := correlate.New(st)
	restoreMgr := restore.New(st, gitExec)
	shadowEngine := shadow.NewEngine(st, gitExec, correlator)
	notifyScheduler := notify.NewScheduler(sink)
	shadowEngine.SetNotifier(notifyScheduler)

	transcriptDir, err := TranscriptDir(settings)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("resolve transcript directory: %w", err)
	}
	ix := indexer.New(st, transcriptDir)

	return &Engine{
		Store:           st,
		Settings:        settings,
		Resolver:        resolver,
		GitExec:         gitExec,
		Correlator:      correlator,
		Indexer:         ix,
		Shadow:          shadowEngine,
		Restore:         restoreMgr,
		Notify:          sink,
		notifyScheduler: notifyScheduler,
	}, nil
}

// TranscriptDir resolves the effective transcript directory: the
// settings override if present, else the well-known per-client default
// (spec §6.1: one subdirectory per project, under the AI client's own
// data directory).
func TranscriptDir(settings *config.Settings) (string, error) {
	if settings.TranscriptDir != "" {
		return settings.TranscriptDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".claude", "projects"), nil
}

// Start begins the transcript indexer's scan+watch and re-arms shadow
// monitoring for every repository the store already has enabled
// settings for (spec §5 "restart safety"). Auto-detection of new
// repositories, if enabled, runs separately (see internal/autodetect).
func (e *Engine) Start(ctx context.Context) error {
	if err := e.Indexer.Start(ctx); err != nil {
		return fmt.Errorf("start transcript indexer: %w", err)
	}

	roots, err := e.Store.ListEnabledRepositories(ctx)
	if err != nil {
		return fmt.Errorf("list enabled repositories: %w", err)
	}
	for _, root := range roots {
		settings, err := e.Store.GetRepositorySettings(ctx, root)
		if err != nil || settings == nil {
			logging.Warn(ctx, "skipping repository with missing settings on restart", "repository", root)
			continue
		}
		if err := e.Shadow.Watch(ctx, root, *settings); err != nil {
			logging.Warn(ctx, "failed to re-arm shadow watch on startup", "repository", root, "error", err.Error())
		}
	}
	return nil
}

// AddRepository registers root for shadow-commit monitoring: resolves
// it (C5), writes default (or caller-supplied) settings (C1), and starts
// the watch (C6). Idempotent — re-adding an already-watched repository
// is a no-op for the watch itself but refreshes settings.
func (e *Engine) AddRepository(ctx context.Context, inputPath string, overrides *store.RepositorySettings) (store.RepositorySettings, error) {
	info, err := e.Resolver.Resolve(ctx, inputPath)
	if err != nil {
		return store.RepositorySettings{}, fmt.Errorf("resolve repository: %w", err)
	}

	if err := e.Store.UpsertRepository(ctx, store.Repository{
		Root:                   info.Root,
		RemoteURL:              info.RemoteURL,
		DefaultBranch:          info.DefaultBranch,
		IsMonorepoSubdirectory: info.IsMonorepoSubdirectory,
		SubdirectoryPath:       info.SubdirectoryPath,
		CachedAt:               time.Now(),
	}); err != nil {
		return store.RepositorySettings{}, fmt.Errorf("cache repository metadata: %w", err)
	}

	defaults := store.RepositorySettings{
		RepositoryRoot:   info.Root,
		Enabled:          true,
		NotificationPref: "every-commit",
		ExcludedGlobs:    nil,
		ThrottleSeconds:  e.Settings.DefaultThrottleSeconds,
		MaxFileSizeMB:    e.Settings.DefaultMaxFileSizeMB,
		ShadowPrefix:     config.DefaultShadowPrefix,
	}
	if overrides != nil {
		defaults = *overrides
		defaults.RepositoryRoot = info.Root
	}

	if err := e.Store.EnsureRepositorySettings(ctx, info.Root, defaults); err != nil {
		return store.RepositorySettings{}, fmt.Errorf("persist repository settings: %w", err)
	}
	settings, err := e.Store.GetRepositorySettings(ctx, info.Root)
	if err != nil || settings == nil {
		return store.RepositorySettings{}, fmt.Errorf("read back repository settings: %w", err)
	}

	if settings.Enabled {
		if err := e.Shadow.Watch(ctx, info.Root, *settings); err != nil {
			return store.RepositorySettings{}, fmt.Errorf("start shadow watch: %w", err)
		}
	}
	return *settings, nil
}

// RemoveRepository disables monitoring for root: stops the shadow watch
// and flips its settings row to disabled (the row itself is kept, so
// restore-point and shadow-commit history remain queryable).
func (e *Engine) RemoveRepository(ctx context.Context, inputPath string) error {
	info, err := e.Resolver.Resolve(ctx, inputPath)
	if err != nil {
		return fmt.Errorf("resolve repository: %w", err)
	}
	e.Shadow.Unwatch(info.Root)

	settings, err := e.Store.GetRepositorySettings(ctx, info.Root)
	if err != nil {
		return err
	}
	if settings == nil {
		return nil
	}
	settings.Enabled = false
	return e.Store.UpdateRepositorySettings(ctx, *settings)
}

// Shutdown stops the indexer and every shadow-commit worker, then closes
// the store (spec §5 "graceful shutdown: watchers stop first, queues
// drain ... then workers terminated").
func (e *Engine) Shutdown(ctx context.Context) {
	e.Indexer.Stop()

	drainCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	e.Shadow.Shutdown(drainCtx)

	if e.notifyScheduler != nil {
		e.notifyScheduler.Stop()
	}

	if err := e.Store.Close(); err != nil {
		logging.Warn(ctx, "error closing store during shutdown", "error", err.Error())
	}
}

// notifyShadowCommit is a convenience the RPC/CLI layers call after a
// manual action that should also land in the sidecar notification log
// (spec §6.2). Best-effort: errors are logged, never propagated.
func (e *Engine) notify(ctx context.Context, r notify.Record) {
	if e.Notify == nil {
		return
	}
	if err := e.Notify.Append(r); err != nil {
		logging.Debug(ctx, "failed to append notification", "error", err.Error())
	}
}

// NotifyRepositoryDisabled records a fatal-repository notification
// (spec §4.6 "disables that repository and surfaces a user-visible
// error").
func (e *Engine) NotifyRepositoryDisabled(ctx context.Context, root string) {
	e.notify(ctx, notify.Record{
		Timestamp:  time.Now(),
		Type:       "repository-disabled",
		Repository: root,
	})
}

// absolutePathPattern matches an absolute filesystem path: a run of
// characters starting from a leading slash, stopping at whitespace,
// quotes, or a trailing colon (the common "path:line:" / "path: message"
// shape Go's own errors use).
var absolutePathPattern = regexp.MustCompile(`/[^\s"':]*`)

// SanitizeError strips every absolute path from err's message down to
// its basename, and redacts any secret-like content in what remains,
// before it can reach an RPC client or notification record (spec §7
// privacy boundary: "no absolute paths and no excerpt of file
// contents"). Grounded on internal/redact.String, the same detector the
// shadow-commit gate uses for its own secret scan.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	msg = absolutePathPattern.ReplaceAllStringFunc(msg, func(path string) string {
		base := filepath.Base(path)
		if base == "" || base == "/" || base == "." {
			return "<path>"
		}
		return base
	})
	return redact.String(msg)
}
