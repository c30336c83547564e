// Command aimemoryd is the long-running daemon process: it opens the
// engine, starts the transcript indexer and shadow-commit watchers, and
// serves the JSON-RPC 2.0 API (spec §4.9, C9) line-framed over its own
// stdin/stdout. Grounded on cmd/entire/main.go's signal-to-context-cancel
// shape, generalized here from "run one cobra command to completion" to
// "run until interrupted".
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aimemory/engine/internal/appinfo"
	"github.com/aimemory/engine/internal/autodetect"
	"github.com/aimemory/engine/internal/engine"
	"github.com/aimemory/engine/internal/logging"
	"github.com/aimemory/engine/internal/rpc"
	"github.com/aimemory/engine/internal/shadow"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := logging.Init("aimemoryd"); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logging.Close()

	eng, err := engine.Open(ctx)
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	defer eng.Shutdown(context.Background())

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	if eng.Settings.AutoDetect {
		go autoDetectRepositories(ctx, eng)
	}

	go runOrphanSweeps(ctx, eng)
	go runDisabledRepositoryWatch(ctx, eng)

	deps := &rpc.Dependencies{
		Store:    eng.Store,
		Resolver: eng.Resolver,
		GitExec:  eng.GitExec,
		Restore:  eng.Restore,
		Shadow:   eng.Shadow,
		Eng:      eng,
	}
	server := rpc.NewServer(deps)

	logging.Info(ctx, "aimemoryd ready", "database", mustDBPath())

	return server.Serve(ctx, os.Stdin, os.Stdout)
}

func mustDBPath() string {
	p, err := appinfo.DatabasePath()
	if err != nil {
		return ""
	}
	return p
}

func autoDetectRepositories(ctx context.Context, eng *engine.Engine) {
	roots := eng.Settings.AutoDetectRoots
	if len(roots) == 0 {
		roots = autodetect.DefaultRoots()
	}
	for _, root := range autodetect.Discover(roots) {
		if _, err := eng.AddRepository(ctx, root, nil); err != nil {
			logging.Warn(ctx, "auto-detect failed to add repository", "error", err.Error())
		}
	}

	transcriptDir, err := engine.TranscriptDir(eng.Settings)
	if err != nil {
		return
	}
	for _, candidate := range autodetect.ProjectPaths(transcriptDir) {
		if _, err := eng.AddRepository(ctx, candidate, nil); err != nil {
			logging.Debug(ctx, "auto-detect candidate is not a git repository", "path", candidate)
		}
	}
}

// runDisabledRepositoryWatch polls for repositories the shadow engine
// has marked fatal-repository (spec §7: "disable repository, notify
// user") and appends a notification the first time each one is seen, so
// the GUI/CLI surface reflects the disablement even though the shadow
// worker itself only logs it.
func runDisabledRepositoryWatch(ctx context.Context, eng *engine.Engine) {
	seen := make(map[string]bool)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, root := range eng.Shadow.DisabledRepositories() {
				if seen[root] {
					continue
				}
				seen[root] = true
				eng.NotifyRepositoryDisabled(ctx, root)
			}
		}
	}
}

func runOrphanSweeps(ctx context.Context, eng *engine.Engine) {
	ticker := time.NewTicker(shadow.OrphanSweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, root := range eng.Shadow.WatchedRepositories() {
				if _, err := eng.Shadow.SweepOrphans(ctx, root); err != nil {
					logging.Warn(ctx, "orphan sweep failed", "repository", root, "error", err.Error())
				}
			}
		}
	}
}
