package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/aimemory/engine/internal/config"
	"github.com/aimemory/engine/internal/paths"
	"github.com/aimemory/engine/internal/shadow"
	"github.com/aimemory/engine/internal/store"
	"github.com/spf13/cobra"
)

func newTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <file>",
		Short: "Dry-run the shadow-commit gate against a file",
		Long:  "Runs the same ordered gate a live file-change event would go through (exclude globs, throttle, size ceiling, secret scan, tracked-file check) and reports which stage, if any, would reject it — without committing anything.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(cmd, args[0])
		},
	}
}

func runTest(cmd *cobra.Command, target string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	absPath, err := filepath.Abs(target)
	if err != nil {
		return NewSilentError(fmt.Errorf("resolve path: %w", err))
	}

	root, err := paths.RepoRoot(ctx, filepath.Dir(absPath))
	if err != nil {
		return NewSilentError(fmt.Errorf("%s is not inside a git repository: %w", target, err))
	}

	eng, err := openEngine(ctx)
	if err != nil {
		return NewSilentError(fmt.Errorf("open engine: %w", err))
	}
	defer closeEngine(eng)

	settings, err := eng.Store.GetRepositorySettings(ctx, root)
	if err != nil {
		return NewSilentError(fmt.Errorf("read repository settings: %w", err))
	}
	if settings == nil {
		settings = &store.RepositorySettings{
			RepositoryRoot:   root,
			Enabled:          true,
			NotificationPref: "every-commit",
			ThrottleSeconds:  config.DefaultThrottleSeconds,
			MaxFileSizeMB:    config.DefaultMaxFileSizeMB,
			ShadowPrefix:     config.DefaultShadowPrefix,
		}
	}

	relPath, err := filepath.Rel(root, absPath)
	if err != nil {
		return NewSilentError(fmt.Errorf("compute relative path: %w", err))
	}

	gate, err := shadow.NewGate(*settings, config.DefaultExcludeGlobs)
	if err != nil {
		return NewSilentError(fmt.Errorf("build gate: %w", err))
	}

	ev := shadow.Event{
		RelativePath: relPath,
		AbsolutePath: absPath,
		IsCreate:     true,
	}
	reason, accepted := gate.Check(ev, time.Time{})

	fmt.Fprintf(out, "repository: %s\n", root)
	fmt.Fprintf(out, "file:       %s\n", relPath)
	if accepted {
		fmt.Fprintln(out, "result:     would be committed")
	} else {
		fmt.Fprintf(out, "result:     rejected (%s)\n", reason)
	}
	return nil
}
