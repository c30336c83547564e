package cli

import (
	"fmt"
	"strings"

	"github.com/aimemory/engine/internal/config"
	"github.com/aimemory/engine/internal/store"
	"github.com/spf13/cobra"
)

func newAddCmd() *cobra.Command {
	var (
		throttleSeconds int
		maxFileSizeMB   int
		excludeGlobs    []string
		disabled        bool
	)

	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Start monitoring a repository for shadow commits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, args[0], throttleSeconds, maxFileSizeMB, excludeGlobs, disabled)
		},
	}

	cmd.Flags().IntVar(&throttleSeconds, "throttle", config.DefaultThrottleSeconds, "minimum seconds between shadow commits")
	cmd.Flags().IntVar(&maxFileSizeMB, "max-file-size", config.DefaultMaxFileSizeMB, "skip files larger than this many megabytes")
	cmd.Flags().StringArrayVar(&excludeGlobs, "exclude", nil, "additional exclude glob (repeatable)")
	cmd.Flags().BoolVar(&disabled, "no-enable", false, "register the repository without enabling monitoring yet")

	return cmd
}

func runAdd(cmd *cobra.Command, path string, throttleSeconds, maxFileSizeMB int, excludeGlobs []string, disabled bool) error {
	ctx := cmd.Context()

	eng, err := openEngine(ctx)
	if err != nil {
		return NewSilentError(fmt.Errorf("open engine: %w", err))
	}
	defer closeEngine(eng)

	overrides := &store.RepositorySettings{
		Enabled:          !disabled,
		NotificationPref: "every-commit",
		ExcludedGlobs:    excludeGlobs,
		ThrottleSeconds:  throttleSeconds,
		MaxFileSizeMB:    maxFileSizeMB,
		ShadowPrefix:     config.DefaultShadowPrefix,
	}

	settings, err := eng.AddRepository(ctx, path, overrides)
	if err != nil {
		return NewSilentError(fmt.Errorf("add repository: %w", err))
	}

	status := "enabled"
	if !settings.Enabled {
		status = "registered (disabled)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", settings.RepositoryRoot, status)
	if len(excludeGlobs) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "  extra excludes: %s\n", strings.Join(excludeGlobs, ", "))
	}
	return nil
}
