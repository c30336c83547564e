package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List monitored repositories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd)
		},
	}
}

func runList(cmd *cobra.Command) error {
	ctx := cmd.Context()

	eng, err := openEngine(ctx)
	if err != nil {
		return NewSilentError(fmt.Errorf("open engine: %w", err))
	}
	defer closeEngine(eng)

	settings, err := eng.Store.ListAllRepositorySettings(ctx)
	if err != nil {
		return NewSilentError(fmt.Errorf("list repositories: %w", err))
	}

	if len(settings) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no repositories registered")
		return nil
	}

	for _, rs := range settings {
		state := "enabled"
		if !rs.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-60s %-10s throttle=%ds max=%dMB\n",
			rs.RepositoryRoot, state, rs.ThrottleSeconds, rs.MaxFileSizeMB)
	}
	return nil
}
