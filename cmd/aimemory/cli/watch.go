package cli

import (
	"fmt"

	"github.com/aimemory/engine/internal/engine"
	"github.com/aimemory/engine/internal/logging"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the indexer and shadow-commit engine in the foreground",
		Long:  "Like 'aimemoryd' but runs attached to this terminal and does not serve the JSON-RPC API, useful for diagnosing indexing or shadow-commit behavior live.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd)
		},
	}
}

func runWatch(cmd *cobra.Command) error {
	ctx := cmd.Context()

	if err := logging.Init("aimemory-watch"); err != nil {
		return NewSilentError(fmt.Errorf("init logging: %w", err))
	}
	defer logging.Close()

	eng, err := engine.Open(ctx)
	if err != nil {
		return NewSilentError(fmt.Errorf("open engine: %w", err))
	}
	defer eng.Shutdown(ctx)

	if err := eng.Start(ctx); err != nil {
		return NewSilentError(fmt.Errorf("start engine: %w", err))
	}

	fmt.Fprintln(cmd.OutOrStdout(), "watching transcripts and monitored repositories, press Ctrl-C to stop")
	<-ctx.Done()
	fmt.Fprintln(cmd.OutOrStdout(), "shutting down")
	return nil
}
