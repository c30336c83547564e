package cli

import (
	"fmt"

	"github.com/aimemory/engine/internal/logging"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show aimemory status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd)
		},
	}
}

func runStatus(cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if pid, err := readPID(); err == nil && processAlive(pid) {
		fmt.Fprintf(out, "daemon: running (pid %d)\n", pid)
	} else {
		fmt.Fprintln(out, "daemon: not running")
	}

	eng, err := openEngine(ctx)
	if err != nil {
		return NewSilentError(fmt.Errorf("open engine: %w", err))
	}
	defer closeEngine(eng)

	stats, err := eng.Store.Stats(ctx)
	if err != nil {
		return NewSilentError(fmt.Errorf("read store stats: %w", err))
	}
	sizeMB, _ := eng.Store.SizeMB()

	fmt.Fprintf(out, "database: %s (%.1f MB, integrity=%s)\n", eng.Store.Path(), sizeMB, eng.Store.LastIntegrityStatus())
	fmt.Fprintf(out, "conversations: %d, messages: %d\n", stats.Conversations, stats.Messages)

	settings, err := eng.Store.ListAllRepositorySettings(ctx)
	if err != nil {
		return NewSilentError(fmt.Errorf("list repositories: %w", err))
	}
	enabled := 0
	for _, rs := range settings {
		if rs.Enabled {
			enabled++
		}
	}
	fmt.Fprintf(out, "repositories: %d registered, %d enabled\n", len(settings), enabled)

	if eng.Notify != nil {
		records, err := eng.Notify.Recent()
		if err != nil {
			logging.Debug(ctx, "failed to read notifications sink for status", "error", err.Error())
		} else if len(records) > 0 {
			fmt.Fprintf(out, "recent notifications (%d):\n", len(records))
			for _, r := range records {
				fmt.Fprintf(out, "  [%s] %s repo=%s file=%s branch=%s\n",
					r.Timestamp.Format("15:04:05"), r.Type, r.Repository, r.File, r.Branch)
			}
		}
	}
	return nil
}
