package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newRemoveCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "remove <path>",
		Short: "Stop monitoring a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd, args[0], yes)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

// runRemove confirms interactively before dropping a repository's shadow
// history from monitoring, mirroring cmd/entire/cli/rewind.go's
// huh.NewConfirm pattern for operations a user could regret. The prompt
// is skipped outright when stdin isn't a terminal (scripts, --yes).
func runRemove(cmd *cobra.Command, path string, yes bool) error {
	ctx := cmd.Context()

	if !yes && term.IsTerminal(int(os.Stdin.Fd())) {
		confirmed := false
		err := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Stop monitoring %s?", path)).
					Description("Existing shadow-branch history is kept; only future file events stop being watched.").
					Affirmative("Stop monitoring").
					Negative("Cancel").
					Value(&confirmed),
			),
		).WithOutput(cmd.OutOrStdout()).Run()
		if err != nil {
			return NewSilentError(fmt.Errorf("confirmation prompt: %w", err))
		}
		if !confirmed {
			fmt.Fprintln(cmd.OutOrStdout(), "cancelled")
			return nil
		}
	}

	eng, err := openEngine(ctx)
	if err != nil {
		return NewSilentError(fmt.Errorf("open engine: %w", err))
	}
	defer closeEngine(eng)

	if err := eng.RemoveRepository(ctx, path); err != nil {
		return NewSilentError(fmt.Errorf("remove repository: %w", err))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "monitoring stopped for %s\n", path)
	return nil
}
