package cli

import (
	"fmt"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the aimemory background service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStop(cmd)
		},
	}
}

func runStop(cmd *cobra.Command) error {
	pid, err := readPID()
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), "aimemoryd is not running")
		return nil
	}
	if !processAlive(pid) {
		removePIDFile()
		fmt.Fprintln(cmd.OutOrStdout(), "aimemoryd is not running")
		return nil
	}

	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return NewSilentError(fmt.Errorf("signal aimemoryd (pid %d): %w", pid, err))
	}

	for i := 0; i < 50; i++ {
		if !processAlive(pid) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	removePIDFile()
	fmt.Fprintf(cmd.OutOrStdout(), "aimemoryd stopped (pid %d)\n", pid)
	return nil
}
