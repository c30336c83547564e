package cli

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/aimemory/engine/internal/appinfo"
	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the aimemory background service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStart(cmd)
		},
	}
}

func runStart(cmd *cobra.Command) error {
	if pid, err := readPID(); err == nil && processAlive(pid) {
		fmt.Fprintf(cmd.OutOrStdout(), "aimemoryd already running (pid %d)\n", pid)
		return nil
	}

	binary, err := daemonBinaryPath()
	if err != nil {
		return NewSilentError(fmt.Errorf("cannot locate aimemoryd binary: %w", err))
	}

	logsDir, err := appinfo.LogsDir()
	if err != nil {
		return NewSilentError(fmt.Errorf("resolve logs directory: %w", err))
	}
	logFile, err := os.OpenFile(logsDir+"/aimemoryd.out.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec // fixed log path under data dir
	if err != nil {
		return NewSilentError(fmt.Errorf("open daemon log file: %w", err))
	}
	defer logFile.Close()

	proc := exec.Command(binary)
	proc.Stdout = logFile
	proc.Stderr = logFile
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := proc.Start(); err != nil {
		return NewSilentError(fmt.Errorf("start aimemoryd: %w", err))
	}
	if err := writePID(proc.Process.Pid); err != nil {
		return NewSilentError(fmt.Errorf("record pidfile: %w", err))
	}
	if err := proc.Process.Release(); err != nil {
		return NewSilentError(errors.Join(errors.New("release daemon process handle"), err))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "aimemoryd started (pid %d)\n", proc.Process.Pid)
	return nil
}
