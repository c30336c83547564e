package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/aimemory/engine/internal/appinfo"
)

// pidFilePath returns the path the running aimemoryd process records its
// PID to, so stop (and a future "status --daemon") can find it without a
// control socket.
func pidFilePath() (string, error) {
	dir, err := appinfo.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "aimemoryd.pid"), nil
}

func readPID() (int, error) {
	path, err := pidFilePath()
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // path derived from appinfo.DataDir
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("corrupt pidfile %s: %w", path, err)
	}
	return pid, nil
}

func writePID(pid int) error {
	path, err := pidFilePath()
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644) //nolint:gosec // readable status file, no secrets
}

func removePIDFile() {
	if path, err := pidFilePath(); err == nil {
		_ = os.Remove(path)
	}
}

// processAlive reports whether pid still refers to a live process,
// using the zero-signal probe idiom (signal 0 checks existence without
// delivering anything).
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// daemonBinaryPath locates the aimemoryd binary next to the currently
// running aimemory executable, falling back to PATH lookup.
func daemonBinaryPath() (string, error) {
	self, err := os.Executable()
	if err == nil {
		candidate := filepath.Join(filepath.Dir(self), "aimemoryd")
		if _, statErr := os.Stat(candidate); statErr == nil {
			return candidate, nil
		}
	}
	return exec.LookPath("aimemoryd")
}
