package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/devtelemetry/internal/errors"
)

const (
	pidFile = "devtelemetry.pid"
)

// DefaultPath is used when no PID file is configured
func DefaultPath() string {
	return filepath.Join(os.TempDir(), pidFile)
}

// Write writes the current process ID to path. It fails with
// ErrAlreadyRunning while the process recorded there is alive; a stale
// file is replaced.
func Write(path string) error {
	errFactory := errors.New()

	if data, err := os.ReadFile(path); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && alive(pid) {
			return errFactory.WithData(errors.ErrAlreadyRunning, struct {
				Path string
				PID  int
			}{path, pid})
		}
	} else if !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// Remove removes the PID file.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}
