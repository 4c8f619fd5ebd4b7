//go:build !windows

package process

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// IsRunning reports whether the process with the given PID is still alive.
// An exited child that has not been reaped yet still counts as running.
func IsRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}

	err := unix.Kill(pid, 0)
	switch {
	case err == nil, errors.Is(err, unix.EPERM):
		return true, nil
	case errors.Is(err, unix.ESRCH):
		return false, nil
	default:
		return false, fmt.Errorf("failed to probe process %d: %w", pid, err)
	}
}
