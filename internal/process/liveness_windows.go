//go:build windows

package process

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
)

// IsRunning reports whether the process with the given PID is still alive
func IsRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}

	// Open the process with SYNCHRONIZE so its handle can be polled
	handle, err := windows.OpenProcess(windows.SYNCHRONIZE|windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		// No such process
		if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
			return false, nil
		}
		return false, fmt.Errorf("failed to open process %d: %w", pid, err)
	}
	defer func() {
		_ = windows.CloseHandle(handle)
	}()

	event, err := windows.WaitForSingleObject(handle, 0)
	if err != nil {
		return false, fmt.Errorf("WaitForSingleObject failed for PID %d: %w", pid, err)
	}

	return event == uint32(windows.WAIT_TIMEOUT), nil
}
