package process

import (
	"fmt"
	"time"

	"golang.org/x/sys/windows"
)

const (
	// stillActive is the exit code reported for a process that has not exited
	stillActive = 259

	// terminateTimeout bounds how long to wait for a terminated process to go away
	terminateTimeout = 10 * time.Second
)

// terminate forcibly stops the process behind handle and waits until it is gone
func terminate(handle windows.Handle, pid uint32, exitCode uint32) error {
	if err := windows.TerminateProcess(handle, exitCode); err != nil {
		return fmt.Errorf("failed to terminate process %d: %w", pid, err)
	}

	event, err := windows.WaitForSingleObject(handle, uint32(terminateTimeout/time.Millisecond))
	if err != nil {
		return fmt.Errorf("failed to wait for terminated process %d: %w", pid, err)
	}
	if event != windows.WAIT_OBJECT_0 {
		return fmt.Errorf("process %d still running %s after termination", pid, terminateTimeout)
	}

	return nil
}

// exited reports whether the process behind handle has already stopped
func exited(handle windows.Handle, pid uint32) (bool, error) {
	event, err := windows.WaitForSingleObject(handle, 0)
	if err != nil {
		return false, fmt.Errorf("WaitForSingleObject failed for PID %d: %w", pid, err)
	}
	return event == windows.WAIT_OBJECT_0, nil
}

// lifetime returns how long the process behind handle has run. For a process
// that has exited this is the span between creation and exit.
func lifetime(handle windows.Handle, pid uint32, hasExited bool) (time.Duration, error) {
	var creationTime, exitTime, kernelTime, userTime windows.Filetime
	err := windows.GetProcessTimes(handle, &creationTime, &exitTime, &kernelTime, &userTime)
	if err != nil {
		return 0, fmt.Errorf("GetProcessTimes failed for PID %d: %w", pid, err)
	}

	created := time.Unix(0, creationTime.Nanoseconds())
	if !hasExited {
		return time.Since(created), nil
	}
	return time.Unix(0, exitTime.Nanoseconds()).Sub(created), nil
}
