package process

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	"github.com/amkillam/transparent/pkg/headless"
)

var (
	// ErrSessionFinished is returned when a session is used after its handles were released
	ErrSessionFinished = errors.New("process session already finished")

	// ErrNotRunning is returned by Kill when the process had already exited
	ErrNotRunning = errors.New("process is not running")

	// ErrWaitInProgress is returned when a second Wait or a Close races a pending Wait
	ErrWaitInProgress = errors.New("wait already in progress")
)

// Surface is the isolated desktop a process is launched onto
type Surface interface {
	Name() string
	StartupInfo() (*windows.StartupInfo, error)
}

// Session owns a launched process and the event used to cancel waiting on it.
// Its handles are released exactly once, by Wait, Kill or Close. While a
// Wait is pending only Wait may release them.
type Session struct {
	mu        sync.Mutex
	process   windows.Handle
	cancel    windows.Handle
	pid       uint32
	interrupt *InterruptHandler
	waiting   bool
	finished  bool
	logger    *zap.Logger
}

// LaunchOptions tune a launch
type LaunchOptions struct {
	// Env is the full environment of the new process as KEY=VALUE pairs.
	// Nil inherits the launcher's environment.
	Env []string
	// Dir is the working directory. Empty inherits the launcher's.
	Dir    string
	Logger *zap.Logger
}

// Launch starts targetPath with targetArgs on the given surface, inheriting
// handles. A Ctrl-C delivered to the launcher cancels any pending Wait.
func Launch(surface Surface, targetPath string, targetArgs []string, opts LaunchOptions) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	commandLine, err := EncodeCommandLine(targetPath, targetArgs)
	if err != nil {
		return nil, fmt.Errorf("failed to build command line for %s: %w", targetPath, err)
	}

	env, err := environmentBlock(opts.Env)
	if err != nil {
		return nil, err
	}

	var dir *uint16
	if opts.Dir != "" {
		dir, err = windows.UTF16PtrFromString(opts.Dir)
		if err != nil {
			return nil, fmt.Errorf("invalid working directory %q: %w", opts.Dir, err)
		}
	}

	startupInfo, err := surface.StartupInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to prepare desktop %s: %w", surface.Name(), err)
	}

	var info windows.ProcessInformation
	err = windows.CreateProcess(
		nil,
		&commandLine[0],
		nil,
		nil,
		true,
		windows.CREATE_UNICODE_ENVIRONMENT,
		env,
		dir,
		startupInfo,
		&info,
	)
	if err != nil {
		return nil, fmt.Errorf("CreateProcess failed for %s: %w", targetPath, err)
	}

	// abort undoes a partially completed launch
	abort := func(cause error, handles ...windows.Handle) error {
		err := cause
		err = multierr.Append(err, terminate(info.Process, info.ProcessId, headless.ForcedExitCode))
		for _, h := range handles {
			err = multierr.Append(err, windows.CloseHandle(h))
		}
		return err
	}

	// The primary thread handle is never used
	if err := windows.CloseHandle(info.Thread); err != nil {
		return nil, abort(fmt.Errorf("failed to close thread handle of process %d: %w", info.ProcessId, err), info.Process)
	}

	// Manual reset, initially unset
	cancel, err := windows.CreateEvent(nil, 1, 0, nil)
	if err != nil {
		return nil, abort(fmt.Errorf("CreateEvent failed: %w", err), info.Process)
	}

	s := &Session{
		process: info.Process,
		cancel:  cancel,
		pid:     info.ProcessId,
		logger:  logger,
	}

	s.interrupt, err = InstallInterruptHandler(s.interruptFunc())
	if err != nil {
		return nil, abort(fmt.Errorf("failed to install interrupt handler: %w", err), info.Process, cancel)
	}

	logger.Info("Launched process on isolated desktop",
		zap.Uint32("pid", s.pid),
		zap.String("desktop", surface.Name()),
		zap.String("program", targetPath))

	return s, nil
}

// environmentBlock encodes env as a sequence of NUL-terminated UTF-16
// KEY=VALUE strings closed by an extra NUL
func environmentBlock(env []string) (*uint16, error) {
	if env == nil {
		return nil, nil
	}
	if len(env) == 0 {
		// An empty block still needs both terminators
		return &[]uint16{0, 0}[0], nil
	}

	var block []uint16
	for _, kv := range env {
		wide, err := windows.UTF16FromString(kv)
		if err != nil {
			return nil, fmt.Errorf("invalid environment entry %q: %w", kv, err)
		}
		block = append(block, wide...)
	}
	block = append(block, 0)
	return &block[0], nil
}

// interruptFunc returns the Ctrl-C callback. It only signals the cancel
// event; the handle stays valid until the handler is removed.
func (s *Session) interruptFunc() func() {
	cancel, pid, logger := s.cancel, s.pid, s.logger
	return func() {
		logger.Info("Interrupt received, cancelling wait", zap.Uint32("pid", pid))
		if err := windows.SetEvent(cancel); err != nil {
			logger.Error("Failed to signal cancellation", zap.Uint32("pid", pid), zap.Error(err))
		}
	}
}

// PID returns the process identifier
func (s *Session) PID() int {
	return int(s.pid)
}

// Cancel makes a pending or future Wait return early and terminate the process
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return ErrSessionFinished
	}

	if err := windows.SetEvent(s.cancel); err != nil {
		return fmt.Errorf("failed to signal cancellation for process %d: %w", s.pid, err)
	}
	return nil
}

// Wait blocks until the process exits or the session is cancelled, then
// releases the session. A process still running after a cancelled wait is
// terminated and reported with the forced exit code.
func (s *Session) Wait() (int, error) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return 0, ErrSessionFinished
	}
	if s.waiting {
		s.mu.Unlock()
		return 0, ErrWaitInProgress
	}
	s.waiting = true
	handles := []windows.Handle{s.process, s.cancel}
	s.mu.Unlock()

	event, err := windows.WaitForMultipleObjects(handles, false, windows.INFINITE)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiting = false

	if err != nil {
		return 0, fmt.Errorf("failed to wait for process %d: %w", s.pid, err)
	}
	if s.finished {
		return 0, ErrSessionFinished
	}

	switch event {
	case windows.WAIT_OBJECT_0:
		s.logger.Debug("Process exited", zap.Uint32("pid", s.pid))
	case windows.WAIT_OBJECT_0 + 1:
		s.logger.Debug("Wait cancelled", zap.Uint32("pid", s.pid))
	default:
		return 0, fmt.Errorf("unexpected wait result 0x%X for process %d", event, s.pid)
	}

	exitCode, err := s.exitCodeLocked()
	if err != nil {
		return 0, err
	}

	if elapsed, err := lifetime(s.process, s.pid, true); err == nil {
		s.logger.Info("Process finished",
			zap.Uint32("pid", s.pid),
			zap.Int("exit_code", exitCode),
			zap.Duration("elapsed", elapsed))
	}

	return exitCode, s.releaseLocked()
}

// exitCodeLocked reads the exit code, terminating the process if it is still active
func (s *Session) exitCodeLocked() (int, error) {
	var code uint32
	if err := windows.GetExitCodeProcess(s.process, &code); err != nil {
		return 0, fmt.Errorf("failed to get exit code of process %d: %w", s.pid, err)
	}
	if code != stillActive {
		return int(int32(code)), nil
	}

	s.logger.Info("Process still running after cancellation, terminating", zap.Uint32("pid", s.pid))
	if err := terminate(s.process, s.pid, headless.ForcedExitCode); err != nil {
		return 0, err
	}
	return headless.ForcedExitCode, nil
}

// Kill forcibly terminates the process and releases the session.
// It returns ErrNotRunning if the process had already exited. During a
// pending Wait the process is terminated but the release is left to Wait,
// which then reports the forced exit code.
func (s *Session) Kill() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return ErrSessionFinished
	}

	done, err := exited(s.process, s.pid)
	if err != nil {
		return err
	}
	if done {
		if s.waiting {
			return ErrNotRunning
		}
		return multierr.Append(ErrNotRunning, s.releaseLocked())
	}

	if err := terminate(s.process, s.pid, headless.ForcedExitCode); err != nil {
		return err
	}
	s.logger.Info("Terminated process", zap.Uint32("pid", s.pid))

	if s.waiting {
		return nil
	}
	return s.releaseLocked()
}

// Uptime returns how long the process has been running
func (s *Session) Uptime() (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return 0, ErrSessionFinished
	}

	done, err := exited(s.process, s.pid)
	if err != nil {
		return 0, err
	}
	return lifetime(s.process, s.pid, done)
}

// Close releases the session's handles without touching the process.
// It is a no-op once the session has finished and fails with
// ErrWaitInProgress while a Wait is pending.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return nil
	}
	if s.waiting {
		return ErrWaitInProgress
	}
	return s.releaseLocked()
}

func (s *Session) releaseLocked() error {
	s.finished = true
	s.interrupt.Remove()

	var err error
	if closeErr := windows.CloseHandle(s.cancel); closeErr != nil {
		err = multierr.Append(err, fmt.Errorf("failed to close cancel event of process %d: %w", s.pid, closeErr))
	}
	if closeErr := windows.CloseHandle(s.process); closeErr != nil {
		err = multierr.Append(err, fmt.Errorf("failed to close handle of process %d: %w", s.pid, closeErr))
	}
	s.cancel = 0
	s.process = 0

	return err
}
