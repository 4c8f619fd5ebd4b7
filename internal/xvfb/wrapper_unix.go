//go:build !windows

package xvfb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/amkillam/transparent/internal/command"
	"github.com/amkillam/transparent/internal/process"
	"github.com/amkillam/transparent/pkg/headless"
)

// waitDelay is the grace period given to pipe I/O once the wrapper has exited
const waitDelay = time.Second

// ErrChildFinished is returned when a child is used after it was reaped
var ErrChildFinished = errors.New("wrapped process already finished")

// Wrapper launches commands under a headless display wrapper
type Wrapper struct {
	// Path is the wrapper executable, looked up on PATH when it has no separator.
	// Empty means headless.WrapperName.
	Path   string
	Logger *zap.Logger
}

func (w *Wrapper) path() string {
	if w.Path == "" {
		return headless.WrapperName
	}
	return w.Path
}

func (w *Wrapper) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}

// Command builds the wrapper invocation for cmd without starting it.
// The working directory falls back to the launcher's own.
func (w *Wrapper) Command(cmd *command.Command) (*exec.Cmd, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	args := append([]string{headless.WrapperAutoServerNumFlag, cmd.Program}, cmd.Args...)
	c := exec.Command(w.path(), args...)
	c.Env = cmd.Environ(os.Environ())

	c.Dir = cmd.Dir
	if c.Dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		c.Dir = wd
	}

	// Own process group so the display server dies with the target
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// Bounds how long Wait lets pipe I/O linger after the wrapper exits
	c.WaitDelay = waitDelay

	return c, nil
}

// Spawn starts cmd under the wrapper and returns as soon as the wrapper
// process exists. Standard streams are connected to pipes and a Ctrl-C
// delivered to the launcher cancels the child's Wait.
func (w *Wrapper) Spawn(cmd *command.Command) (*Child, error) {
	return w.spawn(cmd, true)
}

// SpawnDetached is like Spawn but leaves interrupts alone, so any number
// of detached children may be alive at once. Only ctx or Cancel stop Wait.
func (w *Wrapper) SpawnDetached(cmd *command.Command) (*Child, error) {
	return w.spawn(cmd, false)
}

func (w *Wrapper) spawn(cmd *command.Command, interruptible bool) (*Child, error) {
	c, err := w.Command(cmd)
	if err != nil {
		return nil, err
	}

	stdin, err := c.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := c.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("failed to spawn %s: %w", c.Path, err)
	}

	child := &Child{
		cmd:    c,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		cancel: make(chan struct{}),
		logger: w.logger(),
	}

	if interruptible {
		child.interrupt, err = process.InstallInterruptHandler(child.signalCancel)
		if err != nil {
			killErr := child.killGroup()
			_ = c.Wait()
			return nil, multierr.Append(fmt.Errorf("failed to install interrupt handler: %w", err), killErr)
		}
	}

	child.logger.Info("Spawned headless wrapper",
		zap.Int("pid", child.PID()),
		zap.String("wrapper", c.Path),
		zap.String("program", cmd.Program),
		zap.String("dir", c.Dir))

	return child, nil
}

// Child is a running wrapper process
type Child struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	cancel     chan struct{}
	cancelOnce sync.Once
	interrupt  *process.InterruptHandler

	mu       sync.Mutex
	finished bool
	logger   *zap.Logger
}

// PID returns the wrapper's process identifier
func (c *Child) PID() int {
	return c.cmd.Process.Pid
}

// Stdin returns the write end of the wrapper's stdin pipe
func (c *Child) Stdin() io.WriteCloser { return c.stdin }

// Stdout returns the read end of the wrapper's stdout pipe
func (c *Child) Stdout() io.Reader { return c.stdout }

// Stderr returns the read end of the wrapper's stderr pipe
func (c *Child) Stderr() io.Reader { return c.stderr }

// Cancel makes a pending or future Wait terminate the process group
func (c *Child) Cancel() {
	c.signalCancel()
}

func (c *Child) signalCancel() {
	c.cancelOnce.Do(func() {
		close(c.cancel)
	})
}

// Wait closes stdin, discards whatever output is left and blocks until the
// wrapper exits, ctx is done or Cancel is called. A cancelled wait kills
// the process group; if the wrapper had already exited on its own its real
// exit code is reported, otherwise the forced exit code.
func (c *Child) Wait(ctx context.Context) (int, error) {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return 0, ErrChildFinished
	}
	c.finished = true
	c.mu.Unlock()
	defer c.removeInterrupt()

	_ = c.stdin.Close()

	// Descendants outside the process group may keep the pipes open, so the
	// drains are never waited on. cmd.Wait closes the read ends.
	go func() {
		_, _ = io.Copy(io.Discard, c.stdout)
	}()
	go func() {
		_, _ = io.Copy(io.Discard, c.stderr)
	}()

	done := make(chan error, 1)
	go func() {
		done <- c.cmd.Wait()
	}()

	select {
	case err := <-done:
		return c.exitCode(err)
	case <-ctx.Done():
		c.logger.Debug("Context done, cancelling wait", zap.Int("pid", c.PID()))
	case <-c.cancel:
		c.logger.Debug("Wait cancelled", zap.Int("pid", c.PID()))
	}

	if err := c.killGroup(); err != nil {
		return 0, err
	}
	err := <-done

	if !killedBySignal(c.cmd.ProcessState, unix.SIGKILL) {
		// Exited before the kill landed
		return c.exitCode(err)
	}

	c.logger.Info("Terminated wrapper after cancellation", zap.Int("pid", c.PID()))
	return headless.ForcedExitCode, nil
}

// killedBySignal reports whether the reaped process was stopped by sig
func killedBySignal(state *os.ProcessState, sig syscall.Signal) bool {
	if state == nil {
		return false
	}
	status, ok := state.Sys().(syscall.WaitStatus)
	return ok && status.Signaled() && status.Signal() == sig
}

func (c *Child) exitCode(err error) (int, error) {
	if errors.Is(err, exec.ErrWaitDelay) && c.cmd.ProcessState != nil {
		// The wrapper exited; only its pipe I/O was cut short
		err = nil
		if code := c.cmd.ProcessState.ExitCode(); code != 0 {
			c.logger.Info("Wrapper exited", zap.Int("pid", c.PID()), zap.Int("exit_code", code))
			return code, nil
		}
	}
	if err == nil {
		c.logger.Info("Wrapper exited", zap.Int("pid", c.PID()), zap.Int("exit_code", 0))
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		c.logger.Info("Wrapper exited", zap.Int("pid", c.PID()), zap.Int("exit_code", code))
		return code, nil
	}
	return 0, fmt.Errorf("failed to wait for wrapper %d: %w", c.PID(), err)
}

func (c *Child) removeInterrupt() {
	if c.interrupt != nil {
		c.interrupt.Remove()
	}
}

// Kill terminates the wrapper's process group and reaps it
func (c *Child) Kill() error {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return ErrChildFinished
	}
	c.finished = true
	c.mu.Unlock()
	defer c.removeInterrupt()

	_ = c.stdin.Close()
	if err := c.killGroup(); err != nil {
		return err
	}
	_ = c.cmd.Wait()

	c.logger.Info("Terminated wrapper", zap.Int("pid", c.PID()))
	return nil
}

// killGroup sends SIGKILL to the wrapper's process group
func (c *Child) killGroup() error {
	pid := c.PID()
	err := unix.Kill(-pid, unix.SIGKILL)
	if err == nil || errors.Is(err, unix.ESRCH) {
		return nil
	}
	// Fall back to the wrapper alone
	if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill wrapper %d: %w", pid, err)
	}
	return nil
}
