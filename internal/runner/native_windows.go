package runner

import (
	"context"
	"errors"
	"os"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/amkillam/transparent/internal/command"
	"github.com/amkillam/transparent/internal/desktop"
	"github.com/amkillam/transparent/internal/process"
)

func newStarter(strategy Strategy, cfg Config, logger *zap.Logger) (starter, error) {
	if strategy != Native {
		return nil, ErrUnsupportedStrategy
	}
	return &nativeStarter{logger: logger}, nil
}

// nativeStarter launches each command onto its own isolated desktop
type nativeStarter struct {
	logger *zap.Logger
}

func (n *nativeStarter) start(ctx context.Context, cmd *command.Command, _ bool) (Child, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d, err := desktop.Create(n.logger)
	if err != nil {
		return nil, err
	}

	opts := process.LaunchOptions{
		Dir:    cmd.Dir,
		Logger: n.logger,
	}
	if len(cmd.EnvOps()) > 0 {
		opts.Env = cmd.Environ(os.Environ())
	}

	s, err := process.Launch(d, cmd.Program, cmd.Args, opts)
	if err != nil {
		return nil, multierr.Append(err, d.Close())
	}

	return &nativeChild{desktop: d, session: s, logger: n.logger}, nil
}

// nativeChild owns a session and the desktop it runs on. The desktop is
// closed only after the session has released the process.
type nativeChild struct {
	desktop *desktop.Desktop
	session *process.Session
	logger  *zap.Logger

	mu       sync.Mutex
	waitDone chan struct{} // closed when a pending Wait has returned
}

func (c *nativeChild) PID() int {
	return c.session.PID()
}

func (c *nativeChild) Wait(ctx context.Context) (int, error) {
	c.mu.Lock()
	if c.waitDone != nil {
		c.mu.Unlock()
		return 0, process.ErrWaitInProgress
	}
	c.waitDone = make(chan struct{})
	c.mu.Unlock()
	defer close(c.waitDone)

	stop := make(chan struct{})
	watching := make(chan struct{})
	go func() {
		defer close(watching)
		select {
		case <-ctx.Done():
			err := c.session.Cancel()
			if err != nil && !errors.Is(err, process.ErrSessionFinished) {
				c.logger.Error("Failed to cancel wait", zap.Int("pid", c.PID()), zap.Error(err))
			}
		case <-stop:
		}
	}()

	code, err := c.session.Wait()
	close(stop)
	<-watching

	switch {
	case errors.Is(err, process.ErrSessionFinished):
		return 0, err
	case err != nil:
		// The process may still be alive; stop it before dropping its desktop
		if killErr := c.session.Kill(); killErr != nil && !errors.Is(killErr, process.ErrNotRunning) {
			return 0, multierr.Append(err, killErr)
		}
		return 0, multierr.Append(err, c.desktop.Close())
	}

	return code, c.desktop.Close()
}

// Kill terminates the process and releases everything. During a pending
// Wait it cancels that Wait and returns once Wait has released the child.
func (c *nativeChild) Kill() error {
	c.mu.Lock()
	waitDone := c.waitDone
	if waitDone == nil {
		// Holding the lock keeps a Wait from starting mid-kill
		defer c.mu.Unlock()
		return c.killLocked()
	}
	c.mu.Unlock()

	err := c.session.Cancel()
	if err != nil && !errors.Is(err, process.ErrSessionFinished) {
		return err
	}
	<-waitDone
	return err
}

func (c *nativeChild) killLocked() error {
	err := c.session.Kill()
	if err != nil && !errors.Is(err, process.ErrNotRunning) {
		return err
	}
	return multierr.Append(err, c.desktop.Close())
}
