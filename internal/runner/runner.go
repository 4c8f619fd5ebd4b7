// Package runner launches commands transparently: the target runs with no
// visible window while the caller keeps control of its lifetime.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"go.uber.org/zap"

	"github.com/amkillam/transparent/internal/command"
)

// ErrUnsupportedStrategy is returned when a strategy is not available on this platform
var ErrUnsupportedStrategy = errors.New("isolation strategy not supported on this platform")

// Strategy selects how isolation is achieved
type Strategy int

const (
	// Auto picks the strategy native to the running platform
	Auto Strategy = iota
	// Native creates an isolated desktop and launches the target onto it
	Native
	// Delegated runs the target inside an external headless display wrapper
	Delegated
)

func (s Strategy) String() string {
	switch s {
	case Auto:
		return "auto"
	case Native:
		return "native"
	case Delegated:
		return "delegated"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// DetectStrategy returns the strategy for the running platform
func DetectStrategy() Strategy {
	if runtime.GOOS == "windows" {
		return Native
	}
	return Delegated
}

// Child is a transparently launched process. Wait and Kill both release
// every resource acquired for the child; after either returns the child
// can no longer be used.
type Child interface {
	PID() int
	Wait(ctx context.Context) (int, error)
	Kill() error
}

// starter is implemented by each platform strategy. A detached start may
// skip the process-wide interrupt handler where the strategy allows it.
type starter interface {
	start(ctx context.Context, cmd *command.Command, detached bool) (Child, error)
}

// Config configures a Runner
type Config struct {
	Strategy Strategy
	// Wrapper overrides the headless display wrapper used by Delegated
	Wrapper string
	Logger  *zap.Logger
}

// Runner launches commands with the configured strategy.
// Only one interruptible child may be in flight at a time.
type Runner struct {
	strategy Strategy
	starter  starter
	logger   *zap.Logger
}

// New creates a Runner, resolving Auto to the platform strategy
func New(cfg Config) (*Runner, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	strategy := cfg.Strategy
	if strategy == Auto {
		strategy = DetectStrategy()
	}

	s, err := newStarter(strategy, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Runner{
		strategy: strategy,
		starter:  s,
		logger:   logger,
	}, nil
}

// Strategy returns the strategy in use
func (r *Runner) Strategy() Strategy {
	return r.strategy
}

// Start launches cmd and returns a handle to the running child
func (r *Runner) Start(ctx context.Context, cmd *command.Command) (Child, error) {
	return r.start(ctx, cmd, false)
}

func (r *Runner) start(ctx context.Context, cmd *command.Command, detached bool) (Child, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	r.logger.Debug("Starting transparent process",
		zap.Stringer("strategy", r.strategy),
		zap.Stringer("command", cmd),
		zap.Bool("detached", detached))
	return r.starter.start(ctx, cmd, detached)
}

// SpawnNonBlocking launches cmd and returns its process identifier as soon
// as the process exists. The child is reaped in the background so its
// resources are released when it exits. Under the delegated strategy
// detached children do not react to Ctrl-C and several may run at once.
func (r *Runner) SpawnNonBlocking(ctx context.Context, cmd *command.Command) (int, error) {
	child, err := r.start(ctx, cmd, true)
	if err != nil {
		return 0, err
	}

	pid := child.PID()
	go func() {
		code, err := child.Wait(context.WithoutCancel(ctx))
		if err != nil {
			r.logger.Error("Failed to reap detached process", zap.Int("pid", pid), zap.Error(err))
			return
		}
		r.logger.Debug("Detached process finished", zap.Int("pid", pid), zap.Int("exit_code", code))
	}()

	return pid, nil
}

// SpawnAndWait launches cmd, waits for it to finish and returns its exit
// code. Cancelling ctx or an interrupt terminates the child and yields 0.
func (r *Runner) SpawnAndWait(ctx context.Context, cmd *command.Command) (int, error) {
	child, err := r.Start(ctx, cmd)
	if err != nil {
		return 0, err
	}
	return child.Wait(ctx)
}
