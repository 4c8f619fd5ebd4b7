//go:build !windows

package runner

import (
	"context"

	"go.uber.org/zap"

	"github.com/amkillam/transparent/internal/command"
	"github.com/amkillam/transparent/internal/xvfb"
)

func newStarter(strategy Strategy, cfg Config, logger *zap.Logger) (starter, error) {
	if strategy != Delegated {
		return nil, ErrUnsupportedStrategy
	}
	return &delegatedStarter{
		wrapper: &xvfb.Wrapper{Path: cfg.Wrapper, Logger: logger},
	}, nil
}

// delegatedStarter runs each command under the headless display wrapper
type delegatedStarter struct {
	wrapper *xvfb.Wrapper
}

func (d *delegatedStarter) start(ctx context.Context, cmd *command.Command, detached bool) (Child, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	spawn := d.wrapper.Spawn
	if detached {
		spawn = d.wrapper.SpawnDetached
	}
	child, err := spawn(cmd)
	if err != nil {
		return nil, err
	}
	return child, nil
}
