package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/orderdesk-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type runner interface {
	Run(ctx context.Context) error
}

type dependency struct {
	name   string
	pinger pinger
}

type loop struct {
	name   string
	runner runner
}

type ServiceParams struct {
	Logger       *logger.Logger
	Dependencies []dependency
	Loops        []loop
}

// Service runs the task runner and the notification consumer side by side.
type Service struct {
	logg  *logger.Logger
	deps  []dependency
	loops []loop
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(params.Loops) == 0 {
		return nil, errors.New("at least one consumer loop is required")
	}
	for _, d := range params.Dependencies {
		if d.pinger == nil {
			return nil, fmt.Errorf("%s client is required", d.name)
		}
	}
	for _, l := range params.Loops {
		if l.runner == nil {
			return nil, fmt.Errorf("%s is required", l.name)
		}
	}
	return &Service{
		logg:  params.Logger,
		deps:  params.Dependencies,
		loops: params.Loops,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, d := range s.deps {
		if err := pingDependency(ctx, s.logg, d.name, d.pinger.Ping); err != nil {
			return err
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run blocks until ctx is canceled or one loop fails. A failing loop
// cancels the others.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, l := range s.loops {
		l := l
		group.Go(func() error {
			loopCtx := s.logg.WithField(groupCtx, "loop", l.name)
			s.logg.Info(loopCtx, "consumer loop started")
			err := l.runner.Run(groupCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(loopCtx, "consumer stopped unexpectedly", err)
				return fmt.Errorf("%s: %w", l.name, err)
			}
			if ctx.Err() == nil {
				return fmt.Errorf("%s exited before shutdown", l.name)
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}
	s.logg.Info(ctx, "worker context canceled")
	return ctx.Err()
}
