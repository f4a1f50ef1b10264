package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderdesk-backend/pkg/logger"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type funcRunner func(ctx context.Context) error

func (f funcRunner) Run(ctx context.Context) error { return f(ctx) }

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "worker-test", Output: &bytes.Buffer{}})
}

func TestNewServiceValidates(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: testLogger()})
	require.Error(t, err)

	_, err = NewService(ServiceParams{
		Logger: testLogger(),
		Loops:  []loop{{name: "task-runner"}},
	})
	require.EqualError(t, err, "task-runner is required")
}

func TestRunFailsWhenDependencyDown(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Logger:       testLogger(),
		Dependencies: []dependency{{name: "redis", pinger: stubPinger{err: errors.New("refused")}}},
		Loops:        []loop{{name: "task-runner", runner: funcRunner(blockUntilDone)}},
	})
	require.NoError(t, err)

	err = svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}

func TestRunStopsAllLoopsOnFailure(t *testing.T) {
	stopped := make(chan struct{})
	svc, err := NewService(ServiceParams{
		Logger:       testLogger(),
		Dependencies: []dependency{{name: "database", pinger: stubPinger{}}},
		Loops: []loop{
			{name: "task-runner", runner: funcRunner(func(context.Context) error {
				return errors.New("subscription gone")
			})},
			{name: "notification-consumer", runner: funcRunner(func(ctx context.Context) error {
				<-ctx.Done()
				close(stopped)
				return ctx.Err()
			})},
		},
	})
	require.NoError(t, err)

	err = svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task-runner: subscription gone")

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("notification consumer was not canceled")
	}
}

func TestRunReturnsOnShutdown(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Logger: testLogger(),
		Loops:  []loop{{name: "task-runner", runner: funcRunner(blockUntilDone)}},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
