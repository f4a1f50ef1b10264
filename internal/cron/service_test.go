package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

type fakeLock struct {
	acquired   bool
	releases   int
	refreshes  int
	refreshErr error
}

func (f *fakeLock) Refresh(context.Context) error {
	f.refreshes++
	return f.refreshErr
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.releases++
	return nil
}

type testJob struct {
	name     string
	err      error
	runs     int
	deadline bool
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	_, t.deadline = ctx.Deadline()
	return t.err
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	ok := &testJob{name: "success"}
	failing := &testJob{name: "fail", err: errors.New("boom")}
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:   quietLogger(),
		Registry: NewRegistry(failing, ok),
		Lock:     lock,
	})
	require.NoError(t, err)

	err = service.RunOnce(context.Background())
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 1)
	require.Contains(t, err.Error(), "fail: boom")
	require.Equal(t, 1, ok.runs)
	require.Equal(t, 1, failing.runs)
	require.True(t, ok.deadline)
	require.Equal(t, 1, lock.releases)
	require.Equal(t, 1, lock.refreshes)
}

func TestServiceRunCycleStopsWhenLockLost(t *testing.T) {
	first := &testJob{name: "task-maintenance"}
	second := &testJob{name: "outbox-retention"}
	lock := &fakeLock{refreshErr: ErrLockLost}
	service, err := NewService(ServiceParams{
		Logger:   quietLogger(),
		Registry: NewRegistry(first, second),
		Lock:     lock,
	})
	require.NoError(t, err)

	err = service.RunOnce(context.Background())
	require.ErrorIs(t, err, ErrLockLost)
	require.Equal(t, 1, first.runs)
	require.Zero(t, second.runs)
	require.Equal(t, 1, lock.releases)
}

func TestServiceRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "job"}
	service, err := NewService(ServiceParams{
		Logger:     quietLogger(),
		Registry:   NewRegistry(job),
		Lock:       &fakeLock{acquired: true},
		Interval:   time.Minute,
		JobTimeout: time.Second,
	})
	require.NoError(t, err)

	require.NoError(t, service.RunOnce(context.Background()))
	require.Zero(t, job.runs)
}

func TestNewServiceRequiresLockAndLogger(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &fakeLock{}})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Logger: quietLogger()})
	require.Error(t, err)
}

func TestServiceRunCycleSkipsJobsNotDue(t *testing.T) {
	frequent := &testJob{name: "task-maintenance"}
	daily := &testJob{name: "outbox-retention"}
	registry := NewRegistry(frequent)
	require.NoError(t, registry.Register(daily, 24*time.Hour))

	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:   quietLogger(),
		Registry: registry,
		Lock:     lock,
		Interval: 5 * time.Minute,
	})
	require.NoError(t, err)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	require.NoError(t, service.RunOnce(context.Background()))
	now = now.Add(5 * time.Minute)
	require.NoError(t, service.RunOnce(context.Background()))

	require.Equal(t, 2, frequent.runs)
	require.Equal(t, 1, daily.runs)
	require.Equal(t, 2, lock.releases)
}
