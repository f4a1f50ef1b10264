package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/orderdesk-backend/pkg/logger"
)

const (
	defaultStaleAfter    = 30 * time.Minute
	defaultTaskRetention = 7 * 24 * time.Hour
)

type taskReaper interface {
	FailStale(ctx context.Context, cutoff, now time.Time) (int64, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type TaskMaintenanceJobParams struct {
	Logger     *logger.Logger
	Tasks      taskReaper
	StaleAfter time.Duration
	Retention  time.Duration
}

// NewTaskMaintenanceJob fails tasks whose worker vanished and purges finished
// tasks past retention.
func NewTaskMaintenanceJob(params TaskMaintenanceJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Tasks == nil {
		return nil, fmt.Errorf("tasks repository required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultTaskRetention
	}
	return &taskMaintenanceJob{
		logg:       params.Logger,
		tasks:      params.Tasks,
		staleAfter: staleAfter,
		retention:  retention,
		now:        time.Now,
	}, nil
}

type taskMaintenanceJob struct {
	logg       *logger.Logger
	tasks      taskReaper
	staleAfter time.Duration
	retention  time.Duration
	now        func() time.Time
}

func (j *taskMaintenanceJob) Name() string { return "task-maintenance" }

func (j *taskMaintenanceJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs []error

	failed, err := j.tasks.FailStale(ctx, now.Add(-j.staleAfter), now)
	if err != nil {
		errs = append(errs, fmt.Errorf("fail stale tasks: %w", err))
	} else if failed > 0 {
		j.logg.Warn(j.logg.WithField(ctx, "tasks_failed", failed), "stale tasks marked as failed")
	}

	purged, err := j.tasks.DeleteFinishedBefore(ctx, now.Add(-j.retention))
	if err != nil {
		errs = append(errs, fmt.Errorf("purge finished tasks: %w", err))
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"tasks_failed": failed,
		"tasks_purged": purged,
	}), "task maintenance complete")
	return multierr.Combine(errs...)
}
