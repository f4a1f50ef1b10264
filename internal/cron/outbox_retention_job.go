package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/orderdesk-backend/pkg/enums"
	"github.com/angelmondragon/orderdesk-backend/pkg/logger"
)

const (
	outboxRetention = 30 * 24 * time.Hour
	dlqRetention    = 90 * 24 * time.Hour
)

type OutboxRetentionJobParams struct {
	Logger       *logger.Logger
	Outbox       publishedEventPurger
	DLQ          deadLetterStore
	Retention    time.Duration
	DLQRetention time.Duration
}

type publishedEventPurger interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type deadLetterStore interface {
	DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountByReason(ctx context.Context) (map[enums.OutboxDLQErrorReason]int64, error)
}

// NewOutboxRetentionJob purges delivered outbox rows and old dead letters.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = outboxRetention
	}
	dlq := params.DLQRetention
	if dlq <= 0 {
		dlq = dlqRetention
	}
	return &outboxRetentionJob{
		logg:         params.Logger,
		outbox:       params.Outbox,
		dlq:          params.DLQ,
		retention:    retention,
		dlqRetention: dlq,
		now:          time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	outbox       publishedEventPurger
	dlq          deadLetterStore
	retention    time.Duration
	dlqRetention time.Duration
	now          func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs error

	cutoff := now.Add(-j.retention)
	published, err := j.outbox.DeletePublishedBefore(ctx, cutoff)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("purge published events: %w", err))
	}

	var dead int64
	if j.dlq != nil {
		dead, err = j.dlq.DeleteFailedBefore(ctx, now.Add(-j.dlqRetention))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("purge dead letters: %w", err))
		}
		errs = multierr.Append(errs, j.reportBacklog(ctx))
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":           cutoff,
		"published_purged": published,
		"dlq_purged":       dead,
	})
	j.logg.Info(logCtx, "outbox retention cleanup complete")
	return errs
}

// reportBacklog warns while dead letters wait for an operator.
func (j *outboxRetentionJob) reportBacklog(ctx context.Context) error {
	counts, err := j.dlq.CountByReason(ctx)
	if err != nil {
		return fmt.Errorf("count dead letters: %w", err)
	}
	fields := map[string]any{}
	var total int64
	for reason, n := range counts {
		fields["dlq_"+string(reason)] = n
		total += n
	}
	if total > 0 {
		j.logg.Warn(j.logg.WithFields(ctx, fields), "dead letters awaiting replay")
	}
	return nil
}
