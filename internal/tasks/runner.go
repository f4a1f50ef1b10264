package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderdesk-backend/pkg/errors"
	"github.com/angelmondragon/orderdesk-backend/pkg/logger"
	"github.com/angelmondragon/orderdesk-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/orderdesk-backend/pkg/outbox/registry"
)

const runnerConsumer = "task-runner"

type idempotencyGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type runRecorder interface {
	ObserveRun(kind, outcome string, d time.Duration)
}

// RunnerParams wires the worker side of the task queue.
type RunnerParams struct {
	Repo         *Repository
	Subscription *pubsub.Subscriber
	Idempotency  idempotencyGuard
	Handlers     map[enums.TaskKind]Handler
	Metrics      runRecorder
	Logger       *logger.Logger
}

// Runner consumes task_submitted messages and executes the referenced task.
type Runner struct {
	repo         *Repository
	subscription *pubsub.Subscriber
	idempotency  idempotencyGuard
	handlers     map[enums.TaskKind]Handler
	metrics      runRecorder
	decoders     *registry.DecoderRegistry
	logg         *logger.Logger
	now          func() time.Time
}

func NewRunner(params RunnerParams) (*Runner, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("tasks repository required")
	}
	if params.Subscription == nil {
		return nil, fmt.Errorf("tasks subscription required")
	}
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if len(params.Handlers) == 0 {
		return nil, fmt.Errorf("at least one task handler required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	decoders := registry.NewDecoderRegistry()
	decoders.Register(enums.EventTaskSubmitted, 1, registry.JSONDecoder[payloads.TaskSubmittedEvent]())
	return &Runner{
		repo:         params.Repo,
		subscription: params.Subscription,
		idempotency:  params.Idempotency,
		handlers:     params.Handlers,
		metrics:      params.Metrics,
		decoders:     decoders,
		logg:         params.Logger,
		now:          time.Now,
	}, nil
}

// Run receives task messages until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	return r.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := r.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (r *Runner) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := msg.Attributes["event_type"]
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	decoded, err := r.decoders.DecodeMessage(eventType, msg.Data)
	if errors.Is(err, registry.ErrNotRegistered) {
		r.logg.Info(logCtx, "skipping non-task event")
		return processResult{ack: true}
	}
	if err != nil {
		r.logg.Error(logCtx, "failed to decode event", err)
		return processResult{ack: true}
	}
	event := decoded.Payload.(*payloads.TaskSubmittedEvent)
	eventID := decoded.EventID
	logCtx = r.logg.WithTaskID(logCtx, event.TaskID.String())

	already, err := r.idempotency.CheckAndMarkProcessed(ctx, runnerConsumer, eventID)
	if err != nil {
		r.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		r.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := r.execute(ctx, logCtx, event.TaskID); err != nil {
		r.logg.Error(logCtx, "task bookkeeping failed", err)
		_ = r.idempotency.Delete(ctx, runnerConsumer, eventID)
		return processResult{nack: true}
	}
	return processResult{ack: true}
}

// execute returns an error only when task state could not be recorded; task
// failures end up on the row itself.
func (r *Runner) execute(ctx, logCtx context.Context, taskID uuid.UUID) error {
	task, err := r.repo.Find(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			r.logg.Warn(logCtx, "task row missing")
			return nil
		}
		return fmt.Errorf("load task: %w", err)
	}

	claimed, err := r.repo.Claim(ctx, task.ID, r.now())
	if err != nil {
		return fmt.Errorf("claim task: %w", err)
	}
	if !claimed {
		r.logg.Info(logCtx, "task already claimed")
		return nil
	}

	handler, ok := r.handlers[task.Kind]
	if !ok {
		_, err := r.repo.Fail(ctx, task.ID, "no handler for task kind "+string(task.Kind), nil, r.now())
		return err
	}

	started := time.Now()
	result, runErr := handler(ctx, task.UserID, task.Payload)
	elapsed := time.Since(started)

	if runErr != nil {
		r.observe(task.Kind, "failure", elapsed)
		msg, details := describeFailure(runErr)
		r.logg.Warn(r.logg.WithField(logCtx, "error", runErr.Error()), "task failed")
		if _, err := r.repo.Fail(ctx, task.ID, msg, details, r.now()); err != nil {
			return fmt.Errorf("record failure: %w", err)
		}
		return nil
	}

	raw, err := json.Marshal(result)
	if err != nil {
		_, failErr := r.repo.Fail(ctx, task.ID, "could not encode task result", nil, r.now())
		return failErr
	}
	if _, err := r.repo.Complete(ctx, task.ID, raw, r.now()); err != nil {
		return fmt.Errorf("record success: %w", err)
	}
	r.observe(task.Kind, "success", elapsed)
	r.logg.Info(logCtx, "task finished")
	return nil
}

func (r *Runner) observe(kind enums.TaskKind, outcome string, d time.Duration) {
	if r.metrics != nil {
		r.metrics.ObserveRun(string(kind), outcome, d)
	}
}

// describeFailure keeps internal error text out of the stored result.
func describeFailure(err error) (string, json.RawMessage) {
	typed := pkgerrors.As(err)
	if typed == nil {
		return pkgerrors.MetadataFor(pkgerrors.CodeInternal).PublicMessage, nil
	}
	msg := typed.Message()
	if typed.Code() == pkgerrors.CodeInternal || typed.Code() == pkgerrors.CodeDependency {
		msg = pkgerrors.MetadataFor(typed.Code()).PublicMessage
	}
	if typed.Details() == nil {
		return msg, nil
	}
	raw, mErr := json.Marshal(map[string]any{"errors": typed.Details()})
	if mErr != nil {
		return msg, nil
	}
	return msg, raw
}
