package tasks

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/orderdesk-backend/pkg/db/models"
	"github.com/angelmondragon/orderdesk-backend/pkg/enums"
	"github.com/angelmondragon/orderdesk-backend/pkg/outbox"
	"github.com/angelmondragon/orderdesk-backend/pkg/outbox/payloads"
)

// Queue hands a persisted task to whatever runs it. Enqueue joins the
// caller's transaction so the task row and its message commit together.
type Queue interface {
	Enqueue(ctx context.Context, tx *gorm.DB, task *models.Task) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OutboxQueue enqueues through the transactional outbox; the publisher then
// delivers task_submitted to the tasks topic.
type OutboxQueue struct {
	emitter outboxEmitter
}

func NewOutboxQueue(emitter outboxEmitter) (*OutboxQueue, error) {
	if emitter == nil {
		return nil, errors.New("outbox emitter required")
	}
	return &OutboxQueue{emitter: emitter}, nil
}

func (q *OutboxQueue) Enqueue(ctx context.Context, tx *gorm.DB, task *models.Task) error {
	if task == nil {
		return errors.New("task is required")
	}
	return q.emitter.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventTaskSubmitted,
		AggregateType: enums.AggregateTask,
		AggregateID:   task.ID.String(),
		Version:       1,
		Actor:         &outbox.ActorRef{UserID: task.UserID},
		Data: payloads.TaskSubmittedEvent{
			TaskID: task.ID,
			UserID: task.UserID,
			Kind:   string(task.Kind),
		},
	})
}
