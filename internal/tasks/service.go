package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderdesk-backend/pkg/auth"
	"github.com/angelmondragon/orderdesk-backend/pkg/db/models"
	"github.com/angelmondragon/orderdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderdesk-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ImportPayload is stored on import tasks.
type ImportPayload struct {
	URL string `json:"url"`
}

// TaskStatus is what pollers see.
type TaskStatus struct {
	ID         uuid.UUID       `json:"task_id"`
	Kind       enums.TaskKind  `json:"kind"`
	State      enums.TaskState `json:"state"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      *string         `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// Service submits background work and reports on it.
type Service interface {
	SubmitImport(ctx context.Context, caller auth.Caller, url string) (uuid.UUID, error)
	SubmitExport(ctx context.Context, caller auth.Caller) (uuid.UUID, error)
	GetStatus(ctx context.Context, caller auth.Caller, rawID string) (*TaskStatus, error)
}

type service struct {
	repo     *Repository
	tx       txRunner
	queue    Queue
	validate *validator.Validate
}

func NewService(repo *Repository, tx txRunner, queue Queue) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("tasks repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if queue == nil {
		return nil, fmt.Errorf("task queue required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		queue:    queue,
		validate: validator.New(),
	}, nil
}

func (s *service) SubmitImport(ctx context.Context, caller auth.Caller, url string) (uuid.UUID, error) {
	if err := caller.RequireShop(); err != nil {
		return uuid.Nil, err
	}
	url = strings.TrimSpace(url)
	if err := s.validate.Var(url, "required,http_url"); err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid feed url").
			WithDetails(map[string]string{"url": "must be a valid http or https URL"})
	}
	payload, err := json.Marshal(ImportPayload{URL: url})
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode task payload")
	}
	return s.submit(ctx, caller, enums.TaskKindImport, payload)
}

func (s *service) SubmitExport(ctx context.Context, caller auth.Caller) (uuid.UUID, error) {
	if err := caller.RequireShop(); err != nil {
		return uuid.Nil, err
	}
	return s.submit(ctx, caller, enums.TaskKindExport, json.RawMessage(`{}`))
}

func (s *service) submit(ctx context.Context, caller auth.Caller, kind enums.TaskKind, payload json.RawMessage) (uuid.UUID, error) {
	task := &models.Task{
		UserID:  caller.UserID,
		Kind:    kind,
		State:   enums.TaskStatePending,
		Payload: payload,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, task); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create task")
		}
		if err := s.queue.Enqueue(ctx, tx, task); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue task")
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return task.ID, nil
}

func (s *service) GetStatus(ctx context.Context, caller auth.Caller, rawID string) (*TaskStatus, error) {
	if err := caller.RequireAuthenticated(); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil || id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "task not found")
	}
	task, err := s.repo.FindForUser(ctx, id, caller.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "task not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load task")
	}
	return &TaskStatus{
		ID:         task.ID,
		Kind:       task.Kind,
		State:      task.State,
		Result:     task.Result,
		Error:      task.Error,
		CreatedAt:  task.CreatedAt,
		FinishedAt: task.FinishedAt,
	}, nil
}
