package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderdesk-backend/pkg/db/models"
	"github.com/angelmondragon/orderdesk-backend/pkg/enums"
)

const maxErrorLength = 1024

// Repository persists task rows. State changes are conditional on the
// current state so concurrent workers cannot run a task twice.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, task *models.Task) error {
	if task == nil {
		return errors.New("task is required")
	}
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *Repository) Find(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// FindForUser hides tasks submitted by someone else.
func (r *Repository) FindForUser(ctx context.Context, id, userID uuid.UUID) (*models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// Claim moves a pending task to STARTED and reports whether this caller won.
func (r *Repository) Claim(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ? AND state = ?", id, enums.TaskStatePending).
		Updates(map[string]any{
			"state":         enums.TaskStateStarted,
			"started_at":    now,
			"attempt_count": gorm.Expr("attempt_count + 1"),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *Repository) Complete(ctx context.Context, id uuid.UUID, result json.RawMessage, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ? AND state = ?", id, enums.TaskStateStarted).
		Updates(map[string]any{
			"state":       enums.TaskStateSuccess,
			"result":      result,
			"finished_at": now,
		})
	return res.RowsAffected == 1, res.Error
}

// Fail records a failure unless the task already reached a terminal state.
func (r *Repository) Fail(ctx context.Context, id uuid.UUID, message string, result json.RawMessage, now time.Time) (bool, error) {
	updates := map[string]any{
		"state":       enums.TaskStateFailure,
		"error":       clipError(message),
		"finished_at": now,
	}
	if len(result) > 0 {
		updates["result"] = result
	}
	res := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ? AND state IN ?", id, []enums.TaskState{enums.TaskStatePending, enums.TaskStateStarted}).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

// FailStale marks unfinished tasks created before cutoff as timed out.
func (r *Repository) FailStale(ctx context.Context, cutoff, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("state IN ? AND created_at < ?", []enums.TaskState{enums.TaskStatePending, enums.TaskStateStarted}, cutoff).
		Updates(map[string]any{
			"state":       enums.TaskStateFailure,
			"error":       "task timed out",
			"finished_at": now,
		})
	return res.RowsAffected, res.Error
}

// DeleteFinishedBefore drops terminal tasks that finished before cutoff.
func (r *Repository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("state IN ? AND finished_at < ?", []enums.TaskState{enums.TaskStateSuccess, enums.TaskStateFailure}, cutoff).
		Delete(&models.Task{})
	return res.RowsAffected, res.Error
}

// clipError cuts message to maxErrorLength bytes on a rune boundary.
func clipError(message string) string {
	if len(message) <= maxErrorLength {
		return message
	}
	cut := maxErrorLength
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}
