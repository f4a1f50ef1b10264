package models

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/orderdesk-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Task tracks one asynchronous import or export request.
type Task struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserID       uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index"`
	Kind         enums.TaskKind  `gorm:"column:kind;type:task_kind;not null"`
	State        enums.TaskState `gorm:"column:state;type:task_state;not null;index"`
	Payload      json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	Result       json.RawMessage `gorm:"column:result;type:jsonb"`
	Error        *string         `gorm:"column:error"`
	AttemptCount int             `gorm:"column:attempt_count;not null"`
	StartedAt    *time.Time      `gorm:"column:started_at"`
	FinishedAt   *time.Time      `gorm:"column:finished_at"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *Task) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
