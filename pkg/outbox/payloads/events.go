package payloads

import (
	"time"

	"github.com/google/uuid"
)

// OrderPlacedEvent is emitted when a buyer turns a basket into an order.
type OrderPlacedEvent struct {
	OrderID   uint64    `json:"order_id"`
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	ContactID uint64    `json:"contact_id"`
	ItemCount int       `json:"item_count"`
	TotalSum  string    `json:"total_sum"`
}

// OrderStateChangedEvent is emitted when a partner moves an order forward.
type OrderStateChangedEvent struct {
	OrderID       uint64    `json:"order_id"`
	UserID        uuid.UUID `json:"user_id"`
	Email         string    `json:"email"`
	PreviousState string    `json:"previous_state"`
	State         string    `json:"state"`
	StateLabel    string    `json:"state_label"`
}

// UserRegisteredEvent carries the confirmation key for a new account.
type UserRegisteredEvent struct {
	UserID     uuid.UUID `json:"user_id"`
	Email      string    `json:"email"`
	ConfirmKey string    `json:"confirm_key"`
}

// PasswordResetRequestedEvent carries a one-time reset key.
type PasswordResetRequestedEvent struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	ResetKey  string    `json:"reset_key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TaskSubmittedEvent tells the worker a background task is waiting.
type TaskSubmittedEvent struct {
	TaskID uuid.UUID `json:"task_id"`
	UserID uuid.UUID `json:"user_id"`
	Kind   string    `json:"kind"`
}
