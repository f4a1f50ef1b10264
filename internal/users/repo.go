package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderdesk-backend/pkg/db/models"
)

// Repository persists users and their confirmation and reset tokens.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx, or r itself when tx is nil.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func first[T any](q *gorm.DB, conds ...any) (*T, error) {
	var out T
	if err := q.First(&out, conds...).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Repository) user(ctx context.Context, id uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id)
}

func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByEmail expects an already normalized address.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return first[models.User](r.db.WithContext(ctx), "email = ?", email)
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return first[models.User](r.db.WithContext(ctx), "id = ?", id)
}

// UpdateLastLogin skips hooks so updated_at keeps tracking profile edits.
func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.user(ctx, id).UpdateColumn("last_login_at", at).Error
}

func (r *Repository) Activate(ctx context.Context, id uuid.UUID) error {
	return r.user(ctx, id).Update("is_active", true).Error
}

func (r *Repository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.user(ctx, id).Updates(fields).Error
}

func (r *Repository) CreateConfirmToken(ctx context.Context, token *models.ConfirmEmailToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

// FindConfirmToken matches key and user together; a key alone never confirms.
func (r *Repository) FindConfirmToken(ctx context.Context, userID uuid.UUID, key string) (*models.ConfirmEmailToken, error) {
	return first[models.ConfirmEmailToken](r.db.WithContext(ctx), "user_id = ? AND key = ?", userID, key)
}

func (r *Repository) DeleteConfirmToken(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&models.ConfirmEmailToken{}, id).Error
}

func (r *Repository) CreateResetToken(ctx context.Context, token *models.PasswordResetToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

// FindLiveResetToken returns the unexpired reset token with key for userID.
func (r *Repository) FindLiveResetToken(ctx context.Context, userID uuid.UUID, key string, now time.Time) (*models.PasswordResetToken, error) {
	return first[models.PasswordResetToken](r.db.WithContext(ctx),
		"user_id = ? AND key = ? AND expires_at > ?", userID, key, now)
}

func (r *Repository) DeleteResetTokens(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.PasswordResetToken{}, "user_id = ?", userID).Error
}
