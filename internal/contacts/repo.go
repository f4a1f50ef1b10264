package contacts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderdesk-backend/pkg/db/models"
)

// Repository persists buyer contacts. Every query is scoped by owner.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) List(ctx context.Context, userID uuid.UUID) ([]models.Contact, error) {
	var rows []models.Contact
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) Create(ctx context.Context, contact *models.Contact) error {
	return r.db.WithContext(ctx).Create(contact).Error
}

// Update applies fields to the contact when userID owns it and reports
// whether a row matched.
func (r *Repository) Update(ctx context.Context, userID uuid.UUID, id uint64, fields map[string]any) (bool, error) {
	if len(fields) == 0 {
		var n int64
		err := r.db.WithContext(ctx).Model(&models.Contact{}).
			Where("id = ? AND user_id = ?", id, userID).
			Count(&n).Error
		return n > 0, err
	}
	res := r.db.WithContext(ctx).Model(&models.Contact{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(fields)
	return res.RowsAffected > 0, res.Error
}

func (r *Repository) Delete(ctx context.Context, userID uuid.UUID, ids []uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", userID, ids).
		Delete(&models.Contact{})
	return res.RowsAffected, res.Error
}
