package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/orderdesk-backend/pkg/db/models"
	"github.com/angelmondragon/orderdesk-backend/pkg/enums"
)

// Repository defines persistence operations for baskets and orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindBasket(ctx context.Context, userID uuid.UUID) (*models.Order, error)
	EnsureBasket(ctx context.Context, userID uuid.UUID) (*models.Order, error)
	LoadOrder(ctx context.Context, userID uuid.UUID, id uint64) (*models.Order, error)
	ExistingListingIDs(ctx context.Context, ids []uint64) (map[uint64]struct{}, error)
	InsertItem(ctx context.Context, orderID, productInfoID uint64, quantity int) (bool, error)
	UpdateItemQuantity(ctx context.Context, userID uuid.UUID, itemID uint64, quantity int) (int64, error)
	DeleteItems(ctx context.Context, userID uuid.UUID, itemIDs []uint64) (int64, error)
	ContactOwnedBy(ctx context.Context, contactID uint64, userID uuid.UUID) (bool, error)
	PlaceBasket(ctx context.Context, orderID uint64, userID uuid.UUID, contactID uint64) (int64, error)
	FindOrder(ctx context.Context, id uint64) (*models.Order, error)
	UpdateState(ctx context.Context, orderID uint64, from, to enums.OrderState) (int64, error)
	OrderHasPartnerItems(ctx context.Context, orderID uint64, ownerID uuid.UUID) (bool, error)
	ListBuyerOrders(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	ListPartnerOrders(ctx context.Context, ownerID uuid.UUID) ([]models.Order, error)
	UserEmail(ctx context.Context, userID uuid.UUID) (string, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func withOrderPreloads(q *gorm.DB) *gorm.DB {
	return q.
		Preload("Contact").
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("order_items.id ASC") }).
		Preload("Items.ProductInfo.Product.Category").
		Preload("Items.ProductInfo.Shop").
		Preload("Items.ProductInfo.Parameters.Parameter")
}

func (r *repository) FindBasket(ctx context.Context, userID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := withOrderPreloads(r.db.WithContext(ctx)).
		Where("user_id = ? AND state = ?", userID, enums.OrderStateBasket).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// EnsureBasket inserts a basket unless the partial unique index already holds
// one for the user, then reads back whichever row exists.
func (r *repository) EnsureBasket(ctx context.Context, userID uuid.UUID) (*models.Order, error) {
	db := r.db.WithContext(ctx)
	row := models.Order{UserID: userID, State: enums.OrderStateBasket}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Omit(clause.Associations).
		Create(&row).Error; err != nil {
		return nil, err
	}
	var basket models.Order
	if err := db.Where("user_id = ? AND state = ?", userID, enums.OrderStateBasket).First(&basket).Error; err != nil {
		return nil, err
	}
	return &basket, nil
}

// LoadOrder reads one of the user's orders with its full item graph.
func (r *repository) LoadOrder(ctx context.Context, userID uuid.UUID, id uint64) (*models.Order, error) {
	var order models.Order
	err := withOrderPreloads(r.db.WithContext(ctx)).
		Where("id = ? AND user_id = ?", id, userID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ExistingListingIDs(ctx context.Context, ids []uint64) (map[uint64]struct{}, error) {
	out := make(map[uint64]struct{}, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var found []uint64
	if err := r.db.WithContext(ctx).
		Model(&models.ProductInfo{}).
		Where("id IN ?", ids).
		Pluck("id", &found).Error; err != nil {
		return nil, err
	}
	for _, id := range found {
		out[id] = struct{}{}
	}
	return out, nil
}

// InsertItem adds a basket line and reports false when the listing is
// already in the basket.
func (r *repository) InsertItem(ctx context.Context, orderID, productInfoID uint64, quantity int) (bool, error) {
	row := models.OrderItem{OrderID: orderID, ProductInfoID: productInfoID, Quantity: quantity}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Omit(clause.Associations).
		Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func basketIDs(db *gorm.DB, userID uuid.UUID) *gorm.DB {
	return db.Model(&models.Order{}).
		Select("id").
		Where("user_id = ? AND state = ?", userID, enums.OrderStateBasket)
}

// UpdateItemQuantity touches the line only when it sits in the user's basket.
func (r *repository) UpdateItemQuantity(ctx context.Context, userID uuid.UUID, itemID uint64, quantity int) (int64, error) {
	db := r.db.WithContext(ctx)
	res := db.Model(&models.OrderItem{}).
		Where("id = ? AND order_id IN (?)", itemID, basketIDs(db, userID)).
		Update("quantity", quantity)
	return res.RowsAffected, res.Error
}

func (r *repository) DeleteItems(ctx context.Context, userID uuid.UUID, itemIDs []uint64) (int64, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	db := r.db.WithContext(ctx)
	res := db.Where("id IN ? AND order_id IN (?)", itemIDs, basketIDs(db, userID)).
		Delete(&models.OrderItem{})
	return res.RowsAffected, res.Error
}

func (r *repository) ContactOwnedBy(ctx context.Context, contactID uint64, userID uuid.UUID) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.Contact{}).
		Where("id = ? AND user_id = ?", contactID, userID).
		Count(&n).Error
	return n > 0, err
}

// PlaceBasket moves the user's basket to "new" in one conditional statement.
func (r *repository) PlaceBasket(ctx context.Context, orderID uint64, userID uuid.UUID, contactID uint64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND user_id = ? AND state = ?", orderID, userID, enums.OrderStateBasket).
		Updates(map[string]any{
			"state":      enums.OrderStateNew,
			"contact_id": contactID,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) FindOrder(ctx context.Context, id uint64) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateState changes the state only while it still equals from.
func (r *repository) UpdateState(ctx context.Context, orderID uint64, from, to enums.OrderState) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND state = ?", orderID, from).
		Update("state", to)
	return res.RowsAffected, res.Error
}

func partnerOrderIDs(db *gorm.DB, ownerID uuid.UUID) *gorm.DB {
	return db.Model(&models.OrderItem{}).
		Select("order_items.order_id").
		Joins("JOIN product_infos ON product_infos.id = order_items.product_info_id").
		Joins("JOIN shops ON shops.id = product_infos.shop_id").
		Where("shops.user_id = ?", ownerID)
}

func (r *repository) OrderHasPartnerItems(ctx context.Context, orderID uint64, ownerID uuid.UUID) (bool, error) {
	var n int64
	err := partnerOrderIDs(r.db.WithContext(ctx), ownerID).
		Where("order_items.order_id = ?", orderID).
		Count(&n).Error
	return n > 0, err
}

func (r *repository) ListBuyerOrders(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	var rows []models.Order
	err := withOrderPreloads(r.db.WithContext(ctx)).
		Where("user_id = ? AND state <> ?", userID, enums.OrderStateBasket).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	return rows, err
}

// ListPartnerOrders returns placed orders holding at least one listing of a
// shop owned by ownerID. The IN subquery keeps rows distinct.
func (r *repository) ListPartnerOrders(ctx context.Context, ownerID uuid.UUID) ([]models.Order, error) {
	db := r.db.WithContext(ctx)
	var rows []models.Order
	err := withOrderPreloads(db).
		Where("id IN (?)", partnerOrderIDs(db, ownerID)).
		Where("state <> ?", enums.OrderStateBasket).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) UserEmail(ctx context.Context, userID uuid.UUID) (string, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Select("email").Where("id = ?", userID).First(&user).Error; err != nil {
		return "", err
	}
	return user.Email, nil
}
