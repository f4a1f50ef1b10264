package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/orderdesk-backend/pkg/db/models"
	"github.com/angelmondragon/orderdesk-backend/pkg/pagination"
)

// Repository handles shop and catalog persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to catalog operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository whose queries run on tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) ListCategories(ctx context.Context, p pagination.Params) ([]models.Category, int64, error) {
	p = p.Normalize()
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Category{}).Count(&count).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Category
	err := r.db.WithContext(ctx).
		Order("id ASC").
		Limit(p.Limit).
		Offset(p.Offset).
		Find(&rows).Error
	return rows, count, err
}

// ListActiveShops pages through shops that currently accept orders.
func (r *Repository) ListActiveShops(ctx context.Context, p pagination.Params) ([]models.Shop, int64, error) {
	p = p.Normalize()
	base := r.db.WithContext(ctx).Model(&models.Shop{}).Where("state = ?", true)
	var count int64
	if err := base.Count(&count).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Shop
	err := r.db.WithContext(ctx).
		Where("state = ?", true).
		Order("id ASC").
		Limit(p.Limit).
		Offset(p.Offset).
		Find(&rows).Error
	return rows, count, err
}

// SearchProductInfos returns listings of active shops with product, category,
// shop and parameters preloaded.
func (r *Repository) SearchProductInfos(ctx context.Context, f SearchFilter) ([]models.ProductInfo, error) {
	query := r.db.WithContext(ctx).
		Joins("JOIN shops ON shops.id = product_infos.shop_id").
		Joins("JOIN products ON products.id = product_infos.product_id").
		Where("shops.state = ?", true)
	if f.ShopID != nil {
		query = query.Where("product_infos.shop_id = ?", *f.ShopID)
	}
	if f.CategoryID != nil {
		query = query.Where("products.category_id = ?", *f.CategoryID)
	}
	var rows []models.ProductInfo
	err := withListingPreloads(query).
		Order("product_infos.id ASC").
		Find(&rows).Error
	return rows, err
}

// FindProductInfos loads listings by id with the same preloads as search.
func (r *Repository) FindProductInfos(ctx context.Context, ids []uint64) ([]models.ProductInfo, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.ProductInfo
	err := withListingPreloads(r.db.WithContext(ctx)).
		Where("product_infos.id IN ?", ids).
		Find(&rows).Error
	return rows, err
}

func withListingPreloads(q *gorm.DB) *gorm.DB {
	return q.
		Preload("Product.Category").
		Preload("Shop").
		Preload("Parameters.Parameter")
}

func (r *Repository) FindShopByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Shop, error) {
	var shop models.Shop
	if err := r.db.WithContext(ctx).Where("user_id = ?", ownerID).First(&shop).Error; err != nil {
		return nil, err
	}
	return &shop, nil
}

func (r *Repository) FindShopByName(ctx context.Context, name string) (*models.Shop, error) {
	var shop models.Shop
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&shop).Error; err != nil {
		return nil, err
	}
	return &shop, nil
}

func (r *Repository) CreateShop(ctx context.Context, shop *models.Shop) error {
	if shop == nil {
		return errors.New("shop is required")
	}
	return r.db.WithContext(ctx).Create(shop).Error
}

func (r *Repository) RenameShop(ctx context.Context, shopID uint64, name string) error {
	return r.db.WithContext(ctx).
		Model(&models.Shop{}).
		Where("id = ?", shopID).
		Update("name", name).Error
}

// SetShopStateByOwner flips the accepting-orders flag and reports matched rows.
func (r *Repository) SetShopStateByOwner(ctx context.Context, ownerID uuid.UUID, state bool) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Shop{}).
		Where("user_id = ?", ownerID).
		Update("state", state)
	return res.RowsAffected, res.Error
}

// UpsertCategory inserts the category or overwrites its name.
func (r *Repository) UpsertCategory(ctx context.Context, id uint64, name string) error {
	row := models.Category{ID: id, Name: name}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name"}),
		}).
		Create(&row).Error
}

// LinkShopCategory adds the association; existing links are left alone.
func (r *Repository) LinkShopCategory(ctx context.Context, shopID, categoryID uint64) error {
	row := models.ShopCategory{ShopID: shopID, CategoryID: categoryID}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
}

// ExistingCategoryIDs returns which of ids are already stored.
func (r *Repository) ExistingCategoryIDs(ctx context.Context, ids []uint64) (map[uint64]struct{}, error) {
	out := make(map[uint64]struct{}, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var found []uint64
	if err := r.db.WithContext(ctx).
		Model(&models.Category{}).
		Where("id IN ?", ids).
		Pluck("id", &found).Error; err != nil {
		return nil, err
	}
	for _, id := range found {
		out[id] = struct{}{}
	}
	return out, nil
}

// DeleteShopListings removes every listing of the shop together with the
// parameter values and basket lines that point at them.
func (r *Repository) DeleteShopListings(ctx context.Context, shopID uint64) (int64, error) {
	db := r.db.WithContext(ctx)
	listings := db.Model(&models.ProductInfo{}).Select("id").Where("shop_id = ?", shopID)
	if err := db.Where("product_info_id IN (?)", listings).Delete(&models.ProductParameter{}).Error; err != nil {
		return 0, err
	}
	if err := db.Where("product_info_id IN (?)", listings).Delete(&models.OrderItem{}).Error; err != nil {
		return 0, err
	}
	res := db.Where("shop_id = ?", shopID).Delete(&models.ProductInfo{})
	return res.RowsAffected, res.Error
}

// UpsertProduct returns the id of the (name, category) product, creating it if needed.
func (r *Repository) UpsertProduct(ctx context.Context, name string, categoryID uint64) (uint64, error) {
	row := models.Product{Name: name, CategoryID: categoryID}
	db := r.db.WithContext(ctx)
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Omit("Category").Create(&row)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 1 && row.ID != 0 {
		return row.ID, nil
	}
	var existing models.Product
	if err := db.Where("name = ? AND category_id = ?", name, categoryID).First(&existing).Error; err != nil {
		return 0, err
	}
	return existing.ID, nil
}

func (r *Repository) CreateProductInfo(ctx context.Context, info *models.ProductInfo) error {
	if info == nil {
		return errors.New("product info is required")
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(info).Error
}

// UpsertParameter returns the id of the named parameter, creating it if needed.
func (r *Repository) UpsertParameter(ctx context.Context, name string) (uint64, error) {
	row := models.Parameter{Name: name}
	db := r.db.WithContext(ctx)
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 1 && row.ID != 0 {
		return row.ID, nil
	}
	var existing models.Parameter
	if err := db.Where("name = ?", name).First(&existing).Error; err != nil {
		return 0, err
	}
	return existing.ID, nil
}

func (r *Repository) CreateProductParameters(ctx context.Context, rows []models.ProductParameter) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(&rows).Error
}

// ShopCategories lists the categories linked to the shop.
func (r *Repository) ShopCategories(ctx context.Context, shopID uint64) ([]models.Category, error) {
	var rows []models.Category
	err := r.db.WithContext(ctx).
		Joins("JOIN shop_categories ON shop_categories.category_id = categories.id").
		Where("shop_categories.shop_id = ?", shopID).
		Order("categories.id ASC").
		Find(&rows).Error
	return rows, err
}

// ShopListings lists a shop's listings with products and parameters preloaded.
func (r *Repository) ShopListings(ctx context.Context, shopID uint64) ([]models.ProductInfo, error) {
	var rows []models.ProductInfo
	err := withListingPreloads(r.db.WithContext(ctx)).
		Where("product_infos.shop_id = ?", shopID).
		Order("product_infos.id ASC").
		Find(&rows).Error
	return rows, err
}
