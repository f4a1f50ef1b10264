package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Shop is the partner storefront. State toggles whether it accepts orders.
type Shop struct {
	ID        uint64     `gorm:"primaryKey;autoIncrement"`
	Name      string     `gorm:"column:name;not null;uniqueIndex"`
	URL       *string    `gorm:"column:url"`
	UserID    *uuid.UUID `gorm:"column:user_id;type:uuid;uniqueIndex"`
	State     bool       `gorm:"column:state;not null"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// Category ids come from partner feeds and are shared across shops.
type Category struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement:false"`
	Name string `gorm:"column:name;not null"`
}

type ShopCategory struct {
	ShopID     uint64 `gorm:"column:shop_id;primaryKey;autoIncrement:false"`
	CategoryID uint64 `gorm:"column:category_id;primaryKey;autoIncrement:false"`
}

type Product struct {
	ID         uint64   `gorm:"primaryKey;autoIncrement"`
	Name       string   `gorm:"column:name;not null;uniqueIndex:ux_products_name_category"`
	CategoryID uint64   `gorm:"column:category_id;not null;uniqueIndex:ux_products_name_category"`
	Category   Category `gorm:"foreignKey:CategoryID;constraint:OnDelete:CASCADE"`
}

// ProductInfo is a product listed by one shop. Rows are replaced wholesale on
// every import for that shop.
type ProductInfo struct {
	ID         uint64          `gorm:"primaryKey;autoIncrement"`
	ProductID  uint64          `gorm:"column:product_id;not null;uniqueIndex:ux_product_infos_listing"`
	ShopID     uint64          `gorm:"column:shop_id;not null;uniqueIndex:ux_product_infos_listing;index"`
	ExternalID uint64          `gorm:"column:external_id;not null;uniqueIndex:ux_product_infos_listing"`
	Model      string          `gorm:"column:model;not null"`
	Quantity   int             `gorm:"column:quantity;not null"`
	Price      decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	PriceRRC   decimal.Decimal `gorm:"column:price_rrc;type:numeric(12,2);not null"`

	Product    Product            `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	Shop       Shop               `gorm:"foreignKey:ShopID;constraint:OnDelete:CASCADE"`
	Parameters []ProductParameter `gorm:"foreignKey:ProductInfoID;constraint:OnDelete:CASCADE"`
}

type Parameter struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"column:name;not null;uniqueIndex"`
}

type ProductParameter struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	ProductInfoID uint64    `gorm:"column:product_info_id;not null;uniqueIndex:ux_product_parameters_pair"`
	ParameterID   uint64    `gorm:"column:parameter_id;not null;uniqueIndex:ux_product_parameters_pair"`
	Value         string    `gorm:"column:value;not null"`
	Parameter     Parameter `gorm:"foreignKey:ParameterID;constraint:OnDelete:CASCADE"`
}
