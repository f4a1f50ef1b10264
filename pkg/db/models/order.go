package models

import (
	"time"

	"github.com/angelmondragon/orderdesk-backend/pkg/enums"
	"github.com/google/uuid"
)

// Order doubles as the basket while its state is "basket"; at most one such
// row exists per user.
type Order struct {
	ID        uint64           `gorm:"primaryKey;autoIncrement"`
	UserID    uuid.UUID        `gorm:"column:user_id;type:uuid;not null;index;uniqueIndex:ux_orders_one_basket,where:state = 'basket'"`
	State     enums.OrderState `gorm:"column:state;type:order_state;not null"`
	ContactID *uint64          `gorm:"column:contact_id"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`

	Contact *Contact    `gorm:"foreignKey:ContactID;constraint:OnDelete:SET NULL"`
	Items   []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

type OrderItem struct {
	ID            uint64      `gorm:"primaryKey;autoIncrement"`
	OrderID       uint64      `gorm:"column:order_id;not null;uniqueIndex:ux_order_items_listing"`
	ProductInfoID uint64      `gorm:"column:product_info_id;not null;uniqueIndex:ux_order_items_listing"`
	Quantity      int         `gorm:"column:quantity;not null"`
	ProductInfo   ProductInfo `gorm:"foreignKey:ProductInfoID;constraint:OnDelete:CASCADE"`
}

type Contact struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	City      string    `gorm:"column:city;not null"`
	Street    string    `gorm:"column:street;not null"`
	House     string    `gorm:"column:house;not null"`
	Structure string    `gorm:"column:structure;not null"`
	Building  string    `gorm:"column:building;not null"`
	Apartment string    `gorm:"column:apartment;not null"`
	Phone     string    `gorm:"column:phone;not null"`
}
