package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderdesk-backend/internal/catalog"
	"github.com/angelmondragon/orderdesk-backend/pkg/db/models"
	"github.com/angelmondragon/orderdesk-backend/pkg/enums"
)

// ItemInput is one basket line requested by a buyer.
type ItemInput struct {
	ProductInfoID uint64 `json:"product_info"`
	Quantity      int    `json:"quantity"`

	// Malformed is set by DecodeItemLines when the line could not be read.
	Malformed string `json:"-"`
}

// QuantityInput changes the quantity of an existing basket line. Quantity is
// kept as a raw number so fractional or negative values can be skipped.
type QuantityInput struct {
	ID       uint64  `json:"id"`
	Quantity float64 `json:"quantity"`
}

// ItemError reports why a single requested line was not added.
type ItemError struct {
	Index         int    `json:"index"`
	ProductInfoID uint64 `json:"product_info"`
	Code          string `json:"code"`
	Message       string `json:"message"`
}

// AddResult is the partial-success outcome of AddItems.
type AddResult struct {
	Created int         `json:"created"`
	Errors  []ItemError `json:"errors,omitempty"`
}

type ContactView struct {
	ID        uint64 `json:"id"`
	City      string `json:"city"`
	Street    string `json:"street"`
	House     string `json:"house"`
	Structure string `json:"structure"`
	Building  string `json:"building"`
	Apartment string `json:"apartment"`
	Phone     string `json:"phone"`
}

type OrderItemView struct {
	ID          uint64                 `json:"id"`
	ProductInfo catalog.ProductInfoDTO `json:"product_info"`
	Quantity    int                    `json:"quantity"`
}

// OrderView is an order or basket with its computed total.
type OrderView struct {
	ID           uint64           `json:"id"`
	State        enums.OrderState `json:"state"`
	CreatedAt    time.Time        `json:"dt"`
	OrderedItems []OrderItemView  `json:"ordered_items"`
	TotalSum     decimal.Decimal  `json:"total_sum"`
	Contact      *ContactView     `json:"contact"`
}

func contactFromModel(m *models.Contact) *ContactView {
	if m == nil {
		return nil
	}
	return &ContactView{
		ID:        m.ID,
		City:      m.City,
		Street:    m.Street,
		House:     m.House,
		Structure: m.Structure,
		Building:  m.Building,
		Apartment: m.Apartment,
		Phone:     m.Phone,
	}
}

// orderFromModel expects Contact and Items with their listing graph preloaded.
func orderFromModel(m models.Order) OrderView {
	view := OrderView{
		ID:           m.ID,
		State:        m.State,
		CreatedAt:    m.CreatedAt,
		OrderedItems: make([]OrderItemView, 0, len(m.Items)),
		TotalSum:     TotalOf(m.Items),
		Contact:      contactFromModel(m.Contact),
	}
	for _, item := range m.Items {
		view.OrderedItems = append(view.OrderedItems, OrderItemView{
			ID:          item.ID,
			ProductInfo: catalog.ProductInfoFromModel(item.ProductInfo),
			Quantity:    item.Quantity,
		})
	}
	return view
}

// TotalOf sums quantity times listing price over items.
func TotalOf(items []models.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.ProductInfo.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}
