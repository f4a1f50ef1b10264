package catalog

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/orderdesk-backend/pkg/db/models"
)

type CategoryDTO struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

type ShopDTO struct {
	ID    uint64  `json:"id"`
	Name  string  `json:"name"`
	URL   *string `json:"url,omitempty"`
	State bool    `json:"state"`
}

type ProductDTO struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

type ProductParameterDTO struct {
	Parameter string `json:"parameter"`
	Value     string `json:"value"`
}

// ProductInfoDTO is a listing as buyers see it in search and in baskets.
type ProductInfoDTO struct {
	ID                uint64                `json:"id"`
	Model             string                `json:"model"`
	ExternalID        uint64                `json:"external_id"`
	Product           ProductDTO            `json:"product"`
	Shop              uint64                `json:"shop"`
	ShopName          string                `json:"shop_name,omitempty"`
	Quantity          int                   `json:"quantity"`
	Price             decimal.Decimal       `json:"price"`
	PriceRRC          decimal.Decimal       `json:"price_rrc"`
	ProductParameters []ProductParameterDTO `json:"product_parameters"`
}

// SearchFilter narrows product search. Nil fields are ignored.
type SearchFilter struct {
	ShopID     *uint64
	CategoryID *uint64
}

func CategoryFromModel(m models.Category) CategoryDTO {
	return CategoryDTO{ID: m.ID, Name: m.Name}
}

func ShopFromModel(m *models.Shop) *ShopDTO {
	if m == nil {
		return nil
	}
	return &ShopDTO{ID: m.ID, Name: m.Name, URL: m.URL, State: m.State}
}

// ProductInfoFromModel expects Product.Category, Shop and Parameters.Parameter
// to be preloaded.
func ProductInfoFromModel(m models.ProductInfo) ProductInfoDTO {
	dto := ProductInfoDTO{
		ID:         m.ID,
		Model:      m.Model,
		ExternalID: m.ExternalID,
		Product: ProductDTO{
			Name:     m.Product.Name,
			Category: m.Product.Category.Name,
		},
		Shop:              m.ShopID,
		ShopName:          m.Shop.Name,
		Quantity:          m.Quantity,
		Price:             m.Price,
		PriceRRC:          m.PriceRRC,
		ProductParameters: make([]ProductParameterDTO, 0, len(m.Parameters)),
	}
	for _, p := range m.Parameters {
		dto.ProductParameters = append(dto.ProductParameters, ProductParameterDTO{
			Parameter: p.Parameter.Name,
			Value:     p.Value,
		})
	}
	sort.Slice(dto.ProductParameters, func(i, j int) bool {
		return dto.ProductParameters[i].Parameter < dto.ProductParameters[j].Parameter
	})
	return dto
}
