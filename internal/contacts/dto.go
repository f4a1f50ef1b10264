package contacts

import "github.com/angelmondragon/orderdesk-backend/pkg/db/models"

// ContactInput creates a contact. City, street and phone are mandatory.
type ContactInput struct {
	City      string `json:"city"`
	Street    string `json:"street"`
	House     string `json:"house"`
	Structure string `json:"structure"`
	Building  string `json:"building"`
	Apartment string `json:"apartment"`
	Phone     string `json:"phone"`
}

// ContactUpdate patches an existing contact; nil fields are kept.
type ContactUpdate struct {
	ID        uint64  `json:"id"`
	City      *string `json:"city,omitempty"`
	Street    *string `json:"street,omitempty"`
	House     *string `json:"house,omitempty"`
	Structure *string `json:"structure,omitempty"`
	Building  *string `json:"building,omitempty"`
	Apartment *string `json:"apartment,omitempty"`
	Phone     *string `json:"phone,omitempty"`
}

type ContactDTO struct {
	ID        uint64 `json:"id"`
	City      string `json:"city"`
	Street    string `json:"street"`
	House     string `json:"house"`
	Structure string `json:"structure"`
	Building  string `json:"building"`
	Apartment string `json:"apartment"`
	Phone     string `json:"phone"`
}

func FromModel(c models.Contact) ContactDTO {
	return ContactDTO{
		ID:        c.ID,
		City:      c.City,
		Street:    c.Street,
		House:     c.House,
		Structure: c.Structure,
		Building:  c.Building,
		Apartment: c.Apartment,
		Phone:     c.Phone,
	}
}
