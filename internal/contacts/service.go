package contacts

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/orderdesk-backend/internal/orders"
	"github.com/angelmondragon/orderdesk-backend/pkg/auth"
	"github.com/angelmondragon/orderdesk-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderdesk-backend/pkg/errors"
)

// Service manages the caller's delivery contacts.
type Service interface {
	List(ctx context.Context, caller auth.Caller) ([]ContactDTO, error)
	Create(ctx context.Context, caller auth.Caller, input ContactInput) (*ContactDTO, error)
	Update(ctx context.Context, caller auth.Caller, update ContactUpdate) error
	Delete(ctx context.Context, caller auth.Caller, rawIDs string) (int, error)
}

type service struct {
	repo *Repository
}

func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("contacts repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) List(ctx context.Context, caller auth.Caller) ([]ContactDTO, error) {
	if err := caller.RequireAuthenticated(); err != nil {
		return nil, err
	}
	rows, err := s.repo.List(ctx, caller.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list contacts")
	}
	out := make([]ContactDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromModel(row))
	}
	return out, nil
}

func (s *service) Create(ctx context.Context, caller auth.Caller, input ContactInput) (*ContactDTO, error) {
	if err := caller.RequireAuthenticated(); err != nil {
		return nil, err
	}
	contact := models.Contact{
		UserID:    caller.UserID,
		City:      strings.TrimSpace(input.City),
		Street:    strings.TrimSpace(input.Street),
		House:     strings.TrimSpace(input.House),
		Structure: strings.TrimSpace(input.Structure),
		Building:  strings.TrimSpace(input.Building),
		Apartment: strings.TrimSpace(input.Apartment),
		Phone:     strings.TrimSpace(input.Phone),
	}
	details := map[string]string{}
	for field, value := range map[string]string{"city": contact.City, "street": contact.Street, "phone": contact.Phone} {
		if value == "" {
			details[field] = "this field is required"
		}
	}
	if len(details) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid contact").WithDetails(details)
	}
	if err := s.repo.Create(ctx, &contact); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create contact")
	}
	dto := FromModel(contact)
	return &dto, nil
}

func (s *service) Update(ctx context.Context, caller auth.Caller, update ContactUpdate) error {
	if err := caller.RequireAuthenticated(); err != nil {
		return err
	}
	if update.ID == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "id is required").
			WithDetails(map[string]string{"id": "this field is required"})
	}

	fields := map[string]any{}
	details := map[string]string{}
	set := func(column string, value *string, required bool) {
		if value == nil {
			return
		}
		trimmed := strings.TrimSpace(*value)
		if required && trimmed == "" {
			details[column] = "must not be blank"
			return
		}
		fields[column] = trimmed
	}
	set("city", update.City, true)
	set("street", update.Street, true)
	set("phone", update.Phone, true)
	set("house", update.House, false)
	set("structure", update.Structure, false)
	set("building", update.Building, false)
	set("apartment", update.Apartment, false)
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid contact").WithDetails(details)
	}

	found, err := s.repo.Update(ctx, caller.UserID, update.ID, fields)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update contact")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "contact not found")
	}
	return nil
}

// Delete removes the caller's contacts named in a comma separated id list.
func (s *service) Delete(ctx context.Context, caller auth.Caller, rawIDs string) (int, error) {
	if err := caller.RequireAuthenticated(); err != nil {
		return 0, err
	}
	ids := orders.ParseIDList(rawIDs)
	if len(ids) == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "no valid ids given").
			WithDetails(map[string]string{"items": "must be a comma separated list of ids"})
	}
	n, err := s.repo.Delete(ctx, caller.UserID, ids)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete contacts")
	}
	return int(n), nil
}
