package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderdesk-backend/pkg/auth"
	"github.com/angelmondragon/orderdesk-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderdesk-backend/pkg/errors"
	"github.com/angelmondragon/orderdesk-backend/pkg/pagination"
)

type catalogRepository interface {
	ListCategories(ctx context.Context, p pagination.Params) ([]models.Category, int64, error)
	ListActiveShops(ctx context.Context, p pagination.Params) ([]models.Shop, int64, error)
	SearchProductInfos(ctx context.Context, f SearchFilter) ([]models.ProductInfo, error)
	FindShopByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Shop, error)
	SetShopStateByOwner(ctx context.Context, ownerID uuid.UUID, state bool) (int64, error)
}

// Service exposes the read side of the catalog plus the partner shop toggle.
type Service interface {
	ListCategories(ctx context.Context, p pagination.Params) ([]CategoryDTO, int64, error)
	ListShops(ctx context.Context, p pagination.Params) ([]ShopDTO, int64, error)
	SearchProducts(ctx context.Context, f SearchFilter) ([]ProductInfoDTO, error)
	GetPartnerShop(ctx context.Context, caller auth.Caller) (*ShopDTO, error)
	SetPartnerState(ctx context.Context, caller auth.Caller, raw string) error
}

type service struct {
	repo catalogRepository
}

// NewService builds a catalog service.
func NewService(repo catalogRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) ListCategories(ctx context.Context, p pagination.Params) ([]CategoryDTO, int64, error) {
	rows, count, err := s.repo.ListCategories(ctx, p)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
	}
	out := make([]CategoryDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, CategoryFromModel(row))
	}
	return out, count, nil
}

func (s *service) ListShops(ctx context.Context, p pagination.Params) ([]ShopDTO, int64, error) {
	rows, count, err := s.repo.ListActiveShops(ctx, p)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list shops")
	}
	out := make([]ShopDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *ShopFromModel(&rows[i]))
	}
	return out, count, nil
}

func (s *service) SearchProducts(ctx context.Context, f SearchFilter) ([]ProductInfoDTO, error) {
	rows, err := s.repo.SearchProductInfos(ctx, f)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "search products")
	}
	out := make([]ProductInfoDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, ProductInfoFromModel(row))
	}
	return out, nil
}

func (s *service) GetPartnerShop(ctx context.Context, caller auth.Caller) (*ShopDTO, error) {
	if err := caller.RequireShop(); err != nil {
		return nil, err
	}
	shop, err := s.repo.FindShopByOwner(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shop")
	}
	return ShopFromModel(shop), nil
}

func (s *service) SetPartnerState(ctx context.Context, caller auth.Caller, raw string) error {
	if err := caller.RequireShop(); err != nil {
		return err
	}
	if strings.TrimSpace(raw) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "state is required").WithDetails(map[string]string{"state": "is required"})
	}
	state, err := ParseState(raw)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid state").WithDetails(map[string]string{"state": err.Error()})
	}
	affected, err := s.repo.SetShopStateByOwner(ctx, caller.UserID, state)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update shop state")
	}
	if affected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
	}
	return nil
}

// ParseState reads a truthy or falsy word the way partner clients send it.
func ParseState(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "y", "yes", "t", "true", "on", "1":
		return true, nil
	case "n", "no", "f", "false", "off", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid truth value %q", raw)
}
