package orders

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/orderdesk-backend/pkg/auth"
	"github.com/angelmondragon/orderdesk-backend/pkg/db/models"
	"github.com/angelmondragon/orderdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderdesk-backend/pkg/errors"
	"github.com/angelmondragon/orderdesk-backend/pkg/outbox"
	"github.com/angelmondragon/orderdesk-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service defines basket and order operations. Every call names its caller.
type Service interface {
	GetBasket(ctx context.Context, caller auth.Caller) (*OrderView, error)
	AddItems(ctx context.Context, caller auth.Caller, items []ItemInput) (AddResult, error)
	UpdateItems(ctx context.Context, caller auth.Caller, items []QuantityInput) (int, error)
	RemoveItems(ctx context.Context, caller auth.Caller, rawIDs string) (int, error)
	PlaceOrder(ctx context.Context, caller auth.Caller, orderID, contactID uint64) error
	SetOrderState(ctx context.Context, caller auth.Caller, orderID uint64, state string) error
	ListOrdersForBuyer(ctx context.Context, caller auth.Caller) ([]OrderView, error)
	ListOrdersForPartner(ctx context.Context, caller auth.Caller) ([]OrderView, error)
}

// Options tunes authorization of partner state changes.
type Options struct {
	// ScopeStateToShop limits SetOrderState to orders holding the partner's listings.
	ScopeStateToShop bool
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	opts   Options
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, opts Options) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:   repo,
		tx:     tx,
		outbox: outbox,
		opts:   opts,
	}, nil
}

func (s *service) GetBasket(ctx context.Context, caller auth.Caller) (*OrderView, error) {
	if err := caller.RequireBuyer(); err != nil {
		return nil, err
	}
	basket, err := s.repo.FindBasket(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load basket")
	}
	view := orderFromModel(*basket)
	return &view, nil
}

func (s *service) AddItems(ctx context.Context, caller auth.Caller, items []ItemInput) (AddResult, error) {
	if err := caller.RequireBuyer(); err != nil {
		return AddResult{}, err
	}
	if len(items) == 0 {
		return AddResult{}, pkgerrors.New(pkgerrors.CodeValidation, "items are required").
			WithDetails(map[string]string{"items": "is required"})
	}

	var result AddResult
	candidates := make([]uint64, 0, len(items))
	for i, item := range items {
		switch {
		case item.Malformed != "":
			result.Errors = append(result.Errors, itemError(i, item, pkgerrors.CodeValidation, item.Malformed))
		case item.ProductInfoID == 0:
			result.Errors = append(result.Errors, itemError(i, item, pkgerrors.CodeValidation, "product_info is required"))
		case item.Quantity < 1:
			result.Errors = append(result.Errors, itemError(i, item, pkgerrors.CodeValidation, "quantity must be at least 1"))
		default:
			candidates = append(candidates, item.ProductInfoID)
		}
	}
	if len(candidates) == 0 {
		return result, nil
	}

	known, err := s.repo.ExistingListingIDs(ctx, candidates)
	if err != nil {
		return AddResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listings")
	}
	basket, err := s.repo.EnsureBasket(ctx, caller.UserID)
	if err != nil {
		return AddResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open basket")
	}

	for i, item := range items {
		if item.Malformed != "" || item.ProductInfoID == 0 || item.Quantity < 1 {
			continue
		}
		if _, ok := known[item.ProductInfoID]; !ok {
			result.Errors = append(result.Errors, itemError(i, item, pkgerrors.CodeNotFound, "product not found"))
			continue
		}
		created, err := s.repo.InsertItem(ctx, basket.ID, item.ProductInfoID, item.Quantity)
		if err != nil {
			return AddResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add basket item")
		}
		if !created {
			result.Errors = append(result.Errors, itemError(i, item, pkgerrors.CodeConflict, "product already in basket"))
			continue
		}
		result.Created++
	}
	return result, nil
}

func itemError(index int, item ItemInput, code pkgerrors.Code, msg string) ItemError {
	return ItemError{
		Index:         index,
		ProductInfoID: item.ProductInfoID,
		Code:          string(code),
		Message:       msg,
	}
}

func (s *service) UpdateItems(ctx context.Context, caller auth.Caller, items []QuantityInput) (int, error) {
	if err := caller.RequireBuyer(); err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "items are required").
			WithDetails(map[string]string{"items": "is required"})
	}

	updated := 0
	for _, item := range items {
		if item.ID == 0 || item.Quantity < 1 || item.Quantity != math.Trunc(item.Quantity) || item.Quantity > math.MaxInt32 {
			continue
		}
		n, err := s.repo.UpdateItemQuantity(ctx, caller.UserID, item.ID, int(item.Quantity))
		if err != nil {
			return updated, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update basket item")
		}
		updated += int(n)
	}
	return updated, nil
}

func (s *service) RemoveItems(ctx context.Context, caller auth.Caller, rawIDs string) (int, error) {
	if err := caller.RequireBuyer(); err != nil {
		return 0, err
	}
	ids := ParseIDList(rawIDs)
	if len(ids) == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "items are required").
			WithDetails(map[string]string{"items": "must list item ids separated by commas"})
	}
	n, err := s.repo.DeleteItems(ctx, caller.UserID, ids)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove basket items")
	}
	return int(n), nil
}

// ParseIDList keeps the digit-only tokens of a comma separated list.
func ParseIDList(raw string) []uint64 {
	var ids []uint64
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" || strings.TrimLeft(token, "0123456789") != "" {
			continue
		}
		id, err := strconv.ParseUint(token, 10, 64)
		if err != nil || id == 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (s *service) PlaceOrder(ctx context.Context, caller auth.Caller, orderID, contactID uint64) error {
	if err := caller.RequireBuyer(); err != nil {
		return err
	}
	details := map[string]string{}
	if orderID == 0 {
		details["id"] = "is required"
	}
	if contactID == 0 {
		details["contact"] = "is required"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id and contact are required").WithDetails(details)
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		owned, err := repo.ContactOwnedBy(ctx, contactID, caller.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load contact")
		}
		if !owned {
			return pkgerrors.New(pkgerrors.CodeNotFound, "contact not found")
		}

		affected, err := repo.PlaceBasket(ctx, orderID, caller.UserID, contactID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "place order")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "basket not found")
		}

		order, err := repo.LoadOrder(ctx, caller.UserID, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		if len(order.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "basket is empty")
		}

		email, err := repo.UserEmail(ctx, caller.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load buyer")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   strconv.FormatUint(order.ID, 10),
			Version:       1,
			Actor:         buildActor(caller),
			Data: payloads.OrderPlacedEvent{
				OrderID:   order.ID,
				UserID:    caller.UserID,
				Email:     email,
				ContactID: contactID,
				ItemCount: len(order.Items),
				TotalSum:  TotalOf(order.Items).StringFixed(2),
			},
		})
	})
}

func (s *service) SetOrderState(ctx context.Context, caller auth.Caller, orderID uint64, raw string) error {
	if err := caller.RequireShop(); err != nil {
		return err
	}
	if orderID == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required").
			WithDetails(map[string]string{"id": "is required"})
	}
	target, err := enums.ParseOrderState(strings.TrimSpace(raw))
	if err != nil || target == enums.OrderStateBasket {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid order state").
			WithDetails(map[string]string{"state": "must be one of new, confirmed, assembled, sent, delivered, canceled"})
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.State == enums.OrderStateBasket {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if s.opts.ScopeStateToShop {
			ok, err := repo.OrderHasPartnerItems(ctx, order.ID, caller.UserID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check order ownership")
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
		}
		affected, err := repo.UpdateState(ctx, order.ID, order.State, target)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order state")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order state changed concurrently")
		}

		email, err := repo.UserEmail(ctx, order.UserID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load buyer")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStateChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   strconv.FormatUint(order.ID, 10),
			Version:       1,
			Actor:         buildActor(caller),
			Data: payloads.OrderStateChangedEvent{
				OrderID:       order.ID,
				UserID:        order.UserID,
				Email:         email,
				PreviousState: string(order.State),
				State:         string(target),
				StateLabel:    target.Label(),
			},
		})
	})
}

func (s *service) ListOrdersForBuyer(ctx context.Context, caller auth.Caller) ([]OrderView, error) {
	if err := caller.RequireBuyer(); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListBuyerOrders(ctx, caller.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return toViews(rows), nil
}

func (s *service) ListOrdersForPartner(ctx context.Context, caller auth.Caller) ([]OrderView, error) {
	if err := caller.RequireShop(); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListPartnerOrders(ctx, caller.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list partner orders")
	}
	return toViews(rows), nil
}

func toViews(rows []models.Order) []OrderView {
	out := make([]OrderView, 0, len(rows))
	for _, row := range rows {
		out = append(out, orderFromModel(row))
	}
	return out
}

func buildActor(caller auth.Caller) *outbox.ActorRef {
	return &outbox.ActorRef{
		UserID:   caller.UserID,
		UserType: string(caller.UserType),
	}
}
