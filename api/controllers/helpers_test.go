package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderdesk-backend/api/middleware"
	"github.com/angelmondragon/orderdesk-backend/internal/auth"
	"github.com/angelmondragon/orderdesk-backend/internal/catalog"
	"github.com/angelmondragon/orderdesk-backend/internal/orders"
	"github.com/angelmondragon/orderdesk-backend/internal/tasks"
	pkgAuth "github.com/angelmondragon/orderdesk-backend/pkg/auth"
	"github.com/angelmondragon/orderdesk-backend/pkg/enums"
	"github.com/angelmondragon/orderdesk-backend/pkg/logger"
	"github.com/angelmondragon/orderdesk-backend/pkg/pagination"
)

var (
	testLogger = logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	buyer      = pkgAuth.Caller{UserID: uuid.New(), UserType: enums.UserTypeBuyer}
	partner    = pkgAuth.Caller{UserID: uuid.New(), UserType: enums.UserTypeShop}
)

func serve(t *testing.T, h http.HandlerFunc, caller pkgAuth.Caller, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if caller.Authenticated() {
		req = req.WithContext(middleware.WithCaller(req.Context(), caller))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload), rec.Body.String())
	return rec, payload
}

type stubAuthService struct {
	registered []auth.RegisterRequest
	token      string
	err        error
}

func (s *stubAuthService) Register(ctx context.Context, req auth.RegisterRequest) error {
	s.registered = append(s.registered, req)
	return s.err
}

func (s *stubAuthService) ConfirmEmail(ctx context.Context, req auth.ConfirmEmailRequest) error {
	return s.err
}

func (s *stubAuthService) Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &auth.LoginResponse{Token: s.token}, nil
}

func (s *stubAuthService) RequestPasswordReset(ctx context.Context, req auth.PasswordResetRequest) error {
	return s.err
}

func (s *stubAuthService) ConfirmPasswordReset(ctx context.Context, req auth.PasswordResetConfirmRequest) error {
	return s.err
}

type stubOrders struct {
	basket    *orders.OrderView
	added     []orders.ItemInput
	addResult orders.AddResult
	updated   []orders.QuantityInput
	removed   string
	placed    [2]uint64
	state     string
	err       error
}

func (s *stubOrders) GetBasket(ctx context.Context, caller pkgAuth.Caller) (*orders.OrderView, error) {
	return s.basket, s.err
}

func (s *stubOrders) AddItems(ctx context.Context, caller pkgAuth.Caller, items []orders.ItemInput) (orders.AddResult, error) {
	s.added = items
	return s.addResult, s.err
}

func (s *stubOrders) UpdateItems(ctx context.Context, caller pkgAuth.Caller, items []orders.QuantityInput) (int, error) {
	s.updated = items
	return len(items), s.err
}

func (s *stubOrders) RemoveItems(ctx context.Context, caller pkgAuth.Caller, rawIDs string) (int, error) {
	s.removed = rawIDs
	return len(orders.ParseIDList(rawIDs)), s.err
}

func (s *stubOrders) PlaceOrder(ctx context.Context, caller pkgAuth.Caller, orderID, contactID uint64) error {
	s.placed = [2]uint64{orderID, contactID}
	return s.err
}

func (s *stubOrders) SetOrderState(ctx context.Context, caller pkgAuth.Caller, orderID uint64, state string) error {
	s.state = state
	return s.err
}

func (s *stubOrders) ListOrdersForBuyer(ctx context.Context, caller pkgAuth.Caller) ([]orders.OrderView, error) {
	return []orders.OrderView{}, s.err
}

func (s *stubOrders) ListOrdersForPartner(ctx context.Context, caller pkgAuth.Caller) ([]orders.OrderView, error) {
	return []orders.OrderView{}, s.err
}

type stubTasks struct {
	id     uuid.UUID
	url    string
	status *tasks.TaskStatus
	rawID  string
	err    error
}

func (s *stubTasks) SubmitImport(ctx context.Context, caller pkgAuth.Caller, url string) (uuid.UUID, error) {
	s.url = url
	return s.id, s.err
}

func (s *stubTasks) SubmitExport(ctx context.Context, caller pkgAuth.Caller) (uuid.UUID, error) {
	return s.id, s.err
}

func (s *stubTasks) GetStatus(ctx context.Context, caller pkgAuth.Caller, rawID string) (*tasks.TaskStatus, error) {
	s.rawID = rawID
	return s.status, s.err
}

type stubCatalog struct {
	categories []catalog.CategoryDTO
	total      int64
	params     pagination.Params
	filter     catalog.SearchFilter
	shop       *catalog.ShopDTO
	state      string
	err        error
}

func (s *stubCatalog) ListCategories(ctx context.Context, p pagination.Params) ([]catalog.CategoryDTO, int64, error) {
	s.params = p
	return s.categories, s.total, s.err
}

func (s *stubCatalog) ListShops(ctx context.Context, p pagination.Params) ([]catalog.ShopDTO, int64, error) {
	s.params = p
	return nil, 0, s.err
}

func (s *stubCatalog) SearchProducts(ctx context.Context, f catalog.SearchFilter) ([]catalog.ProductInfoDTO, error) {
	s.filter = f
	return []catalog.ProductInfoDTO{}, s.err
}

func (s *stubCatalog) GetPartnerShop(ctx context.Context, caller pkgAuth.Caller) (*catalog.ShopDTO, error) {
	return s.shop, s.err
}

func (s *stubCatalog) SetPartnerState(ctx context.Context, caller pkgAuth.Caller, raw string) error {
	s.state = raw
	return s.err
}
