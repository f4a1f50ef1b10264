package orders

import (
	"context"
	"encoding/json"
	"io"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderdesk-backend/internal/catalog"
	"github.com/angelmondragon/orderdesk-backend/internal/importer"
	"github.com/angelmondragon/orderdesk-backend/pkg/auth"
	"github.com/angelmondragon/orderdesk-backend/pkg/db/dbtest"
	"github.com/angelmondragon/orderdesk-backend/pkg/db/models"
	"github.com/angelmondragon/orderdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/orderdesk-backend/pkg/errors"
	"github.com/angelmondragon/orderdesk-backend/pkg/feed"
	"github.com/angelmondragon/orderdesk-backend/pkg/logger"
	"github.com/angelmondragon/orderdesk-backend/pkg/outbox"
	"github.com/angelmondragon/orderdesk-backend/pkg/outbox/payloads"
)

type recordingOutbox struct {
	events []outbox.DomainEvent
}

func (r *recordingOutbox) Emit(_ context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "tx required")
	}
	r.events = append(r.events, event)
	return nil
}

type world struct {
	db      *gorm.DB
	svc     Service
	outbox  *recordingOutbox
	buyer   auth.Caller
	other   auth.Caller
	partner auth.Caller
	rival   auth.Caller
	contact models.Contact
	phone   models.ProductInfo
	cover   models.ProductInfo
	foreign models.ProductInfo
}

func newWorld(t *testing.T, opts Options) *world {
	t.Helper()
	client, conn := dbtest.OpenClient(t)
	rec := &recordingOutbox{}
	svc, err := NewService(NewRepository(conn), client, rec, opts)
	require.NoError(t, err)

	w := &world{db: conn, svc: svc, outbox: rec}
	w.buyer = createUser(t, conn, "buyer@example.com", enums.UserTypeBuyer)
	w.other = createUser(t, conn, "other@example.com", enums.UserTypeBuyer)
	w.partner = createUser(t, conn, "partner@example.com", enums.UserTypeShop)
	w.rival = createUser(t, conn, "rival@example.com", enums.UserTypeShop)

	shop := models.Shop{Name: "Partner", UserID: &w.partner.UserID, State: true}
	rivalShop := models.Shop{Name: "Rival", UserID: &w.rival.UserID, State: true}
	require.NoError(t, conn.Create(&shop).Error)
	require.NoError(t, conn.Create(&rivalShop).Error)

	category := models.Category{ID: 1, Name: "Phones"}
	require.NoError(t, conn.Create(&category).Error)
	product := models.Product{Name: "Phone", CategoryID: category.ID}
	require.NoError(t, conn.Omit("Category").Create(&product).Error)

	w.phone = createListing(t, conn, product.ID, shop.ID, 1, 100)
	w.cover = createListing(t, conn, product.ID, shop.ID, 2, 250)
	w.foreign = createListing(t, conn, product.ID, rivalShop.ID, 1, 80)

	w.contact = models.Contact{UserID: w.buyer.UserID, City: "Moscow", Street: "Tverskaya", Phone: "+7000"}
	require.NoError(t, conn.Create(&w.contact).Error)
	return w
}

func createUser(t *testing.T, db *gorm.DB, email string, kind enums.UserType) auth.Caller {
	t.Helper()
	user := models.User{Email: email, PasswordHash: "x", Type: kind, IsActive: true}
	require.NoError(t, db.Create(&user).Error)
	return auth.Caller{UserID: user.ID, UserType: kind}
}

func createListing(t *testing.T, db *gorm.DB, productID, shopID, externalID uint64, price int64) models.ProductInfo {
	t.Helper()
	row := models.ProductInfo{
		ProductID: productID, ShopID: shopID, ExternalID: externalID, Model: "m",
		Quantity: 10, Price: decimal.NewFromInt(price), PriceRRC: decimal.NewFromInt(price),
	}
	require.NoError(t, db.Omit("Product", "Shop", "Parameters").Create(&row).Error)
	return row
}

func (w *world) fillBasket(t *testing.T, caller auth.Caller, items ...ItemInput) *OrderView {
	t.Helper()
	res, err := w.svc.AddItems(context.Background(), caller, items)
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	basket, err := w.svc.GetBasket(context.Background(), caller)
	require.NoError(t, err)
	require.NotNil(t, basket)
	return basket
}

func TestGetBasketEmpty(t *testing.T) {
	w := newWorld(t, Options{})
	basket, err := w.svc.GetBasket(context.Background(), w.buyer)
	require.NoError(t, err)
	require.Nil(t, basket)
}

func TestAddItemsTwiceReportsConflict(t *testing.T) {
	w := newWorld(t, Options{})
	ctx := context.Background()

	first, err := w.svc.AddItems(ctx, w.buyer, []ItemInput{{ProductInfoID: w.phone.ID, Quantity: 1}})
	require.NoError(t, err)
	require.Equal(t, 1, first.Created)

	second, err := w.svc.AddItems(ctx, w.buyer, []ItemInput{
		{ProductInfoID: w.phone.ID, Quantity: 3},
		{ProductInfoID: w.cover.ID, Quantity: 1},
	})
	require.NoError(t, err)
	require.Equal(t, 1, second.Created)
	require.Len(t, second.Errors, 1)
	require.Equal(t, string(pkgerrors.CodeConflict), second.Errors[0].Code)
	require.Equal(t, 0, second.Errors[0].Index)

	var n int64
	require.NoError(t, w.db.Model(&models.OrderItem{}).Where("product_info_id = ?", w.phone.ID).Count(&n).Error)
	require.Equal(t, int64(1), n)

	var baskets int64
	require.NoError(t, w.db.Model(&models.Order{}).Where("user_id = ?", w.buyer.UserID).Count(&baskets).Error)
	require.Equal(t, int64(1), baskets)
}

func TestAddItemsReportsPerItemErrors(t *testing.T) {
	w := newWorld(t, Options{})

	res, err := w.svc.AddItems(context.Background(), w.buyer, []ItemInput{
		{ProductInfoID: 0, Quantity: 1},
		{ProductInfoID: w.phone.ID, Quantity: 0},
		{ProductInfoID: 9999, Quantity: 1},
		{ProductInfoID: w.cover.ID, Quantity: 2},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Created)
	require.Len(t, res.Errors, 3)

	codes := map[int]string{}
	for _, e := range res.Errors {
		codes[e.Index] = e.Code
	}
	require.Equal(t, string(pkgerrors.CodeValidation), codes[0])
	require.Equal(t, string(pkgerrors.CodeValidation), codes[1])
	require.Equal(t, string(pkgerrors.CodeNotFound), codes[2])

	_, err = w.svc.AddItems(context.Background(), w.buyer, nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestAddItemsReportsMalformedLines(t *testing.T) {
	w := newWorld(t, Options{})
	raw := []json.RawMessage{
		json.RawMessage(`{"product_info":"x","quantity":1}`),
		json.RawMessage(`{"product_info":` + strconv.FormatUint(w.phone.ID, 10) + `,"quantity":2}`),
		json.RawMessage(`{"product_info":` + strconv.FormatUint(w.cover.ID, 10) + `,"quantity":0.5}`),
	}

	res, err := w.svc.AddItems(context.Background(), w.buyer, DecodeItemLines(raw))
	require.NoError(t, err)
	require.Equal(t, 1, res.Created)
	require.Len(t, res.Errors, 2)
	require.Equal(t, 0, res.Errors[0].Index)
	require.Equal(t, string(pkgerrors.CodeValidation), res.Errors[0].Code)
	require.Equal(t, 2, res.Errors[1].Index)
	require.Equal(t, "quantity must be an integer", res.Errors[1].Message)
}

func TestConcurrentAddItemsOpenOneBasket(t *testing.T) {
	w := newWorld(t, Options{})
	ctx := context.Background()

	var g errgroup.Group
	results := make([]AddResult, 6)
	for i := range results {
		g.Go(func() error {
			var err error
			results[i], err = w.svc.AddItems(ctx, w.buyer, []ItemInput{{ProductInfoID: w.phone.ID, Quantity: 1}})
			return err
		})
	}
	require.NoError(t, g.Wait())

	created := 0
	for _, res := range results {
		created += res.Created
	}
	require.Equal(t, 1, created)

	var baskets int64
	require.NoError(t, w.db.Model(&models.Order{}).
		Where("user_id = ? AND state = ?", w.buyer.UserID, enums.OrderStateBasket).
		Count(&baskets).Error)
	require.Equal(t, int64(1), baskets)

	repo := NewRepository(w.db)
	first, err := repo.EnsureBasket(ctx, w.buyer.UserID)
	require.NoError(t, err)
	again, err := repo.EnsureBasket(ctx, w.buyer.UserID)
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)
}

func TestTotalMatchesItemsBeforeAndAfterUpdate(t *testing.T) {
	w := newWorld(t, Options{})
	ctx := context.Background()

	basket := w.fillBasket(t, w.buyer,
		ItemInput{ProductInfoID: w.phone.ID, Quantity: 2},
		ItemInput{ProductInfoID: w.cover.ID, Quantity: 1},
	)
	require.True(t, basket.TotalSum.Equal(decimal.NewFromInt(2*100+250)))
	requireTotalIsSumOfLines(t, basket)

	var phoneLine uint64
	for _, item := range basket.OrderedItems {
		if item.ProductInfo.ID == w.phone.ID {
			phoneLine = item.ID
		}
	}
	updated, err := w.svc.UpdateItems(ctx, w.buyer, []QuantityInput{{ID: phoneLine, Quantity: 5}})
	require.NoError(t, err)
	require.Equal(t, 1, updated)

	basket, err = w.svc.GetBasket(ctx, w.buyer)
	require.NoError(t, err)
	require.True(t, basket.TotalSum.Equal(decimal.NewFromInt(5*100+250)))
	requireTotalIsSumOfLines(t, basket)
}

func requireTotalIsSumOfLines(t *testing.T, view *OrderView) {
	t.Helper()
	sum := decimal.Zero
	for _, item := range view.OrderedItems {
		sum = sum.Add(item.ProductInfo.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	require.True(t, sum.Equal(view.TotalSum), "total %s != %s", view.TotalSum, sum)
}

func TestUpdateItemsSkipsForeignAndInvalid(t *testing.T) {
	w := newWorld(t, Options{})
	ctx := context.Background()

	mine := w.fillBasket(t, w.buyer, ItemInput{ProductInfoID: w.phone.ID, Quantity: 1})
	theirs := w.fillBasket(t, w.other, ItemInput{ProductInfoID: w.phone.ID, Quantity: 1})
	myLine := mine.OrderedItems[0].ID
	theirLine := theirs.OrderedItems[0].ID

	updated, err := w.svc.UpdateItems(ctx, w.buyer, []QuantityInput{
		{ID: theirLine, Quantity: 7},
		{ID: myLine, Quantity: 2.5},
		{ID: myLine, Quantity: -1},
		{ID: 0, Quantity: 3},
	})
	require.NoError(t, err)
	require.Equal(t, 0, updated)

	var item models.OrderItem
	require.NoError(t, w.db.First(&item, theirLine).Error)
	require.Equal(t, 1, item.Quantity)

	_, err = w.svc.UpdateItems(ctx, w.buyer, nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRemoveItemsScopedToBasket(t *testing.T) {
	w := newWorld(t, Options{})
	ctx := context.Background()

	mine := w.fillBasket(t, w.buyer,
		ItemInput{ProductInfoID: w.phone.ID, Quantity: 1},
		ItemInput{ProductInfoID: w.cover.ID, Quantity: 1},
	)
	theirs := w.fillBasket(t, w.other, ItemInput{ProductInfoID: w.phone.ID, Quantity: 1})

	raw := " abc, " + uintToString(mine.OrderedItems[0].ID) + ",-4,," + uintToString(theirs.OrderedItems[0].ID)
	deleted, err := w.svc.RemoveItems(ctx, w.buyer, raw)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	basket, err := w.svc.GetBasket(ctx, w.other)
	require.NoError(t, err)
	require.Len(t, basket.OrderedItems, 1)

	_, err = w.svc.RemoveItems(ctx, w.buyer, "x, y")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestPlaceOrderMovesBasketAndEmits(t *testing.T) {
	w := newWorld(t, Options{})
	ctx := context.Background()
	basket := w.fillBasket(t, w.buyer,
		ItemInput{ProductInfoID: w.phone.ID, Quantity: 2},
		ItemInput{ProductInfoID: w.cover.ID, Quantity: 1},
	)

	require.NoError(t, w.svc.PlaceOrder(ctx, w.buyer, basket.ID, w.contact.ID))

	var order models.Order
	require.NoError(t, w.db.First(&order, basket.ID).Error)
	require.Equal(t, enums.OrderStateNew, order.State)
	require.Equal(t, w.contact.ID, *order.ContactID)

	require.Len(t, w.outbox.events, 1)
	event := w.outbox.events[0]
	require.Equal(t, enums.EventOrderPlaced, event.EventType)
	require.Equal(t, enums.AggregateOrder, event.AggregateType)
	data := event.Data.(payloads.OrderPlacedEvent)
	require.Equal(t, "buyer@example.com", data.Email)
	require.Equal(t, 2, data.ItemCount)
	require.Equal(t, "450.00", data.TotalSum)

	next, err := w.svc.GetBasket(ctx, w.buyer)
	require.NoError(t, err)
	require.Nil(t, next)

	err = w.svc.PlaceOrder(ctx, w.buyer, basket.ID, w.contact.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "placed order is no longer a basket")
	require.Len(t, w.outbox.events, 1)
}

func TestPlaceOrderGuards(t *testing.T) {
	w := newWorld(t, Options{})
	ctx := context.Background()
	basket := w.fillBasket(t, w.buyer, ItemInput{ProductInfoID: w.phone.ID, Quantity: 1})

	otherContact := models.Contact{UserID: w.other.UserID, City: "c", Street: "s", Phone: "p"}
	require.NoError(t, w.db.Create(&otherContact).Error)

	err := w.svc.PlaceOrder(ctx, w.buyer, basket.ID, otherContact.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	err = w.svc.PlaceOrder(ctx, w.other, basket.ID, otherContact.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	err = w.svc.PlaceOrder(ctx, w.buyer, 0, 0)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = w.svc.PlaceOrder(ctx, w.partner, basket.ID, w.contact.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	var order models.Order
	require.NoError(t, w.db.First(&order, basket.ID).Error)
	require.Equal(t, enums.OrderStateBasket, order.State)
	require.Nil(t, order.ContactID)
	require.Empty(t, w.outbox.events)
}

func TestPlaceOrderRejectsEmptyBasket(t *testing.T) {
	w := newWorld(t, Options{})
	ctx := context.Background()
	basket := w.fillBasket(t, w.buyer, ItemInput{ProductInfoID: w.phone.ID, Quantity: 1})
	_, err := w.svc.RemoveItems(ctx, w.buyer, uintToString(basket.OrderedItems[0].ID))
	require.NoError(t, err)

	err = w.svc.PlaceOrder(ctx, w.buyer, basket.ID, w.contact.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	var order models.Order
	require.NoError(t, w.db.First(&order, basket.ID).Error)
	require.Equal(t, enums.OrderStateBasket, order.State)
}

func placeOrder(t *testing.T, w *world, items ...ItemInput) uint64 {
	t.Helper()
	basket := w.fillBasket(t, w.buyer, items...)
	require.NoError(t, w.svc.PlaceOrder(context.Background(), w.buyer, basket.ID, w.contact.ID))
	w.outbox.events = nil
	return basket.ID
}

func TestSetOrderStateBroadByDefault(t *testing.T) {
	w := newWorld(t, Options{})
	ctx := context.Background()
	orderID := placeOrder(t, w, ItemInput{ProductInfoID: w.phone.ID, Quantity: 1})

	require.NoError(t, w.svc.SetOrderState(ctx, w.rival, orderID, "confirmed"))

	var order models.Order
	require.NoError(t, w.db.First(&order, orderID).Error)
	require.Equal(t, enums.OrderStateConfirmed, order.State)

	require.Len(t, w.outbox.events, 1)
	data := w.outbox.events[0].Data.(payloads.OrderStateChangedEvent)
	require.Equal(t, "new", data.PreviousState)
	require.Equal(t, "confirmed", data.State)
	require.Equal(t, "Confirmed", data.StateLabel)
	require.Equal(t, w.buyer.UserID, data.UserID)
	require.Equal(t, "buyer@example.com", data.Email)

	// re-sending the current state still notifies the buyer
	require.NoError(t, w.svc.SetOrderState(ctx, w.partner, orderID, "confirmed"))
	require.Len(t, w.outbox.events, 2)
	again := w.outbox.events[1].Data.(payloads.OrderStateChangedEvent)
	require.Equal(t, "confirmed", again.PreviousState)
	require.Equal(t, "confirmed", again.State)
}

func TestSetOrderStateScopedToShop(t *testing.T) {
	w := newWorld(t, Options{ScopeStateToShop: true})
	ctx := context.Background()
	orderID := placeOrder(t, w, ItemInput{ProductInfoID: w.phone.ID, Quantity: 1})

	err := w.svc.SetOrderState(ctx, w.rival, orderID, "sent")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	require.NoError(t, w.svc.SetOrderState(ctx, w.partner, orderID, "sent"))
}

func TestSetOrderStateGuards(t *testing.T) {
	w := newWorld(t, Options{})
	ctx := context.Background()
	orderID := placeOrder(t, w, ItemInput{ProductInfoID: w.phone.ID, Quantity: 1})
	basket := w.fillBasket(t, w.buyer, ItemInput{ProductInfoID: w.cover.ID, Quantity: 1})

	err := w.svc.SetOrderState(ctx, w.buyer, orderID, "sent")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	err = w.svc.SetOrderState(ctx, w.partner, orderID, "basket")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = w.svc.SetOrderState(ctx, w.partner, orderID, "lost")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = w.svc.SetOrderState(ctx, w.partner, basket.ID, "sent")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	err = w.svc.SetOrderState(ctx, w.partner, 424242, "sent")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	require.Empty(t, w.outbox.events)
}

func TestListOrders(t *testing.T) {
	w := newWorld(t, Options{})
	ctx := context.Background()
	first := placeOrder(t, w, ItemInput{ProductInfoID: w.phone.ID, Quantity: 1}, ItemInput{ProductInfoID: w.cover.ID, Quantity: 1})
	second := placeOrder(t, w, ItemInput{ProductInfoID: w.foreign.ID, Quantity: 3})
	w.fillBasket(t, w.buyer, ItemInput{ProductInfoID: w.phone.ID, Quantity: 1})

	mine, err := w.svc.ListOrdersForBuyer(ctx, w.buyer)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	require.Equal(t, second, mine[0].ID)
	require.Equal(t, first, mine[1].ID)
	require.NotNil(t, mine[0].Contact)
	require.Equal(t, "Moscow", mine[0].Contact.City)

	partnerOrders, err := w.svc.ListOrdersForPartner(ctx, w.partner)
	require.NoError(t, err)
	require.Len(t, partnerOrders, 1, "two matching lines still yield one order")
	require.Equal(t, first, partnerOrders[0].ID)
	require.True(t, partnerOrders[0].TotalSum.Equal(decimal.NewFromInt(350)))

	rivalOrders, err := w.svc.ListOrdersForPartner(ctx, w.rival)
	require.NoError(t, err)
	require.Len(t, rivalOrders, 1)
	require.Equal(t, second, rivalOrders[0].ID)

	_, err = w.svc.ListOrdersForPartner(ctx, w.buyer)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	_, err = w.svc.ListOrdersForBuyer(ctx, auth.Caller{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestParseIDList(t *testing.T) {
	require.Equal(t, []uint64{1, 22, 3}, ParseIDList("1, 22,x,3,-5, 4.5,0"))
	require.Empty(t, ParseIDList(""))
}

type noopLock struct{}

func (noopLock) Acquire(context.Context) (bool, error) { return true, nil }
func (noopLock) Refresh(context.Context) error         { return nil }
func (noopLock) Release(context.Context) error         { return nil }

func TestPartnerSeesOrderForImportedGoods(t *testing.T) {
	client, conn := dbtest.OpenClient(t)
	rec := &recordingOutbox{}
	svc, err := NewService(NewRepository(conn), client, rec, Options{})
	require.NoError(t, err)
	imports, err := importer.NewService(importer.ServiceParams{
		DB:     client,
		Repo:   catalog.NewRepository(conn),
		Locks:  func(uuid.UUID) (importer.Locker, error) { return noopLock{}, nil },
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	ctx := context.Background()

	partner := createUser(t, conn, "s@example.com", enums.UserTypeShop)
	buyer := createUser(t, conn, "b@example.com", enums.UserTypeBuyer)

	doc, err := feed.Parse([]byte(`
shop: S
categories:
  - id: 7
    name: Things
goods:
  - id: 1
    category: 7
    model: a
    name: Alpha
    price: 120
    price_rrc: 130
    quantity: 5
    parameters: {}
  - id: 2
    category: 7
    model: b
    name: Beta
    price: 80.50
    price_rrc: 90
    quantity: 5
    parameters:
      size: L
`))
	require.NoError(t, err)
	_, err = imports.ImportCatalog(ctx, partner.UserID, doc)
	require.NoError(t, err)

	var listings []models.ProductInfo
	require.NoError(t, conn.Order("id").Find(&listings).Error)
	require.Len(t, listings, 2)

	added, err := svc.AddItems(ctx, buyer, []ItemInput{
		{ProductInfoID: listings[0].ID, Quantity: 1},
		{ProductInfoID: listings[1].ID, Quantity: 1},
	})
	require.NoError(t, err)
	require.Equal(t, 2, added.Created)

	contact := models.Contact{UserID: buyer.UserID, City: "c", Street: "s", Phone: "p"}
	require.NoError(t, conn.Create(&contact).Error)
	basket, err := svc.GetBasket(ctx, buyer)
	require.NoError(t, err)
	require.NoError(t, svc.PlaceOrder(ctx, buyer, basket.ID, contact.ID))

	orders, err := svc.ListOrdersForPartner(ctx, partner)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Len(t, orders[0].OrderedItems, 2)
	require.True(t, orders[0].TotalSum.Equal(decimal.RequireFromString("200.50")))
}

func uintToString(v uint64) string {
	return strconv.FormatUint(v, 10)
}
