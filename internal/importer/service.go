package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderdesk-backend/internal/catalog"
	"github.com/angelmondragon/orderdesk-backend/internal/cron"
	"github.com/angelmondragon/orderdesk-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderdesk-backend/pkg/errors"
	"github.com/angelmondragon/orderdesk-backend/pkg/feed"
	"github.com/angelmondragon/orderdesk-backend/pkg/logger"
)

// Locker guards a single shop while its catalog is replaced.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Refresh(ctx context.Context) error
	Release(ctx context.Context) error
}

const defaultImportLockTTL = 10 * time.Minute

// LockProvider returns the lock guarding the shop owned by ownerID.
type LockProvider func(ownerID uuid.UUID) (Locker, error)

type redisLockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DeleteIfValue(ctx context.Context, key, value string) (bool, error)
	ExpireIfValue(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	LockKey(parts ...string) string
}

// RedisLockProvider builds per-owner locks under od:lock:import:<owner>.
func RedisLockProvider(store redisLockStore, ttl time.Duration) LockProvider {
	return func(ownerID uuid.UUID) (Locker, error) {
		return cron.NewRedisLock(store, store.LockKey("import", ownerID.String()), ttl)
	}
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ImportSummary describes what a finished import wrote.
type ImportSummary struct {
	ShopID     uint64 `json:"shop_id"`
	Shop       string `json:"shop"`
	Categories int    `json:"categories"`
	Goods      int    `json:"goods"`
	Parameters int    `json:"parameters"`
	Replaced   int64  `json:"replaced"`
}

// Service replaces and exports partner catalogs.
type Service interface {
	ImportCatalog(ctx context.Context, ownerID uuid.UUID, doc *feed.Document) (ImportSummary, error)
	ExportCatalog(ctx context.Context, ownerID uuid.UUID) (*feed.Document, error)
}

type ServiceParams struct {
	DB     txRunner
	Repo   *catalog.Repository
	Locks  LockProvider
	Logger *logger.Logger
	// LockTTL must match the TTL the provider's locks are created with.
	LockTTL time.Duration
}

type service struct {
	db           txRunner
	repo         *catalog.Repository
	locks        LockProvider
	logg         *logger.Logger
	refreshEvery time.Duration
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("lock provider required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	ttl := params.LockTTL
	if ttl <= 0 {
		ttl = defaultImportLockTTL
	}
	return &service{
		db:           params.DB,
		repo:         params.Repo,
		locks:        params.Locks,
		logg:         params.Logger,
		refreshEvery: ttl / 3,
	}, nil
}

func (s *service) ImportCatalog(ctx context.Context, ownerID uuid.UUID, doc *feed.Document) (ImportSummary, error) {
	if ownerID == uuid.Nil {
		return ImportSummary{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "log in required")
	}
	if doc == nil || strings.TrimSpace(doc.Shop) == "" {
		return ImportSummary{}, pkgerrors.New(pkgerrors.CodeValidation, "feed document is empty")
	}

	lock, err := s.locks(ownerID)
	if err != nil {
		return ImportSummary{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build import lock")
	}
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return ImportSummary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire import lock")
	}
	if !acquired {
		return ImportSummary{}, pkgerrors.New(pkgerrors.CodeConflict, "import already running for this shop")
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			s.logg.Error(ctx, "failed to release import lock", err)
		}
	}()

	held, stop := s.keepLock(ctx, lock)
	var summary ImportSummary
	err = s.db.WithTx(held, func(tx *gorm.DB) error {
		var txErr error
		summary, txErr = s.replace(held, s.repo.WithTx(tx), ownerID, doc)
		return txErr
	})
	stop()
	if err != nil {
		if lost := context.Cause(held); errors.Is(lost, cron.ErrLockLost) {
			return ImportSummary{}, pkgerrors.Wrap(pkgerrors.CodeConflict, lost, "import lock expired before the catalog was written")
		}
		if pkgerrors.As(err) != nil {
			return ImportSummary{}, err
		}
		return ImportSummary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "import catalog")
	}

	logCtx := s.logg.WithShopID(ctx, summary.ShopID)
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"goods":      summary.Goods,
		"categories": summary.Categories,
		"replaced":   summary.Replaced,
	})
	s.logg.Info(logCtx, "catalog imported")
	return summary, nil
}

// keepLock refreshes lock until stop is called. A failed refresh cancels the
// returned context, which rolls back the replace transaction.
func (s *service) keepLock(ctx context.Context, lock Locker) (context.Context, func()) {
	held, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.refreshEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-held.Done():
				return
			case <-ticker.C:
				if err := lock.Refresh(held); err != nil {
					s.logg.Error(ctx, "import lock refresh failed", err)
					cancel(fmt.Errorf("refresh import lock: %w", err))
					return
				}
			}
		}
	}()
	return held, func() {
		close(done)
		wg.Wait()
		cancel(nil)
	}
}

func (s *service) replace(ctx context.Context, repo *catalog.Repository, ownerID uuid.UUID, doc *feed.Document) (ImportSummary, error) {
	if err := checkGoodCategories(ctx, repo, doc); err != nil {
		return ImportSummary{}, err
	}

	shop, err := resolveShop(ctx, repo, ownerID, strings.TrimSpace(doc.Shop))
	if err != nil {
		return ImportSummary{}, err
	}
	summary := ImportSummary{ShopID: shop.ID, Shop: shop.Name}

	for _, c := range doc.Categories {
		if err := repo.UpsertCategory(ctx, c.ID, c.Name); err != nil {
			return ImportSummary{}, fmt.Errorf("upsert category %d: %w", c.ID, err)
		}
		if err := repo.LinkShopCategory(ctx, shop.ID, c.ID); err != nil {
			return ImportSummary{}, fmt.Errorf("link category %d: %w", c.ID, err)
		}
		summary.Categories++
	}

	replaced, err := repo.DeleteShopListings(ctx, shop.ID)
	if err != nil {
		return ImportSummary{}, fmt.Errorf("delete listings: %w", err)
	}
	summary.Replaced = replaced

	params := map[string]uint64{}
	for _, good := range doc.Goods {
		productID, err := repo.UpsertProduct(ctx, good.Name, good.Category)
		if err != nil {
			return ImportSummary{}, fmt.Errorf("upsert product %q: %w", good.Name, err)
		}
		info := models.ProductInfo{
			ProductID:  productID,
			ShopID:     shop.ID,
			ExternalID: good.ID,
			Model:      good.Model,
			Quantity:   good.Quantity,
			Price:      good.Price.Decimal,
			PriceRRC:   good.PriceRRC.Decimal,
		}
		if err := repo.CreateProductInfo(ctx, &info); err != nil {
			return ImportSummary{}, fmt.Errorf("create listing %d: %w", good.ID, err)
		}

		values := make([]models.ProductParameter, 0, len(good.Parameters))
		for name, value := range good.Parameters {
			id, ok := params[name]
			if !ok {
				id, err = repo.UpsertParameter(ctx, name)
				if err != nil {
					return ImportSummary{}, fmt.Errorf("upsert parameter %q: %w", name, err)
				}
				params[name] = id
			}
			values = append(values, models.ProductParameter{
				ProductInfoID: info.ID,
				ParameterID:   id,
				Value:         value,
			})
		}
		if err := repo.CreateProductParameters(ctx, values); err != nil {
			return ImportSummary{}, fmt.Errorf("create parameters for listing %d: %w", good.ID, err)
		}
		summary.Goods++
		summary.Parameters += len(values)
	}
	return summary, nil
}

// checkGoodCategories rejects goods whose category is neither in the feed nor
// already stored.
func checkGoodCategories(ctx context.Context, repo *catalog.Repository, doc *feed.Document) error {
	known := doc.CategoryIDs()
	var missing []uint64
	seen := map[uint64]struct{}{}
	for _, good := range doc.Goods {
		if _, ok := known[good.Category]; ok {
			continue
		}
		if _, ok := seen[good.Category]; ok {
			continue
		}
		seen[good.Category] = struct{}{}
		missing = append(missing, good.Category)
	}
	if len(missing) == 0 {
		return nil
	}
	stored, err := repo.ExistingCategoryIDs(ctx, missing)
	if err != nil {
		return fmt.Errorf("load categories: %w", err)
	}
	details := map[string]string{}
	for i, good := range doc.Goods {
		if _, ok := known[good.Category]; ok {
			continue
		}
		if _, ok := stored[good.Category]; ok {
			continue
		}
		details[fmt.Sprintf("goods[%d].category", i)] = fmt.Sprintf("unknown category %d", good.Category)
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "feed references unknown categories").WithDetails(details)
	}
	return nil
}

func resolveShop(ctx context.Context, repo *catalog.Repository, ownerID uuid.UUID, name string) (*models.Shop, error) {
	owned, err := repo.FindShopByOwner(ctx, ownerID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load shop: %w", err)
	}
	if owned != nil && owned.Name == name {
		return owned, nil
	}

	named, err := repo.FindShopByName(ctx, name)
	switch {
	case err == nil:
		if named.UserID == nil || *named.UserID != ownerID {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "shop name belongs to another partner")
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("load shop by name: %w", err)
	}

	if owned != nil {
		if err := repo.RenameShop(ctx, owned.ID, name); err != nil {
			return nil, fmt.Errorf("rename shop: %w", err)
		}
		owned.Name = name
		return owned, nil
	}

	shop := &models.Shop{Name: name, UserID: &ownerID, State: true}
	if err := repo.CreateShop(ctx, shop); err != nil {
		return nil, fmt.Errorf("create shop: %w", err)
	}
	return shop, nil
}

func (s *service) ExportCatalog(ctx context.Context, ownerID uuid.UUID) (*feed.Document, error) {
	shop, err := s.repo.FindShopByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shop not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shop")
	}
	categories, err := s.repo.ShopCategories(ctx, shop.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shop categories")
	}
	listings, err := s.repo.ShopListings(ctx, shop.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shop listings")
	}

	doc := &feed.Document{
		Shop:       shop.Name,
		Categories: make([]feed.Category, 0, len(categories)),
		Goods:      make([]feed.Good, 0, len(listings)),
	}
	for _, c := range categories {
		doc.Categories = append(doc.Categories, feed.Category{ID: c.ID, Name: c.Name})
	}
	for _, l := range listings {
		params := make(feed.Parameters, len(l.Parameters))
		for _, p := range l.Parameters {
			params[p.Parameter.Name] = p.Value
		}
		doc.Goods = append(doc.Goods, feed.Good{
			ID:         l.ExternalID,
			Category:   l.Product.CategoryID,
			Model:      l.Model,
			Name:       l.Product.Name,
			Price:      feed.NewPrice(l.Price),
			PriceRRC:   feed.NewPrice(l.PriceRRC),
			Quantity:   l.Quantity,
			Parameters: params,
		})
	}
	return doc, nil
}
