package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/orderdesk-backend/api/controllers"
	"github.com/angelmondragon/orderdesk-backend/api/middleware"
	"github.com/angelmondragon/orderdesk-backend/internal/auth"
	"github.com/angelmondragon/orderdesk-backend/internal/catalog"
	"github.com/angelmondragon/orderdesk-backend/internal/contacts"
	"github.com/angelmondragon/orderdesk-backend/internal/orders"
	"github.com/angelmondragon/orderdesk-backend/internal/tasks"
	"github.com/angelmondragon/orderdesk-backend/internal/users"
	"github.com/angelmondragon/orderdesk-backend/pkg/auth/session"
	"github.com/angelmondragon/orderdesk-backend/pkg/config"
	"github.com/angelmondragon/orderdesk-backend/pkg/enums"
	"github.com/angelmondragon/orderdesk-backend/pkg/logger"
	"github.com/angelmondragon/orderdesk-backend/pkg/metrics"
)

type sessionManager interface {
	session.SessionChecker
	controllers.SessionRevoker
}

// Params bundles everything the router hands to controllers.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	Sessions sessionManager

	Auth     auth.Service
	Users    users.Service
	Contacts contacts.Service
	Catalog  catalog.Service
	Orders   orders.Service
	Tasks    tasks.Service

	// Readiness lists dependencies pinged by /health/ready.
	Readiness map[string]controllers.Pinger

	// Gatherer backs /metrics; HTTPMetrics records per-route traffic. Both
	// are optional.
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(p.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Readiness))
	})
	if p.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	authenticate := middleware.Auth(cfg.JWT, p.Sessions, logg)
	buyer := middleware.RequireUserType(enums.UserTypeBuyer, logg)
	shop := middleware.RequireUserType(enums.UserTypeShop, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/user", func(r chi.Router) {
			r.Post("/register", controllers.UserRegister(p.Auth, logg))
			r.Post("/register/confirm", controllers.UserConfirm(p.Auth, logg))
			r.Post("/login", controllers.UserLogin(p.Auth, logg))
			r.Post("/password_reset", controllers.UserPasswordReset(p.Auth, logg))
			r.Post("/password_reset/confirm", controllers.UserPasswordResetConfirm(p.Auth, logg))

			r.Group(func(r chi.Router) {
				r.Use(authenticate)
				r.Post("/logout", controllers.UserLogout(p.Sessions, logg))
				r.Get("/details", controllers.UserDetails(p.Users, logg))
				r.Post("/details", controllers.UserUpdateDetails(p.Users, logg))
				r.Get("/contact", controllers.ContactList(p.Contacts, logg))
				r.Post("/contact", controllers.ContactCreate(p.Contacts, logg))
				r.Put("/contact", controllers.ContactUpdate(p.Contacts, logg))
				r.Delete("/contact", controllers.ContactDelete(p.Contacts, logg))
			})
		})

		r.Get("/categories", controllers.CategoryList(p.Catalog, logg))
		r.Get("/shops", controllers.ShopList(p.Catalog, logg))
		r.Get("/products", controllers.ProductSearch(p.Catalog, logg))

		r.Group(func(r chi.Router) {
			r.Use(authenticate, buyer)
			r.Get("/basket", controllers.BasketGet(p.Orders, logg))
			r.Post("/basket", controllers.BasketAdd(p.Orders, logg))
			r.Put("/basket", controllers.BasketUpdate(p.Orders, logg))
			r.Delete("/basket", controllers.BasketDelete(p.Orders, logg))
			r.Get("/order", controllers.OrderList(p.Orders, logg))
			r.Post("/order", controllers.OrderPlace(p.Orders, logg))
		})

		r.Route("/partner", func(r chi.Router) {
			r.Use(authenticate, shop)
			r.Post("/update", controllers.PartnerUpdate(p.Tasks, logg))
			r.Get("/export", controllers.PartnerExport(p.Tasks, logg))
			r.Get("/state", controllers.PartnerState(p.Catalog, logg))
			r.Post("/state", controllers.PartnerSetState(p.Catalog, logg))
			r.Get("/orders", controllers.PartnerOrders(p.Orders, logg))
			r.Put("/orders", controllers.PartnerSetOrderState(p.Orders, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Get("/results", controllers.TaskResult(p.Tasks, logg))
			r.Get("/results/{task_id}", controllers.TaskResult(p.Tasks, logg))
		})
	})

	return r
}
