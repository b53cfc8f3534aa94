package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tablepoints/tablepoints-backend/api/controllers"
	"github.com/tablepoints/tablepoints-backend/api/middleware"
	"github.com/tablepoints/tablepoints-backend/internal/customers"
	"github.com/tablepoints/tablepoints-backend/internal/ledger"
	"github.com/tablepoints/tablepoints-backend/internal/notifications"
	"github.com/tablepoints/tablepoints-backend/pkg/config"
	"github.com/tablepoints/tablepoints-backend/pkg/logger"
	"github.com/tablepoints/tablepoints-backend/pkg/redis"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	DBPinger      controllers.Pinger
	RedisClient   *redis.Client
	Customers     customers.Service
	Ledger        ledger.Service
	Notifications notifications.Service
	Events        controllers.EventStream
	Metrics       http.Handler
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	// A nil *redis.Client stored in an interface is not a nil interface, so
	// resolve the optional stores up front.
	var redisPinger controllers.Pinger
	var idempotencyStore middleware.IdempotencyStore
	var limiterStore middleware.RateLimiterStore
	if deps.RedisClient != nil {
		redisPinger = deps.RedisClient
		idempotencyStore = deps.RedisClient
		limiterStore = deps.RedisClient
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DBPinger, redisPinger))
	})

	metricsHandler := deps.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Get("/api/public/ping", controllers.PublicPing())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/v1/customers", func(r chi.Router) {
			r.Post("/", controllers.CustomerRegister(deps.Customers, logg))
			r.Get("/search", controllers.CustomerSearch(deps.Customers, logg))
			r.Route("/{customerId}", func(r chi.Router) {
				r.Get("/", controllers.CustomerGet(deps.Customers, logg))
				r.Delete("/", controllers.CustomerDelete(deps.Customers, logg))
				r.Get("/balance", controllers.CustomerBalance(deps.Ledger, logg))
				r.Get("/transactions", controllers.CustomerTransactions(deps.Ledger, logg))
			})
		})

		r.Post("/v1/transactions", controllers.TransactionCreate(deps.Ledger, logg))

		r.Route("/v1/restaurants/{restaurantId}", func(r chi.Router) {
			r.Get("/feed", controllers.RestaurantFeed(deps.Ledger, cfg.Loyalty, logg))
			r.Get("/events", controllers.RestaurantEvents(deps.Events, logg))
		})

		r.Route("/v1/notifications", func(r chi.Router) {
			r.Put("/permission", controllers.NotificationPermissionUpsert(deps.Notifications, logg))
			r.With(middleware.NotifyRateLimit(cfg.RateLimit, limiterStore, logg)).
				Post("/send", controllers.NotificationSend(deps.Notifications, logg))
		})
	})

	return r
}
