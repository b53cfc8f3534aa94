package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tablepoints/tablepoints-backend/api/routes"
	"github.com/tablepoints/tablepoints-backend/internal/customers"
	"github.com/tablepoints/tablepoints-backend/internal/ledger"
	"github.com/tablepoints/tablepoints-backend/internal/membercode"
	"github.com/tablepoints/tablepoints-backend/internal/notifications"
	"github.com/tablepoints/tablepoints-backend/internal/realtime"
	"github.com/tablepoints/tablepoints-backend/pkg/config"
	"github.com/tablepoints/tablepoints-backend/pkg/db"
	"github.com/tablepoints/tablepoints-backend/pkg/email"
	"github.com/tablepoints/tablepoints-backend/pkg/logger"
	"github.com/tablepoints/tablepoints-backend/pkg/metrics"
	"github.com/tablepoints/tablepoints-backend/pkg/migrate"
	"github.com/tablepoints/tablepoints-backend/pkg/push"
	"github.com/tablepoints/tablepoints-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	loyaltyMetrics := metrics.NewLoyaltyMetrics(prometheus.DefaultRegisterer)
	hub := realtime.NewHub(realtime.DefaultBuffer)

	customersRepo := customers.NewRepository(dbClient.DB())
	ledgerRepo := ledger.NewRepository(dbClient.DB())

	ledgerService, err := ledger.NewService(ledgerRepo, customersRepo, hub, loyaltyMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	allocator, err := membercode.NewAllocator(customersRepo, loyaltyMetrics, cfg.Loyalty.MemberCodeAttempts)
	if err != nil {
		logg.Error(context.Background(), "failed to create member code allocator", err)
		os.Exit(1)
	}

	var mailer email.Mailer
	if m := email.NewSendgridMailer(cfg.Sendgrid); m != nil {
		mailer = m
	} else {
		logg.Warn(context.Background(), "sendgrid not configured, welcome emails disabled")
	}

	customersService, err := customers.NewService(customersRepo, ledgerService, allocator, dbClient, hub, mailer, logg, cfg.Loyalty)
	if err != nil {
		logg.Error(context.Background(), "failed to create customer service", err)
		os.Exit(1)
	}

	var pushSender push.Sender
	if cfg.Push.Configured() {
		sender, senderErr := push.NewWebPushSender(cfg.Push)
		if senderErr != nil {
			logg.Error(context.Background(), "failed to create push sender", senderErr)
			os.Exit(1)
		}
		pushSender = sender
	} else {
		logg.Warn(context.Background(), "vapid keys not configured, push delivery disabled")
	}

	notificationsService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()), pushSender, logg, loyaltyMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:        cfg,
			Logger:        logg,
			DBPinger:      dbClient,
			RedisClient:   redisClient,
			Customers:     customersService,
			Ledger:        ledgerService,
			Notifications: notificationsService,
			Events:        hub,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
