package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"github.com/StefanPetk0vic/Locus/internal/app"
	"github.com/StefanPetk0vic/Locus/internal/auth"
	"github.com/StefanPetk0vic/Locus/internal/config"
	"github.com/StefanPetk0vic/Locus/internal/domain"
	"github.com/StefanPetk0vic/Locus/internal/events"
	"github.com/StefanPetk0vic/Locus/internal/gateway"
	"github.com/StefanPetk0vic/Locus/internal/handler"
	"github.com/StefanPetk0vic/Locus/internal/logger"
	"github.com/StefanPetk0vic/Locus/internal/notify"
	internalRedis "github.com/StefanPetk0vic/Locus/internal/redis"
	"github.com/StefanPetk0vic/Locus/internal/repository/postgres"
	"github.com/StefanPetk0vic/Locus/internal/service"
)

func main() {
	// Load configuration.
	cfg := config.Load()
	log := logger.New("locus", cfg.LogLevel)

	if cfg.Auth.JWTSecret == "" {
		log.Error("startup_failed", "action", "config", "error", "JWT_SECRET is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.Warn("newrelic_init_failed", "action", "startup", "error", err)
		} else {
			log.Info("newrelic_enabled", "action", "startup", "app", cfg.NewRelic.AppName)
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp, log)
	if err != nil {
		log.Error("startup_failed", "action", "connect_postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("postgres_connected", "action", "startup")

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.Error("startup_failed", "action", "connect_redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	log.Info("redis_connected", "action", "startup")

	publisher, closePublisher := newPublisher(cfg.RabbitMQ, log)
	defer closePublisher()

	w := wireServer(db, redisClient, publisher, nrApp, cfg, log)

	// Start server in goroutine.
	go func() {
		log.Info("server_starting", "action", "startup", "port", cfg.Server.Port)
		if err := w.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server_failed", "action", "serve", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("server_stopping", "action", "shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := w.server.Shutdown(shutdownCtx); err != nil {
		log.Error("server_forced_shutdown", "action", "shutdown", "error", err)
	}
	w.hub.Close()
	w.dispatch.Close()
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	log.Info("server_exited", "action", "shutdown")
}

// newPublisher connects to RabbitMQ, or returns a logging stand-in when no
// broker is configured or it cannot be reached.
func newPublisher(cfg config.RabbitMQConfig, log *slog.Logger) (service.Publisher, func()) {
	if cfg.URL == "" {
		log.Info("events_disabled", "action", "startup")
		return events.Discard{Log: log}, func() {}
	}

	p, err := events.Dial(cfg.URL, cfg.Exchange, log)
	if err != nil {
		log.Warn("events_unavailable", "action", "startup", "error", err)
		return events.Discard{Log: log}, func() {}
	}
	log.Info("rabbitmq_connected", "action", "startup", "exchange", cfg.Exchange)
	return p, func() { _ = p.Close() }
}

type wired struct {
	server   *http.Server
	hub      *notify.Hub
	dispatch *service.DispatchService
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(
	db *sql.DB,
	redisClient *redis.Client,
	publisher service.Publisher,
	nrApp *newrelic.Application,
	cfg *config.Config,
	log *slog.Logger,
) wired {
	tokens := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	// Initialize Redis stores.
	locationStore := internalRedis.NewLocationStore(redisClient)
	batchStore := internalRedis.NewBatchStore(redisClient)
	throttleStore := internalRedis.NewThrottleStore(redisClient)
	presenceStore := internalRedis.NewPresenceStore(redisClient)

	// Initialize repositories.
	rideRepo := postgres.NewRideRepository(db)
	invoiceRepo := postgres.NewInvoiceRepository(db)
	accountRepo := postgres.NewAccountRepository(db)
	transactor := postgres.NewTransactor(db)

	// Initialize services.
	hub := notify.NewHub(tokens, presenceStore, log)
	notificationService := service.NewNotificationService(hub, log)

	stripe := gateway.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)
	paymentService := service.NewPaymentService(invoiceRepo, accountRepo, stripe, cfg.Stripe.Currency, log)

	dispatchService := service.NewDispatchService(
		locationStore, batchStore, rideRepo, notificationService, nrApp, log,
		service.DispatchConfig{
			MaxDrivers:     cfg.Dispatch.MaxDrivers,
			NearbyRadiusKm: cfg.Dispatch.NearbyRadiusKm,
			BatchSize:      cfg.Dispatch.BatchSize,
			BatchTTL:       cfg.Dispatch.BatchTTL,
			CascadeTimeout: cfg.Dispatch.CascadeTimeout,
		},
	)

	rideService := service.NewRideService(
		rideRepo, transactor, paymentService, dispatchService, notificationService, publisher,
		service.PricingPolicy{
			Fares:         domain.FareModel{BaseFare: cfg.Pricing.BaseFare, PerKmRate: cfg.Pricing.PerKmRate},
			AllowOverride: cfg.Pricing.AllowOverride,
		},
		log,
	)
	locationService := service.NewLocationService(locationStore, throttleStore, rideRepo, notificationService, log)

	// Initialize handlers.
	rideHandler := handler.NewRideHandler(rideService)
	driverHandler := handler.NewDriverHandler(locationService)
	paymentHandler := handler.NewPaymentHandler(paymentService)
	hub.SetMessageHandler(driverHandler.HandleSocketMessage)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		RideHandler:    rideHandler,
		DriverHandler:  driverHandler,
		PaymentHandler: paymentHandler,
		Socket:         hub,
		Tokens:         tokens,
		RedisClient:    redisClient,
		NewRelicApp:    nrApp,
		Log:            log,
	})

	// Create HTTP server.
	return wired{
		server: &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		hub:      hub,
		dispatch: dispatchService,
	}
}
