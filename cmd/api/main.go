// SkyRoute Bookings Service
//
// This is the main entry point for the booking payment orchestrator. It
// wires up all dependencies, starts the HTTP server and the background
// workers, and shuts everything down together on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/skyroute/skyroute-bookings/config"
	"github.com/skyroute/skyroute-bookings/internal/api"
	"github.com/skyroute/skyroute-bookings/internal/booking"
	"github.com/skyroute/skyroute-bookings/internal/platform/postgres"
	"github.com/skyroute/skyroute-bookings/internal/platform/redishold"
	"github.com/skyroute/skyroute-bookings/internal/platform/travelapi"
	"github.com/skyroute/skyroute-bookings/internal/pricing"
	"github.com/skyroute/skyroute-bookings/internal/worker"
)

func main() {
	cfg := config.Load()

	logger := newLogger(cfg.Log.Level)
	logger.Info("starting skyroute bookings service")

	if err := validateConfig(cfg, logger); err != nil {
		logger.WithError(err).Fatal("configuration error")
	}

	// Infrastructure layer
	db, err := postgres.Connect(cfg.Database.DSN(), logger)
	if err != nil {
		logger.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.WithError(err).Fatal("redis connection failed")
	}
	defer redisClient.Close()

	provider := travelapi.NewClient(cfg.Provider.BaseURL, cfg.Provider.Token, logger)
	attempts := postgres.NewAttemptRepository(db)
	reconciliations := postgres.NewReconciliationRepository(db)
	offerCache := redishold.NewOfferCache(redisClient)
	limiter := redishold.NewRateLimiter(redisClient, int64(cfg.Booking.RateLimit), time.Minute)

	// Service layer
	engine := pricing.NewEngine(pricing.DefaultConfig())
	guard := pricing.NewAmountGuard(pricing.DefaultGuardConfig(), logger)
	verifier := booking.NewOfferVerifier(provider, nil, logger)
	intents := booking.NewPaymentIntentManager(provider, logger)
	confirmer := booking.NewPaymentConfirmer(provider, logger)
	orders := booking.NewOrderCreator(provider, logger)

	orchestrator := booking.NewOrchestrator(
		engine, guard, verifier, intents, confirmer, orders,
		attempts, reconciliations, cfg.Booking.AttemptTTL, nil, logger,
	)

	// API layer
	handler := api.NewHandler(orchestrator, provider, offerCache, cfg.Booking.OfferCacheTTL, logger)
	router := api.SetupRouter(handler, limiter, logger, cfg.Server.GinMode)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.WithField("addr", server.Addr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		worker.NewExpirer(attempts, time.Minute, logger).Run(ctx)
		return nil
	})

	group.Go(func() error {
		worker.NewSweeper(reconciliations, 5*time.Minute, logger).Run(ctx)
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.WithError(err).Fatal("service exited with error")
	}
	logger.Info("service stopped")
}

// newLogger builds the JSON logger shared across the service.
func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

// validateConfig checks that required configuration values are set.
func validateConfig(cfg *config.Config, logger *logrus.Logger) error {
	if cfg.Provider.BaseURL == "" {
		return fmt.Errorf("PROVIDER_BASE_URL is required")
	}
	if cfg.Provider.Token == "" {
		logger.Warn("PROVIDER_API_TOKEN not set")
	}
	if cfg.Database.Password == "" {
		logger.Warn("DB_PASSWORD not set")
	}
	return nil
}
