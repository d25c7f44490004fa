package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/dejobratic/storefront/internal/checkout/adapters"
	httpadapter "github.com/dejobratic/storefront/internal/checkout/adapters/http"
	"github.com/dejobratic/storefront/internal/checkout/app"
	"github.com/dejobratic/storefront/internal/checkout/metrics"
	"github.com/dejobratic/storefront/internal/config"
	"github.com/dejobratic/storefront/internal/database"
	"github.com/dejobratic/storefront/internal/kafka"
	"github.com/dejobratic/storefront/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(telemetry.ParseLevel(cfg.Telemetry.LogLevel)).With(
		"service", cfg.Service.Name,
		"environment", cfg.Service.Environment,
	)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("storefront api stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Environment:    cfg.Service.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTelEndpoint,
		Insecure:       cfg.Telemetry.OTelInsecure,
		EnableTracing:  cfg.Telemetry.EnableTracing,
		EnableMetrics:  cfg.Telemetry.EnableMetrics,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	meter := tel.Meter()
	dbMetrics, err := database.NewMetrics(meter)
	if err != nil {
		return err
	}
	kafkaMetrics, err := kafka.NewMetrics(meter)
	if err != nil {
		return err
	}
	checkoutMetrics, err := metrics.NewMetrics(meter)
	if err != nil {
		return err
	}
	httpMetrics, err := httpadapter.NewMetrics(meter)
	if err != nil {
		return err
	}

	store, err := openStorage(ctx, cfg, dbMetrics, logger)
	if err != nil {
		return err
	}
	defer store.close()

	carts, closeCarts, err := openCartRepository(ctx, cfg.Redis, dbMetrics, logger)
	if err != nil {
		return err
	}
	defer closeCarts()

	events, closeEvents := openEventBus(cfg.Kafka, kafkaMetrics, logger)
	defer closeEvents()

	service := app.NewService(app.Dependencies{
		Orders:      adapters.NewObservableRepository(store.orders),
		Inventory:   adapters.NewObservableInventory(store.inventory),
		Catalog:     store.catalog,
		Addresses:   store.addresses,
		Carts:       carts,
		Events:      adapters.NewObservableEventBus(events),
		Idempotency: store.idempotency,
		Gateway:     adapters.NewObservableGateway(newPaymentGateway(cfg.Payment, logger), checkoutMetrics),
		Logger:      logger,
		Metrics:     checkoutMetrics,
		Settings: app.Settings{
			ResendCooldown:      cfg.Checkout.ResendCooldown,
			ConfirmationTimeout: cfg.Checkout.ConfirmationTimeout,
			ManualConfirmation:  app.ManualConfirmation(cfg.Checkout.ManualConfirmation),
			CountryCode:         cfg.Payment.CountryCode,
		},
	})

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(httpadapter.WithLogging(logger))
	router.Use(middleware.Recoverer)
	router.Use(httpadapter.WithMetrics(httpMetrics))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.ready(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	auth := httpadapter.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("AUTH_JWT_SECRET is empty; trusting X-Customer-ID headers")
	}
	httpadapter.NewHandler(service, logger).Register(router, auth.Middleware)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		service.CartStore().Run(gctx)
		return nil
	})
	g.Go(func() error {
		app.NewPoller(service, cfg.Checkout.PollInterval, cfg.Checkout.ReconcileInterval, logger).Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("http server starting", "port", cfg.HTTP.Port, "storage", cfg.Database.Driver, "payment_simulated", cfg.Payment.Simulated())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownGrace)*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
			return err
		}
		logger.Info("http server stopped")
		return nil
	})

	return g.Wait()
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
