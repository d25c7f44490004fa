package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dejobratic/storefront/internal/checkout/adapters/memory"
	"github.com/dejobratic/storefront/internal/checkout/adapters/postgres"
	checkoutredis "github.com/dejobratic/storefront/internal/checkout/adapters/redis"
	"github.com/dejobratic/storefront/internal/checkout/domain"
	"github.com/dejobratic/storefront/internal/checkout/ports"
	"github.com/dejobratic/storefront/internal/config"
	"github.com/dejobratic/storefront/internal/database"
	idemmemory "github.com/dejobratic/storefront/internal/idempotency/memory"
	idempostgres "github.com/dejobratic/storefront/internal/idempotency/postgres"
	"github.com/dejobratic/storefront/internal/kafka"
	"github.com/dejobratic/storefront/internal/payment/mpesa"
)

// demoCatalog stocks the in-memory inventory so the API is usable without a database.
var demoCatalog = []struct {
	product domain.Product
	stock   int
}{
	{domain.Product{ID: "kiondo-basket", Name: "Kiondo basket", Price: 3500}, 25},
	{domain.Product{ID: "maasai-shuka", Name: "Maasai shuka", Price: 1800}, 40},
	{domain.Product{ID: "kikoi", Name: "Kikoi", Price: 1200}, 60},
	{domain.Product{ID: "soapstone-bowl", Name: "Kisii soapstone bowl", Price: 2400}, 15},
}

type storage struct {
	orders      ports.OrderRepository
	inventory   ports.InventoryStore
	catalog     ports.ProductCatalog
	addresses   ports.AddressRepository
	idempotency ports.IdempotencyStore
	ready       func(ctx context.Context) error
	close       func()
}

func openStorage(ctx context.Context, cfg *config.Config, metrics *database.Metrics, logger *slog.Logger) (*storage, error) {
	if cfg.Database.Driver == config.StorageMemory {
		logger.Warn("using in-memory storage; orders are lost on restart")
		inventory := memory.NewInventory()
		for _, item := range demoCatalog {
			inventory.AddProduct(item.product, item.stock)
		}
		return &storage{
			orders:      memory.NewOrderRepository(),
			inventory:   inventory,
			catalog:     inventory,
			addresses:   memory.NewAddressRepository(),
			idempotency: idemmemory.NewStore(),
			ready:       func(context.Context) error { return nil },
			close:       func() {},
		}, nil
	}

	if cfg.Database.AutoMigrate {
		logger.Info("running database migrations")
		if err := database.RunMigrations(cfg.Database.URL); err != nil {
			return nil, err
		}
		logger.Info("migrations completed successfully")
	}

	pool, err := database.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}

	inventory := postgres.NewInventory(pool, metrics)
	return &storage{
		orders:      postgres.NewOrderRepository(pool, metrics),
		inventory:   inventory,
		catalog:     inventory,
		addresses:   postgres.NewAddressRepository(pool, metrics),
		idempotency: idempostgres.NewStore(pool, metrics),
		ready: func(ctx context.Context) error {
			return database.CheckHealth(ctx, pool)
		},
		close: pool.Close,
	}, nil
}

// openCartRepository persists carts in redis when an address is configured and in
// process memory otherwise.
func openCartRepository(ctx context.Context, cfg config.RedisConfig, metrics *database.Metrics, logger *slog.Logger) (ports.CartRepository, func(), error) {
	if cfg.Addr == "" {
		logger.Warn("REDIS_ADDR is empty; carts are kept in memory")
		return memory.NewCartRepository(), func() {}, nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}

	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close redis client", "error", err)
		}
	}
	return checkoutredis.NewCartRepository(client, cfg.CartTTL, metrics), closeFn, nil
}

func openEventBus(cfg config.KafkaConfig, metrics *kafka.Metrics, logger *slog.Logger) (ports.EventBus, func()) {
	if len(cfg.Brokers) == 0 {
		logger.Info("no kafka brokers configured; events are only logged")
		return kafka.NewNoopEventBus(logger), func() {}
	}

	bus := kafka.NewEventBus(kafka.NewWriter(cfg.Brokers, cfg.Topic), cfg.Topic, metrics)
	return bus, func() {
		if err := bus.Close(); err != nil {
			logger.Error("failed to close kafka writer", "error", err)
		}
	}
}

func newPaymentGateway(cfg config.PaymentConfig, logger *slog.Logger) ports.PaymentGateway {
	if cfg.Simulated() {
		logger.Warn("MPESA_STK_PUSH_URL is empty; payment prompts are simulated")
		return mpesa.NewSimulator(cfg.CountryCode, logger)
	}

	return mpesa.NewClient(mpesa.Config{
		InitiateURL:         cfg.InitiateURL,
		QueryURL:            cfg.QueryURL,
		CallbackURL:         cfg.CallbackURL,
		APIKey:              cfg.APIKey,
		TillNumber:          cfg.TillNumber,
		CountryCode:         cfg.CountryCode,
		Timeout:             cfg.RequestTimeout,
		BreakerMaxFailures:  cfg.BreakerMaxFailures,
		BreakerOpenDuration: cfg.BreakerOpenDuration,
	}, &http.Client{Timeout: cfg.RequestTimeout}, logger)
}
