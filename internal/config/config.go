package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures runtime configuration for the storefront API.
type Config struct {
	HTTP      HTTPConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Telemetry TelemetryConfig
	Service   ServiceConfig
	Auth      AuthConfig
	Payment   PaymentConfig
	Checkout  CheckoutConfig
}

type HTTPConfig struct {
	Port          int
	ShutdownGrace int
}

// StorageDriver selects the persistence backend for orders, inventory and addresses.
type StorageDriver string

const (
	StoragePostgres StorageDriver = "postgres"
	StorageMemory   StorageDriver = "memory"
)

type DatabaseConfig struct {
	Driver      StorageDriver
	URL         string
	AutoMigrate bool
}

type RedisConfig struct {
	// Addr is empty when carts should only live in memory.
	Addr     string
	Password string
	DB       int
	CartTTL  time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type TelemetryConfig struct {
	LogLevel      string
	OTelEndpoint  string
	OTelInsecure  bool
	EnableTracing bool
	EnableMetrics bool
	SampleRate    float64
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

type AuthConfig struct {
	// JWTSecret is empty in development, where the X-Customer-ID header is trusted.
	JWTSecret string
	Issuer    string
}

type PaymentConfig struct {
	// InitiateURL is empty when the built-in simulator should acknowledge prompts.
	InitiateURL         string
	QueryURL            string
	CallbackURL         string
	APIKey              string
	TillNumber          string
	CountryCode         string
	RequestTimeout      time.Duration
	BreakerMaxFailures  uint32
	BreakerOpenDuration time.Duration
}

// Simulated reports whether no provider endpoint is configured.
func (p PaymentConfig) Simulated() bool {
	return p.InitiateURL == ""
}

type CheckoutConfig struct {
	ResendCooldown      time.Duration
	ConfirmationTimeout time.Duration
	PollInterval        time.Duration
	ReconcileInterval   time.Duration
	ManualConfirmation  string
}

const (
	defaultHTTPPort            = 8080
	defaultShutdownGrace       = 15
	defaultAutoMigrate         = true
	defaultServiceName         = "storefront-api"
	defaultServiceVersion      = "0.1.0"
	defaultEnvironment         = "development"
	defaultLogLevel            = "info"
	defaultOTelSampleRate      = 1.0
	defaultKafkaTopic          = "storefront.checkout"
	defaultCartTTL             = 30 * 24 * time.Hour
	defaultCountryCode         = "254"
	defaultPaymentTimeout      = 15 * time.Second
	defaultBreakerMaxFailures  = 5
	defaultBreakerOpenDuration = 30 * time.Second
	defaultResendCooldown      = 60 * time.Second
	defaultConfirmationTimeout = 5 * time.Minute
	defaultPollInterval        = 10 * time.Second
	defaultReconcileInterval   = time.Minute
	defaultManualConfirmation  = "provisional"
)

// Load reads configuration from environment variables, applying defaults when needed.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	httpCfg, err := loadHTTPConfig()
	if err != nil {
		return nil, fmt.Errorf("loading HTTP config: %w", err)
	}

	dbCfg, err := loadDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("loading database config: %w", err)
	}

	redisCfg, err := loadRedisConfig()
	if err != nil {
		return nil, fmt.Errorf("loading redis config: %w", err)
	}

	telCfg, err := loadTelemetryConfig()
	if err != nil {
		return nil, fmt.Errorf("loading telemetry config: %w", err)
	}

	paymentCfg, err := loadPaymentConfig()
	if err != nil {
		return nil, fmt.Errorf("loading payment config: %w", err)
	}

	checkoutCfg, err := loadCheckoutConfig()
	if err != nil {
		return nil, fmt.Errorf("loading checkout config: %w", err)
	}

	return &Config{
		HTTP:      httpCfg,
		Database:  dbCfg,
		Redis:     redisCfg,
		Kafka:     loadKafkaConfig(),
		Telemetry: telCfg,
		Service:   loadServiceConfig(),
		Auth:      loadAuthConfig(),
		Payment:   paymentCfg,
		Checkout:  checkoutCfg,
	}, nil
}

func loadHTTPConfig() (HTTPConfig, error) {
	port, err := getIntEnv("API_HTTP_PORT", defaultHTTPPort)
	if err != nil {
		return HTTPConfig{}, err
	}

	shutdownGrace, err := getIntEnv("API_SHUTDOWN_GRACE_SECONDS", defaultShutdownGrace)
	if err != nil {
		return HTTPConfig{}, err
	}

	return HTTPConfig{
		Port:          port,
		ShutdownGrace: shutdownGrace,
	}, nil
}

func loadDatabaseConfig() (DatabaseConfig, error) {
	driver := StorageDriver(strings.ToLower(getEnvOrDefault("STORAGE_DRIVER", string(StoragePostgres))))
	if driver != StoragePostgres && driver != StorageMemory {
		return DatabaseConfig{}, fmt.Errorf("invalid STORAGE_DRIVER %q", driver)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = buildDatabaseURL()
	}

	return DatabaseConfig{
		Driver:      driver,
		URL:         databaseURL,
		AutoMigrate: getBoolEnv("AUTO_MIGRATE", defaultAutoMigrate),
	}, nil
}

func loadRedisConfig() (RedisConfig, error) {
	db, err := getIntEnv("REDIS_DB", 0)
	if err != nil {
		return RedisConfig{}, err
	}

	ttl, err := getDurationEnv("REDIS_CART_TTL", defaultCartTTL)
	if err != nil {
		return RedisConfig{}, err
	}

	return RedisConfig{
		Addr:     os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		CartTTL:  ttl,
	}, nil
}

func loadKafkaConfig() KafkaConfig {
	var brokers []string
	if value, ok := os.LookupEnv("KAFKA_BROKERS"); ok && value != "" {
		for _, broker := range strings.Split(value, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				brokers = append(brokers, broker)
			}
		}
	}

	return KafkaConfig{
		Brokers: brokers,
		Topic:   getEnvOrDefault("KAFKA_TOPIC", defaultKafkaTopic),
	}
}

func loadTelemetryConfig() (TelemetryConfig, error) {
	sampleRate := defaultOTelSampleRate
	if value, ok := os.LookupEnv("OTEL_SAMPLE_RATE"); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return TelemetryConfig{}, fmt.Errorf("invalid OTEL_SAMPLE_RATE: %w", err)
		}
		sampleRate = parsed
	}

	endpoint := getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	return TelemetryConfig{
		LogLevel:      getEnvOrDefault("LOG_LEVEL", defaultLogLevel),
		OTelEndpoint:  endpoint,
		OTelInsecure:  getBoolEnv("OTEL_EXPORTER_OTLP_INSECURE", true),
		EnableTracing: getBoolEnv("OTEL_ENABLE_TRACING", endpoint != ""),
		EnableMetrics: getBoolEnv("OTEL_ENABLE_METRICS", endpoint != ""),
		SampleRate:    sampleRate,
	}, nil
}

func loadServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:        getEnvOrDefault("API_SERVICE_NAME", defaultServiceName),
		Version:     getEnvOrDefault("SERVICE_VERSION", defaultServiceVersion),
		Environment: getEnvOrDefault("ENVIRONMENT", defaultEnvironment),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret: os.Getenv("AUTH_JWT_SECRET"),
		Issuer:    os.Getenv("AUTH_JWT_ISSUER"),
	}
}

func loadPaymentConfig() (PaymentConfig, error) {
	timeout, err := getDurationEnv("MPESA_REQUEST_TIMEOUT", defaultPaymentTimeout)
	if err != nil {
		return PaymentConfig{}, err
	}

	maxFailures, err := getIntEnv("MPESA_BREAKER_MAX_FAILURES", defaultBreakerMaxFailures)
	if err != nil {
		return PaymentConfig{}, err
	}
	if maxFailures < 1 {
		return PaymentConfig{}, fmt.Errorf("MPESA_BREAKER_MAX_FAILURES must be positive")
	}

	openDuration, err := getDurationEnv("MPESA_BREAKER_OPEN_DURATION", defaultBreakerOpenDuration)
	if err != nil {
		return PaymentConfig{}, err
	}

	return PaymentConfig{
		InitiateURL:         os.Getenv("MPESA_STK_PUSH_URL"),
		QueryURL:            os.Getenv("MPESA_STK_QUERY_URL"),
		CallbackURL:         os.Getenv("MPESA_CALLBACK_URL"),
		APIKey:              os.Getenv("MPESA_API_KEY"),
		TillNumber:          os.Getenv("MPESA_TILL_NUMBER"),
		CountryCode:         getEnvOrDefault("MPESA_COUNTRY_CODE", defaultCountryCode),
		RequestTimeout:      timeout,
		BreakerMaxFailures:  uint32(maxFailures),
		BreakerOpenDuration: openDuration,
	}, nil
}

func loadCheckoutConfig() (CheckoutConfig, error) {
	cooldown, err := getDurationEnv("CHECKOUT_RESEND_COOLDOWN", defaultResendCooldown)
	if err != nil {
		return CheckoutConfig{}, err
	}

	timeout, err := getDurationEnv("CHECKOUT_CONFIRMATION_TIMEOUT", defaultConfirmationTimeout)
	if err != nil {
		return CheckoutConfig{}, err
	}

	poll, err := getDurationEnv("CHECKOUT_POLL_INTERVAL", defaultPollInterval)
	if err != nil {
		return CheckoutConfig{}, err
	}

	reconcile, err := getDurationEnv("CHECKOUT_RECONCILE_INTERVAL", defaultReconcileInterval)
	if err != nil {
		return CheckoutConfig{}, err
	}

	manual := strings.ToLower(getEnvOrDefault("CHECKOUT_MANUAL_CONFIRMATION", defaultManualConfirmation))
	if manual != "provisional" && manual != "disabled" {
		return CheckoutConfig{}, fmt.Errorf("invalid CHECKOUT_MANUAL_CONFIRMATION %q", manual)
	}

	return CheckoutConfig{
		ResendCooldown:      cooldown,
		ConfirmationTimeout: timeout,
		PollInterval:        poll,
		ReconcileInterval:   reconcile,
		ManualConfirmation:  manual,
	}, nil
}

func buildDatabaseURL() string {
	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "postgres")
	password := getEnvOrDefault("DB_PASSWORD", "postgres")
	dbName := getEnvOrDefault("DB_NAME", "storefront")
	sslMode := getEnvOrDefault("DB_SSLMODE", "disable")

	maxConns := getEnvOrDefault("DB_MAX_CONNS", "25")
	minConns := getEnvOrDefault("DB_MIN_CONNS", "5")
	maxLifetime := getEnvOrDefault("DB_MAX_CONN_LIFETIME", "5m")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%s&pool_min_conns=%s&pool_max_conn_lifetime=%s",
		user, password, host, port, dbName, sslMode, maxConns, minConns, maxLifetime,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		return value == "true"
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return parsed, nil
}
