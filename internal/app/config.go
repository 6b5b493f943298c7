package app

import (
	"os"
	"strconv"
	"time"
)

// StorageDriver выбирает реализацию хранилища заказов и outbox.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	// RedisAddr — durable-хранилище корзин; пустое значение включает in-memory.
	RedisAddr     string
	RedisPassword string

	// KafkaBrokers — список брокеров через запятую; пусто — без Kafka.
	KafkaBrokers string

	// GatewayBaseURL — базовый URL платёжного шлюза; пусто — mock-шлюз.
	GatewayBaseURL string
	GatewayAPIKey  string

	JWTSecret string
	JWTExpiry time.Duration

	Currency       string
	RequestTimeout time.Duration

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
}

// DefaultConfig возвращает настройки для локального запуска без внешних систем.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		JWTSecret:           "dev-secret",
		JWTExpiry:           24 * time.Hour,
		Currency:            "USD",
		RequestTimeout:      15 * time.Second,
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    500 * time.Millisecond,
	}
}

// ConfigFromEnv читает настройки из окружения поверх значений по умолчанию.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	cfg.HTTPAddr = getEnv("STOREFRONT_HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = getEnv("STOREFRONT_METRICS_ADDR", cfg.MetricsAddr)

	cfg.PostgresDSN = getEnv("STOREFRONT_POSTGRES_DSN", cfg.PostgresDSN)
	if cfg.PostgresDSN != "" {
		cfg.StorageDriver = StorageDriverPostgres
	}
	cfg.PostgresAutoMigrate = getEnvBool("STOREFRONT_POSTGRES_AUTO_MIGRATE", cfg.PostgresAutoMigrate)

	cfg.RedisAddr = getEnv("STOREFRONT_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("STOREFRONT_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.KafkaBrokers = getEnv("STOREFRONT_KAFKA_BROKERS", cfg.KafkaBrokers)

	cfg.GatewayBaseURL = getEnv("STOREFRONT_GATEWAY_URL", cfg.GatewayBaseURL)
	cfg.GatewayAPIKey = getEnv("STOREFRONT_GATEWAY_API_KEY", cfg.GatewayAPIKey)

	cfg.JWTSecret = getEnv("STOREFRONT_JWT_SECRET", cfg.JWTSecret)
	cfg.JWTExpiry = getEnvDuration("STOREFRONT_JWT_EXPIRY", cfg.JWTExpiry)

	cfg.Currency = getEnv("STOREFRONT_CURRENCY", cfg.Currency)
	cfg.RequestTimeout = getEnvDuration("STOREFRONT_REQUEST_TIMEOUT", cfg.RequestTimeout)

	cfg.OutboxPollInterval = getEnvDuration("STOREFRONT_OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.OutboxBatchSize = getEnvInt("STOREFRONT_OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxMaxAttempts = getEnvInt("STOREFRONT_OUTBOX_MAX_ATTEMPTS", cfg.OutboxMaxAttempts)
	cfg.OutboxRetryDelay = getEnvDuration("STOREFRONT_OUTBOX_RETRY_DELAY", cfg.OutboxRetryDelay)

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
