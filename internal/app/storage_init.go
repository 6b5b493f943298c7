package app

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	redisclient "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	redisstorage "github.com/vladislavdragonenkov/storefront/internal/storage/redis"
)

// buildDependencies собирает зависимости согласно конфигурации: in-memory
// по умолчанию, postgres/redis/реальный шлюз — когда они настроены.
func buildDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	deps := NewDependencies(logger)

	if cfg.StorageDriver == StorageDriverPostgres {
		if err := initPostgres(ctx, cfg, deps); err != nil {
			return nil, err
		}
	}

	if cfg.RedisAddr != "" {
		if err := initRedis(ctx, cfg, deps); err != nil {
			deps.Close()
			return nil, err
		}
	}

	if cfg.GatewayBaseURL != "" {
		deps.Gateway = payment.NewClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey,
			logger.WithField("component", "payment-gateway"))
		logger.WithField("gateway_url", cfg.GatewayBaseURL).Info("payment gateway client initialized")
	} else {
		logger.Warn("gateway url is not set, using mock payment gateway")
	}

	return deps, nil
}

// initPostgres подключает заказы, outbox и timeline к PostgreSQL.
func initPostgres(ctx context.Context, cfg Config, deps *Dependencies) error {
	if cfg.PostgresDSN == "" {
		return errors.New("postgres driver selected but STOREFRONT_POSTGRES_DSN is empty")
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}

	if cfg.PostgresAutoMigrate {
		if err := store.MigrateUp(ctx, 0); err != nil {
			_ = store.Close()
			return err
		}
	}

	deps.pgStore = store
	deps.Orders = postgres.NewOrderRecorder(store)
	deps.OutboxRepo = postgres.NewOutboxRepository(store)
	deps.TimelineRepo = postgres.NewTimelineRepository(store)
	deps.Logger.Info("postgres storage initialized")
	return nil
}

// initRedis подключает durable-хранилище корзин.
func initRedis(ctx context.Context, cfg Config, deps *Dependencies) error {
	client := redisclient.NewClient(&redisclient.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return err
	}

	deps.redisClient = client
	deps.CartPersister = redisstorage.NewCartPersister(client,
		deps.Logger.WithField("component", "redis-cart-persister"))
	deps.Logger.WithField("redis_addr", cfg.RedisAddr).Info("redis cart storage initialized")
	return nil
}
