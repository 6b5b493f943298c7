package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	redisclient "github.com/redis/go-redis/v9"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Gateway       domain.PaymentGateway
	Orders        domain.OrderPersistence
	CartPersister domain.CartPersister
	OutboxRepo    domain.OutboxRepository
	TimelineRepo  domain.TimelineRepository
	Metrics       *metrics.CheckoutMetrics
	Logger        *log.Entry

	pgStore     *postgres.Store
	redisClient *redisclient.Client
}

// NewDependencies создаёт in-memory зависимости с mock-шлюзом.
// Используется в тестах и при запуске без внешних систем.
func NewDependencies(logger *log.Entry) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	return &Dependencies{
		Gateway:       payment.NewMockGateway(),
		Orders:        memory.NewOrderRecorder(),
		CartPersister: memory.NewCartPersister(),
		OutboxRepo:    memory.NewOutboxRepository(),
		TimelineRepo:  memory.NewTimelineRepository(),
		Metrics:       metrics.NewCheckoutMetrics(),
		Logger:        logger,
	}
}

// Close освобождает подключения к внешним системам.
func (d *Dependencies) Close() {
	if d.redisClient != nil {
		if err := d.redisClient.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close redis client")
		}
	}
	if d.pgStore != nil {
		if err := d.pgStore.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}
