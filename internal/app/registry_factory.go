package app

import (
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/session"
)

// createSessionRegistry собирает реестр пользовательских сессий из
// общих зависимостей; Kafka producer опционален.
func createSessionRegistry(deps *Dependencies, kafkaProducer *kafka.Producer, currency string) *session.Registry {
	return session.NewRegistry(session.Dependencies{
		CartPersister: deps.CartPersister,
		Gateway:       deps.Gateway,
		Orders:        deps.Orders,
		Outbox:        deps.OutboxRepo,
		Timeline:      deps.TimelineRepo,
		Producer:      kafkaProducer,
		Metrics:       deps.Metrics,
		Currency:      currency,
		Logger:        deps.Logger,
	})
}
