package domain

import (
	"context"
	"time"
)

// PaymentGateway описывает взаимодействие с внешним платёжным шлюзом.
type PaymentGateway interface {
	// CreateIntent создаёт платёжное намерение. Повторный вызов с тем же
	// idempotencyKey обязан вернуть тот же intent, а не второй списываемый.
	CreateIntent(ctx context.Context, amountMinor int64, currency, idempotencyKey string) (PaymentIntent, error)
	// Confirm отправляет подтверждение платежа. Никогда не повторяется
	// внутри клиента: двойное подтверждение рискует двойным списанием.
	Confirm(ctx context.Context, intentRef string, details PaymentMethodDetails) (ConfirmationOutcome, error)
}

// OrderPersistence записывает финализированный заказ.
type OrderPersistence interface {
	// CreateOrder сохраняет заказ и возвращает его ссылку.
	CreateOrder(ctx context.Context, order Order) (string, error)
}

// CartPersister — durable-хранилище корзины одной пользовательской сессии.
// Запись выполняется синхронно на каждой мутации CartStore.
type CartPersister interface {
	Save(ctx context.Context, userID string, snapshot CartSnapshot) error
	// Load возвращает сохранённый снимок; ok=false — снимка нет или он нечитаем.
	Load(ctx context.Context, userID string) (snapshot CartSnapshot, ok bool, err error)
	Delete(ctx context.Context, userID string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// TimelineRepository хранит события жизненного цикла checkout-сессии.
type TimelineRepository interface {
	Append(event TimelineEvent) error
	List(sessionID string) ([]TimelineEvent, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
