package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// CartPersister хранит снапшоты корзин в Redis как JSON без TTL:
// корзина живёт до явного удаления при logout или очистке после заказа.
type CartPersister struct {
	client *redis.Client
	logger *log.Entry
}

// NewCartPersister создаёт Redis-реализацию CartPersister.
func NewCartPersister(client *redis.Client, logger *log.Entry) *CartPersister {
	if logger == nil {
		logger = log.WithField("component", "redis-cart-persister")
	}
	return &CartPersister{
		client: client,
		logger: logger,
	}
}

// Save сериализует снапшот корзины и записывает его по ключу пользователя.
func (p *CartPersister) Save(ctx context.Context, userID string, snapshot domain.CartSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal cart snapshot: %w", err)
	}

	if err := p.client.Set(ctx, cartKey(userID), payload, 0).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}
	return nil
}

// Load читает снапшот корзины; ok=false, если ключа нет или payload повреждён.
// Повреждённый снапшот считается отсутствующим: пользователь начнёт с пустой корзины.
func (p *CartPersister) Load(ctx context.Context, userID string) (domain.CartSnapshot, bool, error) {
	data, err := p.client.Get(ctx, cartKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.CartSnapshot{}, false, nil
	}
	if err != nil {
		return domain.CartSnapshot{}, false, fmt.Errorf("redis get cart: %w", err)
	}

	var snapshot domain.CartSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		p.logger.WithError(err).WithField("user_id", userID).Warn("stored cart snapshot is not valid JSON, treating as empty")
		return domain.CartSnapshot{}, false, nil
	}
	return snapshot, true, nil
}

// Delete удаляет снапшот корзины пользователя; отсутствие ключа не ошибка.
func (p *CartPersister) Delete(ctx context.Context, userID string) error {
	if err := p.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete cart: %w", err)
	}
	return nil
}

func cartKey(userID string) string {
	return fmt.Sprintf("cart:user:%s", userID)
}

var _ domain.CartPersister = (*CartPersister)(nil)
