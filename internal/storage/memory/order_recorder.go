package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// orderRecorderInMemory хранит записанные заказы в памяти (для разработки/тестов).
type orderRecorderInMemory struct {
	mu     sync.RWMutex
	orders map[string]domain.Order

	// CreateOrderErr, если задан, возвращается из CreateOrder вместо записи.
	CreateOrderErr error
}

// NewOrderRecorder создаёт in-memory реализацию OrderPersistence.
func NewOrderRecorder() *orderRecorderInMemory {
	return &orderRecorderInMemory{orders: make(map[string]domain.Order)}
}

// CreateOrder записывает заказ и возвращает его идентификатор.
func (r *orderRecorderInMemory) CreateOrder(ctx context.Context, order domain.Order) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.CreateOrderErr != nil {
		return "", r.CreateOrderErr
	}

	if order.Ref == "" {
		order.Ref = uuid.NewString()
	}
	stored := order
	stored.Lines = make([]domain.CartLine, len(order.Lines))
	copy(stored.Lines, order.Lines)
	r.orders[stored.Ref] = stored
	return stored.Ref, nil
}

// Order возвращает записанный заказ по идентификатору (используется в тестах).
func (r *orderRecorderInMemory) Order(ref string) (domain.Order, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[ref]
	return order, ok
}

// Count возвращает количество записанных заказов.
func (r *orderRecorderInMemory) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.orders)
}

var _ domain.OrderPersistence = (*orderRecorderInMemory)(nil)
