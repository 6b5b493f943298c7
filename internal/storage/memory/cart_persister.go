package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// cartPersisterInMemory хранит снапшоты корзин в памяти (для разработки/тестов).
type cartPersisterInMemory struct {
	mu        sync.RWMutex
	snapshots map[string]domain.CartSnapshot
}

// NewCartPersister создаёт in-memory реализацию CartPersister.
func NewCartPersister() *cartPersisterInMemory {
	return &cartPersisterInMemory{snapshots: make(map[string]domain.CartSnapshot)}
}

// Save сохраняет копию снапшота корзины пользователя.
func (p *cartPersisterInMemory) Save(ctx context.Context, userID string, snapshot domain.CartSnapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored := domain.CartSnapshot{
		Revision: snapshot.Revision,
		Lines:    make([]domain.CartLine, len(snapshot.Lines)),
	}
	copy(stored.Lines, snapshot.Lines)
	p.snapshots[userID] = stored
	return nil
}

// Load возвращает копию сохранённого снапшота; ok=false, если снапшота нет.
func (p *cartPersisterInMemory) Load(ctx context.Context, userID string) (domain.CartSnapshot, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stored, ok := p.snapshots[userID]
	if !ok {
		return domain.CartSnapshot{}, false, nil
	}
	result := domain.CartSnapshot{
		Revision: stored.Revision,
		Lines:    make([]domain.CartLine, len(stored.Lines)),
	}
	copy(result.Lines, stored.Lines)
	return result, true, nil
}

// Delete удаляет снапшот корзины пользователя; отсутствие снапшота не ошибка.
func (p *cartPersisterInMemory) Delete(ctx context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.snapshots, userID)
	return nil
}

var _ domain.CartPersister = (*cartPersisterInMemory)(nil)
