package cart

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const persistTimeout = 2 * time.Second

// Store владеет позициями корзины одной пользовательской сессии.
// Все мутации проходят через его методы; наружу отдаются только снимки.
// Каждая мутация синхронно сохраняет корзину в durable-хранилище, поэтому
// перезагрузка страницы не теряет состояние. Ошибка записи логируется и
// проглатывается: источником истины в рамках сессии остаётся память.
type Store struct {
	mu        sync.Mutex
	userID    string
	lines     []domain.CartLine
	revision  int64
	persister domain.CartPersister
	logger    *log.Entry

	subscribers map[int64]func(domain.CartSnapshot)
	nextSubID   int64
}

// NewStore создаёт корзину, восстанавливая её из сохранённого снимка.
// Отсутствующий или нечитаемый снимок даёт пустую корзину, не ошибку.
func NewStore(userID string, persister domain.CartPersister, logger *log.Entry) *Store {
	if logger == nil {
		logger = log.WithField("component", "cart-store")
	}

	s := &Store{
		userID:      userID,
		persister:   persister,
		logger:      logger,
		subscribers: make(map[int64]func(domain.CartSnapshot)),
	}

	if persister != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		snapshot, ok, err := persister.Load(ctx, userID)
		if err != nil {
			logger.WithError(err).WithField("user_id", userID).Warn("failed to restore cart, starting empty")
		} else if ok {
			s.lines = snapshot.Lines
			s.revision = snapshot.Revision
		}
	}

	return s
}

// AddItem добавляет позицию или сливает количество в существующую.
// Слияние сверх MaxLineQuantity обрезается, излишек отбрасывается молча.
func (s *Store) AddItem(productID string, unitPriceMinor int64, name, imageRef string, quantity int32) error {
	if productID == "" {
		return domain.ErrProductIDRequired
	}
	if quantity <= 0 {
		return domain.ErrQuantityInvalid
	}
	if unitPriceMinor < 0 {
		return domain.ErrPriceInvalid
	}

	s.mu.Lock()
	for i := range s.lines {
		if s.lines[i].ProductID != productID {
			continue
		}
		merged := s.lines[i].Quantity + quantity
		if merged > domain.MaxLineQuantity || merged < s.lines[i].Quantity {
			merged = domain.MaxLineQuantity
		}
		s.lines[i].Quantity = merged
		s.commitLocked()
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snapshot)
		return nil
	}

	if quantity > domain.MaxLineQuantity {
		quantity = domain.MaxLineQuantity
	}
	s.lines = append(s.lines, domain.CartLine{
		ProductID:        productID,
		UnitPriceMinor:   unitPriceMinor,
		Quantity:         quantity,
		SnapshotName:     name,
		SnapshotImageRef: imageRef,
	})
	s.commitLocked()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snapshot)
	return nil
}

// SetQuantity перезаписывает количество существующей позиции.
// Ноль недопустим: для удаления предназначен RemoveItem.
func (s *Store) SetQuantity(productID string, quantity int32) error {
	if quantity < 1 || quantity > domain.MaxLineQuantity {
		return domain.ErrQuantityInvalid
	}

	s.mu.Lock()
	for i := range s.lines {
		if s.lines[i].ProductID != productID {
			continue
		}
		s.lines[i].Quantity = quantity
		s.commitLocked()
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snapshot)
		return nil
	}
	s.mu.Unlock()
	return domain.ErrLineNotFound
}

// RemoveItem удаляет позицию. Удаление отсутствующей позиции — no-op:
// revision не меняется и ошибки нет.
func (s *Store) RemoveItem(productID string) {
	s.mu.Lock()
	for i := range s.lines {
		if s.lines[i].ProductID != productID {
			continue
		}
		s.lines = append(s.lines[:i], s.lines[i+1:]...)
		s.commitLocked()
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snapshot)
		return
	}
	s.mu.Unlock()
}

// Clear опустошает корзину. Revision растёт безусловно, даже для пустой корзины.
func (s *Store) Clear() {
	s.mu.Lock()
	s.lines = nil
	s.commitLocked()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snapshot)
}

// Snapshot возвращает неизменяемую копию текущего состояния.
func (s *Store) Snapshot() domain.CartSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Revision возвращает текущий счётчик мутаций.
func (s *Store) Revision() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Subscribe регистрирует слушателя мутаций и возвращает функцию отписки.
// Слушатель вызывается после каждой мутации со свежим снимком.
func (s *Store) Subscribe(fn func(domain.CartSnapshot)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// commitLocked инкрементирует revision и синхронно сохраняет корзину.
// Вызывается строго под мьютексом.
func (s *Store) commitLocked() {
	s.revision++

	if s.persister == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.persister.Save(ctx, s.userID, s.snapshotLocked()); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"user_id":  s.userID,
			"revision": s.revision,
		}).Warn("failed to persist cart")
	}
}

func (s *Store) snapshotLocked() domain.CartSnapshot {
	lines := make([]domain.CartLine, len(s.lines))
	copy(lines, s.lines)
	return domain.CartSnapshot{Revision: s.revision, Lines: lines}
}

// notify вызывает слушателей вне мьютекса, чтобы подписчики могли
// безопасно читать Store из callback.
func (s *Store) notify(snapshot domain.CartSnapshot) {
	s.mu.Lock()
	fns := make([]func(domain.CartSnapshot), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}
