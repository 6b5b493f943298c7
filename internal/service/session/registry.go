package session

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
)

// UserSession — пара корзина + checkout-оркестратор одного пользователя.
// Корзина и оркестратор живут столько же, сколько запись в реестре.
type UserSession struct {
	UserID   string
	Cart     *cart.Store
	Checkout *checkout.Orchestrator
}

// Dependencies — общие зависимости, из которых реестр собирает
// UserSession. Опциональные поля (Outbox, Timeline, Producer, Metrics)
// могут быть nil, тогда соответствующая интеграция не подключается.
type Dependencies struct {
	CartPersister domain.CartPersister
	Gateway       domain.PaymentGateway
	Orders        domain.OrderPersistence
	Outbox        domain.OutboxRepository
	Timeline      domain.TimelineRepository
	Producer      *kafka.Producer
	Metrics       *metrics.CheckoutMetrics
	Currency      string
	Logger        *log.Entry
}

// Registry выдаёт UserSession по userID, создавая его лениво при первом
// обращении. Повторные обращения того же пользователя возвращают ту же
// пару: состояние корзины и активной checkout-сессии живёт между запросами.
type Registry struct {
	mu       sync.Mutex
	deps     Dependencies
	sessions map[string]*UserSession
	logger   *log.Entry
}

// NewRegistry создаёт пустой реестр пользовательских сессий.
func NewRegistry(deps Dependencies) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "session-registry")
	}
	return &Registry{
		deps:     deps,
		sessions: make(map[string]*UserSession),
		logger:   logger,
	}
}

// Get возвращает сессию пользователя, создавая её при первом обращении.
// Создание восстанавливает корзину из durable-хранилища.
func (r *Registry) Get(userID string) *UserSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[userID]; ok {
		return s
	}

	cartLogger := r.logger.WithFields(log.Fields{"component": "cart-store", "user_id": userID})
	cartStore := cart.NewStore(userID, r.deps.CartPersister, cartLogger)

	checkoutLogger := r.logger.WithFields(log.Fields{"component": "checkout", "user_id": userID})
	orchestrator := checkout.NewOrchestrator(userID, cartStore, r.deps.Gateway, r.deps.Orders, checkoutLogger)
	if r.deps.Outbox != nil {
		orchestrator.WithOutbox(r.deps.Outbox)
	}
	if r.deps.Timeline != nil {
		orchestrator.WithTimeline(r.deps.Timeline)
	}
	if r.deps.Producer != nil {
		orchestrator.WithKafka(r.deps.Producer)
	}
	if r.deps.Metrics != nil {
		orchestrator.WithMetrics(r.deps.Metrics)
	}
	if r.deps.Currency != "" {
		orchestrator.WithCurrency(r.deps.Currency)
	}

	s := &UserSession{UserID: userID, Cart: cartStore, Checkout: orchestrator}
	r.sessions[userID] = s

	r.logger.WithField("user_id", userID).Info("user session created")
	return s
}

// Peek возвращает существующую сессию без создания новой.
func (r *Registry) Peek(userID string) (*UserSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// Evict удаляет сессию пользователя при logout: прерывает активный
// checkout, отписывает оркестратор от корзины и стирает сохранённый
// снимок корзины. Отсутствующая сессия — no-op.
func (r *Registry) Evict(ctx context.Context, userID string) error {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	delete(r.sessions, userID)
	r.mu.Unlock()

	if !ok {
		return nil
	}

	if err := s.Checkout.Abandon("logout"); err != nil {
		r.logger.WithError(err).WithField("user_id", userID).Warn("failed to abandon checkout on logout")
	}
	s.Checkout.Close()

	if r.deps.CartPersister != nil {
		if err := r.deps.CartPersister.Delete(ctx, userID); err != nil {
			return err
		}
	}

	r.logger.WithField("user_id", userID).Info("user session evicted")
	return nil
}

// Len возвращает число живых сессий.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close отписывает все оркестраторы. Вызывается при остановке сервиса;
// сохранённые корзины при этом не стираются.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		s.Checkout.Close()
	}
	r.sessions = make(map[string]*UserSession)
}
