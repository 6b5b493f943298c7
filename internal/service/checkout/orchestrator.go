package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/pricing"
)

// Orchestrator проводит checkout-сессию через конечный автомат:
// Idle → PreparingIntent → AwaitingConfirmation → Finalizing → {Succeeded, Failed, Cancelled}.
// Одновременно активна не более одной сессии. Сумма сессии фиксируется по
// снапшоту корзины на момент старта; если ревизия корзины меняется, сессия
// инвалидируется, потому что сумма больше не достоверна.
type Orchestrator struct {
	mu sync.Mutex

	userID   string
	cart     *cart.Store
	gateway  domain.PaymentGateway
	orders   domain.OrderPersistence
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	producer *kafka.Producer
	metrics  *metrics.CheckoutMetrics
	logger   *log.Entry
	currency string

	session    domain.CheckoutSession
	generation uint64

	subscribers map[int64]func(domain.CheckoutSession)
	nextSubID   int64

	// События для прямой публикации в Kafka копятся под мьютексом и
	// отправляются в notify, уже вне критической секции: синхронный
	// round-trip до брокера не должен блокировать читателей Session()/State().
	pendingPublish []*kafka.CheckoutEvent

	unsubscribeCart func()
}

// NewOrchestrator создаёт оркестратор для одного пользователя.
// Оркестратор подписывается на изменения корзины, чтобы инвалидировать
// активную сессию, как только зафиксированная ревизия устареет.
func NewOrchestrator(
	userID string,
	cartStore *cart.Store,
	gateway domain.PaymentGateway,
	orders domain.OrderPersistence,
	logger *log.Entry,
) *Orchestrator {
	if logger == nil {
		logger = log.WithField("component", "checkout")
	}
	o := &Orchestrator{
		userID:      userID,
		cart:        cartStore,
		gateway:     gateway,
		orders:      orders,
		logger:      logger,
		currency:    "USD",
		session:     domain.CheckoutSession{State: domain.CheckoutStateIdle},
		subscribers: make(map[int64]func(domain.CheckoutSession)),
	}
	if cartStore != nil {
		o.unsubscribeCart = cartStore.Subscribe(o.onCartChanged)
	}
	return o
}

// WithOutbox подключает transactional outbox для событий жизненного цикла.
func (o *Orchestrator) WithOutbox(repo domain.OutboxRepository) *Orchestrator {
	o.outbox = repo
	return o
}

// WithTimeline подключает хранилище timeline-событий сессии.
func (o *Orchestrator) WithTimeline(repo domain.TimelineRepository) *Orchestrator {
	o.timeline = repo
	return o
}

// WithKafka подключает прямую публикацию событий в Kafka (опционально).
func (o *Orchestrator) WithKafka(producer *kafka.Producer) *Orchestrator {
	o.producer = producer
	return o
}

// WithMetrics подключает метрики checkout.
func (o *Orchestrator) WithMetrics(m *metrics.CheckoutMetrics) *Orchestrator {
	o.metrics = m
	return o
}

// WithCurrency задаёт валюту (по умолчанию USD).
func (o *Orchestrator) WithCurrency(currency string) *Orchestrator {
	if currency != "" {
		o.currency = currency
	}
	return o
}

// Close отписывает оркестратор от изменений корзины.
func (o *Orchestrator) Close() {
	if o.unsubscribeCart != nil {
		o.unsubscribeCart()
		o.unsubscribeCart = nil
	}
}

// Begin стартует новую checkout-сессию: фиксирует снапшот корзины, считает
// сумму и запрашивает payment intent у шлюза. Пока предыдущая сессия не
// завершена, повторный вызов возвращает ErrCheckoutActive.
func (o *Orchestrator) Begin(ctx context.Context) (domain.CheckoutSession, error) {
	o.mu.Lock()

	if o.session.State != domain.CheckoutStateIdle {
		current := o.session
		o.mu.Unlock()
		return current, domain.ErrCheckoutActive
	}

	snapshot := o.cart.Snapshot()
	if snapshot.Empty() {
		current := o.session
		o.mu.Unlock()
		return current, domain.ErrCartEmpty
	}

	totals := pricing.ComputeTotals(snapshot)
	now := time.Now().UTC()
	o.generation++
	gen := o.generation
	o.session = domain.CheckoutSession{
		ID:                  uuid.NewString(),
		State:               domain.CheckoutStatePreparingIntent,
		CartRevisionAtStart: snapshot.Revision,
		Cart:                snapshot,
		AmountMinor:         totals.SubtotalMinor,
		Currency:            o.currency,
		IdempotencyKey:      uuid.NewString(),
		Generation:          gen,
		StartedAt:           now,
		UpdatedAt:           now,
	}
	session := o.session

	if o.metrics != nil {
		o.metrics.RecordCheckoutStarted()
	}
	o.emitEvent(kafka.EventTypeCheckoutStarted, "", map[string]interface{}{
		"cart_revision": snapshot.Revision,
		"amount_minor":  totals.SubtotalMinor,
		"currency":      o.currency,
	})
	o.mu.Unlock()
	o.notify(session)

	intent, err := o.gateway.CreateIntent(ctx, session.AmountMinor, session.Currency, session.IdempotencyKey)

	o.mu.Lock()

	if o.generation != gen {
		o.discardStaleResponse("create_intent")
		current := o.session
		o.mu.Unlock()
		return current, domain.ErrCheckoutSuperseded
	}

	if err != nil {
		if domain.IsRetryable(err) {
			// Временная ошибка: сессия отбрасывается, пользователь может
			// повторить begin с новой сессией.
			o.logger.WithError(err).WithField("session_id", session.ID).Warn("create intent failed, returning to idle")
			o.resetToIdleLocked()
			current := o.session
			o.mu.Unlock()
			o.notify(current)
			return current, err
		}
		o.failLocked(domain.Classify(err), err.Error(), "create intent rejected")
		current := o.session
		o.mu.Unlock()
		o.notify(current)
		return current, err
	}

	if o.cart.Revision() != o.session.CartRevisionAtStart {
		o.invalidateLocked("cart changed while preparing intent")
		current := o.session
		o.mu.Unlock()
		o.notify(current)
		return current, domain.ErrCartRevisionChanged
	}

	o.session.IntentRef = intent.Ref
	o.session.ClientSecret = intent.ClientSecret
	o.transitionLocked(domain.CheckoutStateAwaitingConfirmation, "")
	current := o.session
	o.mu.Unlock()
	o.notify(current)
	return current, nil
}

// SubmitPayment подтверждает платёж с данными пользователя. Подтверждение
// никогда не повторяется автоматически: неопределённый исход опаснее отказа.
func (o *Orchestrator) SubmitPayment(ctx context.Context, details domain.PaymentMethodDetails) (domain.CheckoutSession, error) {
	o.mu.Lock()

	if o.session.State != domain.CheckoutStateAwaitingConfirmation {
		current := o.session
		o.mu.Unlock()
		return current, domain.ErrInvalidTransition
	}

	if o.cart.Revision() != o.session.CartRevisionAtStart {
		o.invalidateLocked("cart changed before confirmation")
		current := o.session
		o.mu.Unlock()
		o.notify(current)
		return current, domain.ErrCartRevisionChanged
	}

	o.session.RequiresAction = false
	o.transitionLocked(domain.CheckoutStateFinalizing, "")
	gen := o.generation
	session := o.session
	o.mu.Unlock()
	o.notify(session)

	confirmStart := time.Now()
	outcome, err := o.gateway.Confirm(ctx, session.IntentRef, details)
	if o.metrics != nil {
		o.metrics.RecordStepDuration("confirm", time.Since(confirmStart))
	}

	o.mu.Lock()

	if o.generation != gen {
		o.discardStaleResponse("confirm")
		current := o.session
		o.mu.Unlock()
		return current, domain.ErrCheckoutSuperseded
	}

	if err != nil {
		o.failLocked(domain.Classify(err), err.Error(), "payment confirmation failed")
		current := o.session
		o.mu.Unlock()
		o.notify(current)
		return current, err
	}

	switch outcome {
	case domain.OutcomeSucceeded:
		return o.finalizeOrder(ctx, gen)
	case domain.OutcomeRequiresAction:
		o.session.RequiresAction = true
		o.transitionLocked(domain.CheckoutStateAwaitingConfirmation, "additional authentication required")
		current := o.session
		o.mu.Unlock()
		o.notify(current)
		return current, nil
	case domain.OutcomeDeclined:
		// Отказ не терминален: пользователь может повторить с другой картой
		// по тому же intent.
		o.session.LastError = domain.ErrorKindGateway
		o.session.LastErrorMessage = "payment declined"
		o.transitionLocked(domain.CheckoutStateAwaitingConfirmation, "payment declined")
		current := o.session
		o.mu.Unlock()
		o.notify(current)
		return current, fmt.Errorf("payment declined: %w", domain.ErrGatewayRejected)
	case domain.OutcomeCancelled:
		o.cancelLocked("payment cancelled by user")
		current := o.session
		o.mu.Unlock()
		o.notify(current)
		return current, nil
	default:
		o.failLocked(domain.ErrorKindGateway, fmt.Sprintf("unknown outcome %q", outcome), "unknown confirmation outcome")
		current := o.session
		o.mu.Unlock()
		o.notify(current)
		return current, domain.ErrGatewayRejected
	}
}

// finalizeOrder вызывается с захваченным o.mu после успешного подтверждения
// платежа. Корзина очищается только после успешной записи заказа: провал
// записи после списания денег — единственный по-настоящему опасный сценарий,
// он поднимается как OrderRecordingFailed и никогда не проглатывается.
func (o *Orchestrator) finalizeOrder(ctx context.Context, gen uint64) (domain.CheckoutSession, error) {
	order := domain.NewOrderFromSnapshot(
		uuid.NewString(),
		o.userID,
		o.session.Cart,
		o.session.IntentRef,
		o.session.Currency,
		o.session.AmountMinor,
		time.Now().UTC(),
	)
	o.mu.Unlock()

	persistStart := time.Now()
	orderRef, err := o.orders.CreateOrder(ctx, order)
	if o.metrics != nil {
		o.metrics.RecordStepDuration("create_order", time.Since(persistStart))
	}

	o.mu.Lock()

	if o.generation != gen {
		// Платёж подтверждён, ответ записи заказа пришёл после отмены сессии.
		// Состояние не трогаем, но след для ручной сверки оставляем обязательно.
		o.logger.WithFields(log.Fields{
			"session_id": o.session.ID,
			"intent_ref": order.IntentRef,
			"order_ref":  orderRef,
		}).Error("order persistence completed after session was discarded, manual reconciliation required")
		o.discardStaleResponse("create_order")
		current := o.session
		o.mu.Unlock()
		return current, domain.ErrCheckoutSuperseded
	}

	if err != nil {
		o.logger.WithError(err).WithFields(log.Fields{
			"session_id": o.session.ID,
			"intent_ref": order.IntentRef,
		}).Error("payment captured but order recording failed")
		if o.metrics != nil {
			o.metrics.RecordOrderRecordingFailed()
		}
		o.failLocked(domain.ErrorKindOrderRecording, err.Error(), "order recording failed after captured payment")
		current := o.session
		o.mu.Unlock()
		o.notify(current)
		return current, fmt.Errorf("%w: %v", domain.ErrOrderRecordingFailed, err)
	}

	o.session.OrderRef = orderRef
	o.transitionLocked(domain.CheckoutStateSucceeded, "")
	o.emitEvent(kafka.EventTypeOrderPlaced, "", map[string]interface{}{
		"order_ref":    orderRef,
		"amount_minor": o.session.AmountMinor,
		"currency":     o.session.Currency,
	})
	if o.metrics != nil {
		o.metrics.RecordCheckoutSucceeded()
		o.metrics.RecordCheckoutDuration(time.Since(o.session.StartedAt))
	}
	current := o.session
	o.mu.Unlock()

	// Очистка корзины после выхода из критической секции: обработчик
	// onCartChanged игнорирует изменения, когда сессия терминальна.
	o.cart.Clear()
	o.notify(current)
	return current, nil
}

// Abandon отменяет активную сессию в любом нетерминальном состоянии.
// Ответы сетевых вызовов, прилетевшие после отмены, отбрасываются.
func (o *Orchestrator) Abandon(reason string) error {
	o.mu.Lock()

	if o.session.State == domain.CheckoutStateIdle || o.session.State.Terminal() {
		o.mu.Unlock()
		return nil
	}

	o.cancelLocked(reason)
	current := o.session
	o.mu.Unlock()
	o.notify(current)
	return nil
}

// Reset переводит завершённую сессию обратно в Idle.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()

	if o.session.State == domain.CheckoutStateIdle {
		o.mu.Unlock()
		return nil
	}
	if !o.session.State.Terminal() {
		o.mu.Unlock()
		return domain.ErrInvalidTransition
	}

	o.resetToIdleLocked()
	current := o.session
	o.mu.Unlock()
	o.notify(current)
	return nil
}

// State возвращает текущее состояние сессии.
func (o *Orchestrator) State() domain.CheckoutState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.State
}

// Session возвращает копию текущей сессии.
func (o *Orchestrator) Session() domain.CheckoutSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// Subscribe регистрирует наблюдателя за изменениями сессии и возвращает
// функцию отписки.
func (o *Orchestrator) Subscribe(fn func(domain.CheckoutSession)) (unsubscribe func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.nextSubID++
	id := o.nextSubID
	o.subscribers[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.subscribers, id)
	}
}

// onCartChanged инвалидирует активную сессию, если корзина изменилась после
// фиксации снапшота. Вызывается из cart.Store вне его мьютекса.
func (o *Orchestrator) onCartChanged(snapshot domain.CartSnapshot) {
	o.mu.Lock()

	// В Finalizing инвалидация запрещена: платёж уже мог быть списан,
	// и ответ подтверждения нельзя отбрасывать из-за изменения корзины.
	switch o.session.State {
	case domain.CheckoutStatePreparingIntent,
		domain.CheckoutStateAwaitingConfirmation:
		if snapshot.Revision != o.session.CartRevisionAtStart {
			o.invalidateLocked("cart changed during checkout")
			current := o.session
			o.mu.Unlock()
			o.notify(current)
			return
		}
	}
	o.mu.Unlock()
}

// transitionLocked выполняет переход по разрешённому ребру автомата.
// Неразрешённый переход — ошибка программирования, логируем и не двигаемся.
func (o *Orchestrator) transitionLocked(to domain.CheckoutState, reason string) {
	from := o.session.State
	if !domain.CanTransition(from, to) {
		o.logger.WithFields(log.Fields{
			"session_id": o.session.ID,
			"from":       from,
			"to":         to,
		}).Error("rejected invalid checkout transition")
		return
	}

	o.session.State = to
	o.session.UpdatedAt = time.Now().UTC()

	switch to {
	case domain.CheckoutStateSucceeded:
		o.emitEvent(kafka.EventTypeCheckoutSucceeded, reason, nil)
	case domain.CheckoutStateFailed:
		o.emitEvent(kafka.EventTypeCheckoutFailed, reason, map[string]interface{}{
			"error_kind": string(o.session.LastError),
		})
	case domain.CheckoutStateCancelled:
		o.emitEvent(kafka.EventTypeCheckoutAbandoned, reason, nil)
	}
}

func (o *Orchestrator) failLocked(kind domain.ErrorKind, message, reason string) {
	o.generation++
	o.session.LastError = kind
	o.session.LastErrorMessage = message
	o.transitionLocked(domain.CheckoutStateFailed, reason)
	if o.metrics != nil {
		o.metrics.RecordCheckoutFailed()
	}
}

func (o *Orchestrator) invalidateLocked(reason string) {
	if o.metrics != nil {
		o.metrics.RecordRevisionConflict()
	}
	o.failLocked(domain.ErrorKindConcurrency, domain.ErrCartRevisionChanged.Error(), reason)
}

func (o *Orchestrator) cancelLocked(reason string) {
	o.generation++
	o.transitionLocked(domain.CheckoutStateCancelled, reason)
	if o.metrics != nil {
		o.metrics.RecordCheckoutAbandoned()
	}
}

func (o *Orchestrator) resetToIdleLocked() {
	o.generation++
	o.session = domain.CheckoutSession{State: domain.CheckoutStateIdle}
}

func (o *Orchestrator) discardStaleResponse(step string) {
	o.logger.WithFields(log.Fields{
		"session_id": o.session.ID,
		"step":       step,
	}).Info("discarding stale response for superseded checkout session")
	if o.metrics != nil {
		o.metrics.RecordStaleResponse()
	}
}

func (o *Orchestrator) emitEvent(eventType kafka.EventType, reason string, payload map[string]interface{}) {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["session_id"] = o.session.ID
	payload["user_id"] = o.userID
	payload["state"] = string(o.session.State)
	now := time.Now().UTC()
	payload["ts"] = now.Format(time.RFC3339Nano)

	if o.outbox != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			o.logger.WithError(err).WithFields(log.Fields{
				"session_id": o.session.ID,
				"event":      eventType,
			}).Error("marshal event failed")
		} else {
			msg := domain.OutboxMessage{
				AggregateType: "checkout",
				AggregateID:   o.session.ID,
				EventType:     string(eventType),
				Payload:       data,
			}
			if _, err := o.outbox.Enqueue(msg); err != nil {
				o.logger.WithError(err).WithFields(log.Fields{
					"session_id": o.session.ID,
					"event":      eventType,
				}).Error("enqueue event failed")
			}
		}
	}

	if o.timeline != nil {
		event := domain.TimelineEvent{
			SessionID: o.session.ID,
			Type:      string(eventType),
			Reason:    reason,
			Occurred:  now,
		}
		if err := o.timeline.Append(event); err != nil {
			o.logger.WithError(err).WithFields(log.Fields{
				"session_id": o.session.ID,
				"event":      eventType,
			}).Warn("append timeline event failed")
		}
	}

	if o.producer != nil {
		// Прямой publish откладывается до выхода из критической секции (notify).
		event := kafka.NewCheckoutEvent(eventType, o.session.ID, o.userID, string(o.session.State), payload)
		o.pendingPublish = append(o.pendingPublish, event)
	}
}

func (o *Orchestrator) notify(session domain.CheckoutSession) {
	o.mu.Lock()
	events := o.pendingPublish
	o.pendingPublish = nil
	fns := make([]func(domain.CheckoutSession), 0, len(o.subscribers))
	for _, fn := range o.subscribers {
		fns = append(fns, fn)
	}
	o.mu.Unlock()

	for _, event := range events {
		if err := o.producer.PublishCheckoutEvent(event); err != nil {
			// Kafka опциональна, checkout не прерываем.
			o.logger.WithError(err).WithFields(log.Fields{
				"event_type": event.EventType,
				"session_id": event.SessionID,
			}).Warn("failed to publish checkout event to kafka")
		}
	}

	for _, fn := range fns {
		fn(session)
	}
}
