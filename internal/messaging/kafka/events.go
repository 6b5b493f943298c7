package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// Checkout события
	EventTypeCheckoutStarted   EventType = "checkout.started"
	EventTypeCheckoutSucceeded EventType = "checkout.succeeded"
	EventTypeCheckoutFailed    EventType = "checkout.failed"
	EventTypeCheckoutAbandoned EventType = "checkout.abandoned"

	// Order события
	EventTypeOrderPlaced EventType = "order.placed"

	// Cart события
	EventTypeCartCleared EventType = "cart.cleared"
)

// Topics для Kafka
const (
	TopicCheckoutEvents  = "storefront.checkout.events"
	TopicDeadLetterQueue = "storefront.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// CheckoutEvent представляет событие жизненного цикла checkout-сессии
type CheckoutEvent struct {
	EventType   EventType              `json:"event_type"`
	SessionID   string                 `json:"session_id"`
	UserID      string                 `json:"user_id"`
	State       string                 `json:"state"`
	AmountMinor int64                  `json:"amount_minor,omitempty"`
	Currency    string                 `json:"currency,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// OrderPlacedEvent представляет событие успешно записанного заказа
type OrderPlacedEvent struct {
	EventType   EventType `json:"event_type"`
	OrderRef    string    `json:"order_ref"`
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	AmountMinor int64     `json:"amount_minor"`
	Currency    string    `json:"currency"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewCheckoutEvent создает новое событие checkout-сессии
func NewCheckoutEvent(eventType EventType, sessionID, userID, state string, metadata map[string]interface{}) *CheckoutEvent {
	return &CheckoutEvent{
		EventType: eventType,
		SessionID: sessionID,
		UserID:    userID,
		State:     state,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}

// NewOrderPlacedEvent создает событие о записанном заказе
func NewOrderPlacedEvent(orderRef, sessionID, userID string, amountMinor int64, currency string) *OrderPlacedEvent {
	return &OrderPlacedEvent{
		EventType:   EventTypeOrderPlaced,
		OrderRef:    orderRef,
		SessionID:   sessionID,
		UserID:      userID,
		AmountMinor: amountMinor,
		Currency:    currency,
		Timestamp:   time.Now(),
	}
}
