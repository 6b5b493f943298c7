package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// MockGateway — конфигурируемая заглушка PaymentGateway для тестов и
// локальной разработки. Дедуплицирует intent по idempotency key так же,
// как настоящий шлюз.
type MockGateway struct {
	mu sync.Mutex

	CreateIntentErr error
	ConfirmOutcome  domain.ConfirmationOutcome
	ConfirmErr      error

	CreateIntentCalls int
	ConfirmCalls      int

	intentsByKey map[string]domain.PaymentIntent
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		ConfirmOutcome: domain.OutcomeSucceeded,
		intentsByKey:   make(map[string]domain.PaymentIntent),
	}
}

// CreateIntent возвращает настроенный результат; повторный вызов с тем же
// idempotency key отдаёт тот же intent, не создавая второй.
func (m *MockGateway) CreateIntent(ctx context.Context, amountMinor int64, currency, idempotencyKey string) (domain.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateIntentCalls++
	if m.CreateIntentErr != nil {
		return domain.PaymentIntent{}, m.CreateIntentErr
	}

	if intent, ok := m.intentsByKey[idempotencyKey]; ok {
		return intent, nil
	}

	intent := domain.PaymentIntent{
		Ref:          fmt.Sprintf("pi_mock_%d", len(m.intentsByKey)+1),
		ClientSecret: fmt.Sprintf("pi_mock_%d_secret", len(m.intentsByKey)+1),
	}
	m.intentsByKey[idempotencyKey] = intent
	return intent, nil
}

// Confirm возвращает настроенный исход и считает вызовы.
func (m *MockGateway) Confirm(ctx context.Context, intentRef string, details domain.PaymentMethodDetails) (domain.ConfirmationOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ConfirmCalls++
	return m.ConfirmOutcome, m.ConfirmErr
}

// IntentCount возвращает число реально созданных (не дедуплицированных) intent.
func (m *MockGateway) IntentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.intentsByKey)
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
