package domain

import "time"

// CheckoutState описывает жизненный цикл checkout-сессии.
type CheckoutState string

const (
	// CheckoutStateIdle — активной сессии нет.
	CheckoutStateIdle CheckoutState = "idle"
	// CheckoutStatePreparingIntent — корзина зафиксирована, создаём payment intent.
	CheckoutStatePreparingIntent CheckoutState = "preparing_intent"
	// CheckoutStateAwaitingConfirmation — intent создан, ждём данные платежа от пользователя.
	CheckoutStateAwaitingConfirmation CheckoutState = "awaiting_confirmation"
	// CheckoutStateFinalizing — подтверждение отправлено шлюзу, ждём исход.
	CheckoutStateFinalizing CheckoutState = "finalizing"
	// CheckoutStateSucceeded — платёж захвачен и заказ записан.
	CheckoutStateSucceeded CheckoutState = "succeeded"
	// CheckoutStateFailed — сессия завершилась невосстановимой ошибкой.
	CheckoutStateFailed CheckoutState = "failed"
	// CheckoutStateCancelled — сессия отменена пользователем до захвата средств.
	CheckoutStateCancelled CheckoutState = "cancelled"
)

// Terminal сообщает, является ли состояние терминальным.
// Из терминального состояния возможен только Reset в Idle.
func (s CheckoutState) Terminal() bool {
	return s == CheckoutStateSucceeded || s == CheckoutStateFailed || s == CheckoutStateCancelled
}

// Valid проверяет, что состояние относится к поддерживаемым значениям.
func (s CheckoutState) Valid() bool {
	switch s {
	case CheckoutStateIdle, CheckoutStatePreparingIntent, CheckoutStateAwaitingConfirmation,
		CheckoutStateFinalizing, CheckoutStateSucceeded, CheckoutStateFailed, CheckoutStateCancelled:
		return true
	default:
		return false
	}
}

// CheckoutSession — состояние одной попытки checkout. Владелец — оркестратор;
// наружу отдаются только копии.
type CheckoutSession struct {
	ID                  string
	State               CheckoutState
	CartRevisionAtStart int64
	Cart                CartSnapshot
	AmountMinor         int64
	Currency            string
	IdempotencyKey      string
	IntentRef           string
	ClientSecret        string
	OrderRef            string
	RequiresAction      bool
	LastError           ErrorKind
	LastErrorMessage    string
	Generation          uint64
	StartedAt           time.Time
	UpdatedAt           time.Time
}

// checkoutEdges перечисляет разрешённые рёбра машины состояний.
var checkoutEdges = map[CheckoutState][]CheckoutState{
	CheckoutStateIdle:                 {CheckoutStatePreparingIntent},
	CheckoutStatePreparingIntent:      {CheckoutStateAwaitingConfirmation, CheckoutStateIdle, CheckoutStateFailed, CheckoutStateCancelled},
	CheckoutStateAwaitingConfirmation: {CheckoutStateFinalizing, CheckoutStateFailed, CheckoutStateCancelled},
	CheckoutStateFinalizing:           {CheckoutStateSucceeded, CheckoutStateAwaitingConfirmation, CheckoutStateFailed, CheckoutStateCancelled},
	CheckoutStateSucceeded:            {CheckoutStateIdle},
	CheckoutStateFailed:               {CheckoutStateIdle},
	CheckoutStateCancelled:            {CheckoutStateIdle},
}

// CanTransition проверяет, разрешён ли переход from -> to.
func CanTransition(from, to CheckoutState) bool {
	for _, next := range checkoutEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}
