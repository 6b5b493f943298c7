package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора товара.
	ErrProductIDRequired = errors.New("product_id is required")
	// Ошибка при некорректном количестве (вне диапазона [1, 99]).
	ErrQuantityInvalid = errors.New("quantity must be within [1, 99]")
	// Ошибка отрицательной цены позиции.
	ErrPriceInvalid = errors.New("unit price must be non-negative")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match lines sum")
	// ErrLineNotFound возвращается при операции над отсутствующей позицией корзины.
	ErrLineNotFound = errors.New("cart line not found")
	// ErrOrderNotFound — заказ с указанным идентификатором не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrCheckoutActive — попытка начать checkout, пока предыдущая сессия не завершена.
	ErrCheckoutActive = errors.New("checkout session already active")
	// ErrCartEmpty — попытка начать checkout с пустой корзиной.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrCartRevisionChanged — корзина изменилась после старта сессии; сумма больше не достоверна.
	ErrCartRevisionChanged = errors.New("cart revision changed during checkout")
	// ErrInvalidTransition — переход состояния checkout вне разрешённых рёбер.
	ErrInvalidTransition = errors.New("invalid checkout state transition")
	// ErrCheckoutSuperseded — ответ шлюза пришёл для сессии, которая уже
	// отменена или заменена новой; результат отброшен.
	ErrCheckoutSuperseded = errors.New("checkout session superseded")
	// ErrGatewayUnavailable — временная ошибка платёжного шлюза, можно повторить с тем же ключом.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrGatewayRejected — платёжный шлюз отклонил запрос (бизнес-ошибка, повтор бесполезен).
	ErrGatewayRejected = errors.New("payment gateway rejected request")
	// ErrOrderRecordingFailed — платёж прошёл, но заказ не записан; требуется ручная сверка.
	ErrOrderRecordingFailed = errors.New("payment captured but order recording failed")
	// ErrOutboxPublish — ошибка работы с transactional outbox (запись не найдена или не обновлена).
	ErrOutboxPublish = errors.New("outbox publish error")
)

// ErrorKind — классификация ошибок для API и CheckoutSession.LastError.
type ErrorKind string

const (
	ErrorKindNone           ErrorKind = ""
	ErrorKindValidation     ErrorKind = "validation"
	ErrorKindNotFound       ErrorKind = "not_found"
	ErrorKindNetwork        ErrorKind = "network"
	ErrorKindGateway        ErrorKind = "gateway"
	ErrorKindConcurrency    ErrorKind = "concurrency_conflict"
	ErrorKindOrderRecording ErrorKind = "order_recording_failed"
	ErrorKindInternal       ErrorKind = "internal"
)

// Classify сопоставляет ошибку с категорией из таксономии.
// Неизвестные ошибки считаются внутренними.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, ErrProductIDRequired),
		errors.Is(err, ErrQuantityInvalid),
		errors.Is(err, ErrPriceInvalid),
		errors.Is(err, ErrCurrencyRequired),
		errors.Is(err, ErrAmountMismatch),
		errors.Is(err, ErrCartEmpty):
		return ErrorKindValidation
	case errors.Is(err, ErrLineNotFound),
		errors.Is(err, ErrOrderNotFound):
		return ErrorKindNotFound
	case errors.Is(err, ErrGatewayUnavailable):
		return ErrorKindNetwork
	case errors.Is(err, ErrGatewayRejected):
		return ErrorKindGateway
	case errors.Is(err, ErrCheckoutActive),
		errors.Is(err, ErrCartRevisionChanged),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrCheckoutSuperseded):
		return ErrorKindConcurrency
	case errors.Is(err, ErrOrderRecordingFailed):
		return ErrorKindOrderRecording
	default:
		return ErrorKindInternal
	}
}

// IsRetryable сообщает, имеет ли смысл повторить операцию с тем же idempotency key.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable)
}
