package domain

// PaymentIntent — ссылка на платёжное намерение, созданное шлюзом.
// ClientSecret передаётся платёжному UI для подтверждения, сервер его не хранит
// дольше жизни checkout-сессии.
type PaymentIntent struct {
	Ref          string `json:"intent_ref"`
	ClientSecret string `json:"client_secret"`
}

// ConfirmationOutcome — терминальный или промежуточный исход подтверждения платежа.
type ConfirmationOutcome string

const (
	// OutcomeSucceeded — платёж подтверждён, средства захвачены.
	OutcomeSucceeded ConfirmationOutcome = "succeeded"
	// OutcomeRequiresAction — шлюз требует дополнительного действия пользователя
	// (3-D Secure и т.п.); подтверждение нужно повторить после взаимодействия.
	OutcomeRequiresAction ConfirmationOutcome = "requires_action"
	// OutcomeDeclined — платёж отклонён; допустим повтор с тем же intent.
	OutcomeDeclined ConfirmationOutcome = "declined"
	// OutcomeCancelled — пользователь отменил платёж на стороне шлюза.
	OutcomeCancelled ConfirmationOutcome = "cancelled"
)

// Valid проверяет, что исход относится к поддерживаемым значениям.
func (o ConfirmationOutcome) Valid() bool {
	switch o {
	case OutcomeSucceeded, OutcomeRequiresAction, OutcomeDeclined, OutcomeCancelled:
		return true
	default:
		return false
	}
}

// Terminal сообщает, завершает ли исход попытку подтверждения.
// RequiresAction и Declined оставляют intent пригодным для повторного confirm.
func (o ConfirmationOutcome) Terminal() bool {
	return o == OutcomeSucceeded || o == OutcomeCancelled
}

// PaymentMethodDetails — непрозрачные для ядра данные платёжного метода,
// собранные платёжным UI и передаваемые шлюзу как есть.
type PaymentMethodDetails map[string]string
