package domain

import "time"

// Order — финализированный заказ, записываемый после успешного платежа.
// Позиции копируются из снимка корзины, с которым стартовала checkout-сессия.
type Order struct {
	Ref         string
	UserID      string
	Currency    string
	AmountMinor int64
	IntentRef   string
	Lines       []CartLine
	CreatedAt   time.Time
}

// NewOrderFromSnapshot собирает запись заказа из снимка корзины и атрибутов сессии.
func NewOrderFromSnapshot(ref, userID string, snapshot CartSnapshot, intentRef, currency string, amountMinor int64, now time.Time) Order {
	lines := make([]CartLine, len(snapshot.Lines))
	copy(lines, snapshot.Lines)
	return Order{
		Ref:         ref,
		UserID:      userID,
		Currency:    currency,
		AmountMinor: amountMinor,
		IntentRef:   intentRef,
		Lines:       lines,
		CreatedAt:   now,
	}
}

// ValidateInvariants сверяет сумму заказа с суммой позиций и базовые поля.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrCartEmpty)
	}

	var calc int64
	for _, line := range o.Lines {
		if line.Quantity < 1 || line.Quantity > MaxLineQuantity {
			errs = append(errs, ErrQuantityInvalid)
		}
		if line.UnitPriceMinor < 0 {
			errs = append(errs, ErrPriceInvalid)
		}
		calc += LineTotalMinor(line.UnitPriceMinor, line.Quantity)
	}
	if calc != o.AmountMinor {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
