package domain

// MaxLineQuantity — верхняя граница количества по одной позиции корзины.
// Слияние количеств сверх лимита обрезается до него, излишек отбрасывается.
const MaxLineQuantity int32 = 99

// CartLine — одна позиция корзины. Цена и отображаемые поля фиксируются
// в момент добавления: изменение каталога не должно незаметно менять
// уже лежащую в корзине позицию.
type CartLine struct {
	ProductID        string `json:"product_id"`
	UnitPriceMinor   int64  `json:"unit_price_minor"`
	Quantity         int32  `json:"quantity"`
	SnapshotName     string `json:"snapshot_name"`
	SnapshotImageRef string `json:"snapshot_image_ref"`
}

// Validate проверяет инварианты позиции и возвращает список нарушений.
func (l *CartLine) Validate() []error {
	var errs []error

	if l.ProductID == "" {
		errs = append(errs, ErrProductIDRequired)
	}
	if l.Quantity < 1 || l.Quantity > MaxLineQuantity {
		errs = append(errs, ErrQuantityInvalid)
	}
	if l.UnitPriceMinor < 0 {
		errs = append(errs, ErrPriceInvalid)
	}

	return errs
}

// CartSnapshot — неизменяемая копия корзины на момент снятия.
// Позиции хранятся в порядке добавления; Revision растёт на каждой мутации.
type CartSnapshot struct {
	Revision int64      `json:"revision"`
	Lines    []CartLine `json:"lines"`
}

// Empty сообщает, пуста ли корзина в этом снимке.
func (s CartSnapshot) Empty() bool {
	return len(s.Lines) == 0
}

// Line возвращает позицию по productID, если она есть в снимке.
func (s CartSnapshot) Line(productID string) (CartLine, bool) {
	for _, l := range s.Lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return CartLine{}, false
}
