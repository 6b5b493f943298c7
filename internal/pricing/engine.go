package pricing

import "github.com/vladislavdragonenkov/storefront/internal/domain"

// Totals — результат расчёта цен по снимку корзины.
type Totals struct {
	// LineTotals: productID -> стоимость позиции в минимальных единицах.
	LineTotals map[string]int64 `json:"line_totals"`
	// SubtotalMinor — сумма всех позиций.
	SubtotalMinor int64 `json:"subtotal_minor"`
	// ItemCount — суммарное количество единиц товара.
	ItemCount int32 `json:"item_count"`
	// Revision снимка, по которому считались суммы.
	Revision int64 `json:"revision"`
}

// ComputeTotals — чистая функция над снимком корзины. Вся арифметика
// в целочисленных минимальных единицах; корректный снимок считается всегда.
func ComputeTotals(snapshot domain.CartSnapshot) Totals {
	totals := Totals{
		LineTotals: make(map[string]int64, len(snapshot.Lines)),
		Revision:   snapshot.Revision,
	}

	for _, line := range snapshot.Lines {
		lineTotal := domain.LineTotalMinor(line.UnitPriceMinor, line.Quantity)
		totals.LineTotals[line.ProductID] = lineTotal
		totals.SubtotalMinor += lineTotal
		totals.ItemCount += line.Quantity
	}

	return totals
}
