package domain

import "fmt"

// Вся денежная арифметика ведётся в минимальных единицах валюты (центы, копейки).
// Плавающая точка не используется нигде в ценовых расчётах.

// LineTotalMinor возвращает стоимость позиции: цена за единицу * количество.
func LineTotalMinor(unitPriceMinor int64, quantity int32) int64 {
	return unitPriceMinor * int64(quantity)
}

// SumMinor складывает суммы в минимальных единицах.
func SumMinor(amounts ...int64) int64 {
	var total int64
	for _, a := range amounts {
		total += a
	}
	return total
}

// FormatMinor форматирует сумму в человекочитаемый вид: 1999 -> "19.99 USD".
// Предназначен для логов и ответов API, не для расчётов.
func FormatMinor(amountMinor int64, currency string) string {
	sign := ""
	if amountMinor < 0 {
		sign = "-"
		amountMinor = -amountMinor
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, amountMinor/100, amountMinor%100, currency)
}
