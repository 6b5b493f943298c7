package domain_test

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func timeNow() time.Time {
	return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
}

func TestNewOrderFromSnapshot_CopiesLines(t *testing.T) {
	snap := domain.CartSnapshot{
		Revision: 7,
		Lines:    []domain.CartLine{{ProductID: "p1", UnitPriceMinor: 100, Quantity: 1}},
	}

	order := domain.NewOrderFromSnapshot("order-1", "user-1", snap, "pi_1", "USD", 100, timeNow())

	// Мутация исходного снимка не должна затрагивать заказ.
	snap.Lines[0].Quantity = 50
	if order.Lines[0].Quantity != 1 {
		t.Fatalf("order lines must be an independent copy, got qty %d", order.Lines[0].Quantity)
	}

	if order.Ref != "order-1" || order.UserID != "user-1" || order.IntentRef != "pi_1" {
		t.Fatalf("unexpected order attributes: %+v", order)
	}
}

func TestOrderValidateInvariants_EmptyLines(t *testing.T) {
	order := domain.Order{Ref: "order-1", Currency: "USD", AmountMinor: 0, CreatedAt: timeNow()}
	errs := order.ValidateInvariants()
	if len(errs) == 0 {
		t.Fatal("expected errors for order without lines")
	}
	found := false
	for _, err := range errs {
		if err == domain.ErrCartEmpty {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ErrCartEmpty among %v", errs)
	}
}
