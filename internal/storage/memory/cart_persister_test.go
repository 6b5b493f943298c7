package memory

import (
	"context"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestCartPersister_SaveAndLoad(t *testing.T) {
	persister := NewCartPersister()
	ctx := context.Background()

	snapshot := domain.CartSnapshot{
		Revision: 3,
		Lines: []domain.CartLine{
			{ProductID: "sku-1", UnitPriceMinor: 1999, Quantity: 2},
		},
	}
	if err := persister.Save(ctx, "user-1", snapshot); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, ok, err := persister.Load(ctx, "user-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !ok {
		t.Fatal("expected snapshot to exist")
	}
	if loaded.Revision != 3 || len(loaded.Lines) != 1 {
		t.Fatalf("unexpected snapshot: %+v", loaded)
	}

	// Мутация загруженной копии не должна влиять на хранилище.
	loaded.Lines[0].Quantity = 50
	again, _, _ := persister.Load(ctx, "user-1")
	if again.Lines[0].Quantity != 2 {
		t.Fatalf("stored snapshot mutated: %+v", again.Lines[0])
	}
}

func TestCartPersister_LoadMissing(t *testing.T) {
	persister := NewCartPersister()

	_, ok, err := persister.Load(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing snapshot")
	}
}

func TestCartPersister_Delete(t *testing.T) {
	persister := NewCartPersister()
	ctx := context.Background()

	if err := persister.Save(ctx, "user-1", domain.CartSnapshot{Revision: 1}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := persister.Delete(ctx, "user-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, _ := persister.Load(ctx, "user-1"); ok {
		t.Fatal("expected snapshot to be deleted")
	}

	// Повторное удаление не ошибка.
	if err := persister.Delete(ctx, "user-1"); err != nil {
		t.Fatalf("repeated delete failed: %v", err)
	}
}
