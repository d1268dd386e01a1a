package stock

import (
	"testing"
	"time"

	"sqdc-watcher/internal/models"
)

type fakeHistory struct {
	lastInStock map[string]time.Time
}

func (f *fakeHistory) GetLastInStockEvent(productID string) (*models.HistoryEvent, error) {
	ts, ok := f.lastInStock[productID]
	if !ok {
		return nil, nil
	}
	return &models.HistoryEvent{ProductID: productID, Kind: models.EventInStock, Timestamp: ts}, nil
}

func product(id string, inStock bool) models.Product {
	return models.Product{
		ID:    id,
		Title: "Product " + id,
		Variants: []models.Variant{
			{ID: id + "-v1", ProductID: id, InStock: inStock},
		},
	}
}

func ids(products []models.Product) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.ID)
	}
	return out
}

func TestDiffAgainstSelfIsEmpty(t *testing.T) {
	snapshot := []models.Product{product("a", true), product("b", false)}
	calc := NewCalculator(&fakeHistory{}, snapshot, snapshot)

	if got := calc.BecameInStock(); len(got) != 0 {
		t.Errorf("BecameInStock = %v, want empty", ids(got))
	}
	if got := calc.BecameOutOfStock(); len(got) != 0 {
		t.Errorf("BecameOutOfStock = %v, want empty", ids(got))
	}
	if got := calc.NewProducts(); len(got) != 0 {
		t.Errorf("NewProducts = %v, want empty", ids(got))
	}
}

func TestUnknownInStockProductIsNewAndBecameInStock(t *testing.T) {
	previous := []models.Product{product("a", true)}
	updated := []models.Product{product("a", true), product("b", true)}
	calc := NewCalculator(&fakeHistory{}, previous, updated)

	became := calc.BecameInStock()
	if len(became) != 1 || became[0].ID != "b" {
		t.Fatalf("BecameInStock = %v, want [b]", ids(became))
	}
	newProducts := calc.NewProducts()
	if len(newProducts) != 1 || newProducts[0].ID != "b" {
		t.Fatalf("NewProducts = %v, want [b]", ids(newProducts))
	}
}

func TestRestockedProductIsNotNew(t *testing.T) {
	previous := []models.Product{product("a", false)}
	updated := []models.Product{product("a", true)}
	calc := NewCalculator(&fakeHistory{}, previous, updated)

	if got := calc.BecameInStock(); len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("BecameInStock = %v, want [a]", ids(got))
	}
	if got := calc.NewProducts(); len(got) != 0 {
		t.Errorf("NewProducts = %v, want empty", ids(got))
	}
}

func TestBecameOutOfStock(t *testing.T) {
	previous := []models.Product{product("a", true), product("b", true)}
	updated := []models.Product{product("a", false), product("b", true)}
	calc := NewCalculator(&fakeHistory{}, previous, updated)

	got := calc.BecameOutOfStock()
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("BecameOutOfStock = %v, want [a]", ids(got))
	}
}

func TestVanishedProductIsNotReportedOutOfStock(t *testing.T) {
	previous := []models.Product{product("a", true), product("b", true)}
	updated := []models.Product{product("b", true)}
	calc := NewCalculator(&fakeHistory{}, previous, updated)

	if got := calc.BecameOutOfStock(); len(got) != 0 {
		t.Errorf("BecameOutOfStock = %v, want empty", ids(got))
	}
}

func TestTransitionSetsAreSorted(t *testing.T) {
	older := product("old", true)
	older.Category = "Dried flowers"
	older.Brand = "ZBrand"

	newer := product("new", true)
	newer.IsNew = true
	newer.Category = "Oils"

	sameCat := product("same", true)
	sameCat.Category = "Dried flowers"
	sameCat.Brand = "ABrand"

	calc := NewCalculator(&fakeHistory{}, nil, []models.Product{older, sameCat, newer})

	got := calc.BecameInStock()
	want := []string{"new", "same", "old"}
	if len(got) != len(want) {
		t.Fatalf("BecameInStock = %v, want %v", ids(got), want)
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d = %s, want %s (full order %v)", i, got[i].ID, id, ids(got))
		}
	}
}

func TestWasRecentlyInStock(t *testing.T) {
	now := time.Now()
	p := product("a", true)
	history := &fakeHistory{lastInStock: map[string]time.Time{
		"a": now.Add(-time.Hour),
	}}
	calc := NewCalculator(history, nil, nil)

	recent, err := calc.WasRecentlyInStock(&p, 12*time.Hour, now)
	if err != nil {
		t.Fatal(err)
	}
	if !recent {
		t.Error("event 1h old with 12h cooldown: want recent")
	}

	history.lastInStock["a"] = now.Add(-13 * time.Hour)
	recent, err = calc.WasRecentlyInStock(&p, 12*time.Hour, now)
	if err != nil {
		t.Fatal(err)
	}
	if recent {
		t.Error("event 13h old with 12h cooldown: want not recent")
	}
}

func TestCooldownIgnoresEventsRecordedAfterCapture(t *testing.T) {
	now := time.Now()
	previous := []models.Product{product("a", false)}
	updated := []models.Product{product("a", true)}
	history := &fakeHistory{lastInStock: map[string]time.Time{
		"a": now.Add(-13 * time.Hour),
	}}
	calc := NewCalculator(history, previous, updated)

	if err := calc.CaptureLastInStock(); err != nil {
		t.Fatal(err)
	}
	// The restock event for this very transition lands in the log
	// after capture; it must not trip its own cooldown.
	history.lastInStock["a"] = now

	recent, err := calc.WasRecentlyInStock(&updated[0], 12*time.Hour, now)
	if err != nil {
		t.Fatal(err)
	}
	if recent {
		t.Error("captured event 13h old with 12h cooldown: want not recent")
	}
}

func TestWasRecentlyInStockWithoutHistory(t *testing.T) {
	p := product("a", true)
	calc := NewCalculator(&fakeHistory{}, nil, nil)

	recent, err := calc.WasRecentlyInStock(&p, 12*time.Hour, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if recent {
		t.Error("no recorded event: want not recent")
	}
}
