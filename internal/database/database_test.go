package database

import (
	"path/filepath"
	"testing"
	"time"

	"sqdc-watcher/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleProduct(id string, inStock bool) models.Product {
	return models.Product{
		ID:      id,
		Title:   "Product " + id,
		URL:     "https://example.org/" + id,
		Brand:   "Brand",
		InStock: inStock,
		Variants: []models.Variant{{
			ID:        id + "-v1",
			ProductID: id,
			InStock:   inStock,
			Specifications: models.Specs{
				models.SpecStrain:         "Hindu Kush",
				models.SpecGramEquivalent: "3.5",
			},
			Price: 25.40,
		}},
	}
}

func TestSaveAndGetProductsRoundTrip(t *testing.T) {
	db := newTestDB(t)

	saved := sampleProduct("p1", true)
	if err := db.SaveProducts([]models.Product{saved}); err != nil {
		t.Fatal(err)
	}

	products, err := db.GetProducts()
	if err != nil {
		t.Fatal(err)
	}
	if len(products) != 1 {
		t.Fatalf("got %d products, want 1", len(products))
	}

	p := products[0]
	if p.ID != "p1" || p.Title != "Product p1" || !p.InStock {
		t.Errorf("unexpected product: %+v", p)
	}
	if len(p.Variants) != 1 {
		t.Fatalf("got %d variants, want 1", len(p.Variants))
	}
	v := p.Variants[0]
	if v.ID != "p1-v1" || v.Price != 25.40 {
		t.Errorf("unexpected variant: %+v", v)
	}
	if strain, _ := v.Specifications.Get(models.SpecStrain); strain != "Hindu Kush" {
		t.Errorf("specifications lost in round trip: %+v", v.Specifications)
	}
	if p.CreatedAt.IsZero() {
		t.Error("created_at was not stamped")
	}
}

func TestSaveProductsUpsertsWithoutDuplicating(t *testing.T) {
	db := newTestDB(t)

	p := sampleProduct("p1", true)
	if err := db.SaveProducts([]models.Product{p}); err != nil {
		t.Fatal(err)
	}

	first, err := db.GetProducts()
	if err != nil {
		t.Fatal(err)
	}

	p.Title = "Renamed"
	p.InStock = false
	p.Variants[0].InStock = false
	p.CreatedAt = first[0].CreatedAt
	if err := db.SaveProducts([]models.Product{p}); err != nil {
		t.Fatal(err)
	}

	products, err := db.GetProducts()
	if err != nil {
		t.Fatal(err)
	}
	if len(products) != 1 {
		t.Fatalf("got %d products after second save, want 1", len(products))
	}
	got := products[0]
	if got.Title != "Renamed" || got.InStock {
		t.Errorf("mutable fields not replaced: %+v", got)
	}
	if !got.CreatedAt.Equal(first[0].CreatedAt) {
		t.Errorf("created_at changed across upsert: %v -> %v", first[0].CreatedAt, got.CreatedAt)
	}
	if len(got.Variants) != 1 {
		t.Errorf("got %d variants, want 1", len(got.Variants))
	}
}

func TestHistoryIsOrderedAndAppendOnly(t *testing.T) {
	db := newTestDB(t)

	base := time.Now().Add(-3 * time.Hour).Truncate(time.Second)
	events := []models.HistoryEvent{
		{ProductID: "p1", VariantID: "v1", Kind: models.EventInStock, Timestamp: base},
		{ProductID: "p1", VariantID: "v1", Kind: models.EventNotInStock, Timestamp: base.Add(time.Hour)},
		{ProductID: "p1", VariantID: "v2", Kind: models.EventInStock, Timestamp: base.Add(2 * time.Hour)},
	}
	if err := db.AppendHistory(events); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetHistory("p1", "v1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events for v1, want 2", len(got))
	}
	if got[0].Kind != models.EventInStock || got[1].Kind != models.EventNotInStock {
		t.Errorf("events out of order: %+v", got)
	}
	if !got[0].Timestamp.Before(got[1].Timestamp) {
		t.Errorf("timestamps not ascending: %v, %v", got[0].Timestamp, got[1].Timestamp)
	}
}

func TestGetLastInStockEvent(t *testing.T) {
	db := newTestDB(t)

	event, err := db.GetLastInStockEvent("p1")
	if err != nil {
		t.Fatal(err)
	}
	if event != nil {
		t.Fatalf("got %+v for empty history, want nil", event)
	}

	base := time.Now().Add(-4 * time.Hour).Truncate(time.Second)
	err = db.AppendHistory([]models.HistoryEvent{
		{ProductID: "p1", VariantID: "v1", Kind: models.EventInStock, Timestamp: base},
		{ProductID: "p1", VariantID: "v1", Kind: models.EventNotInStock, Timestamp: base.Add(time.Hour)},
		{ProductID: "p1", VariantID: "v2", Kind: models.EventInStock, Timestamp: base.Add(2 * time.Hour)},
		{ProductID: "p2", VariantID: "v9", Kind: models.EventInStock, Timestamp: base.Add(3 * time.Hour)},
	})
	if err != nil {
		t.Fatal(err)
	}

	event, err = db.GetLastInStockEvent("p1")
	if err != nil {
		t.Fatal(err)
	}
	if event == nil {
		t.Fatal("got nil, want the most recent in-stock event")
	}
	if event.VariantID != "v2" || !event.Timestamp.Equal(base.Add(2*time.Hour)) {
		t.Errorf("got %+v, want the v2 event at base+2h", event)
	}
}

func TestAddRuleReportsDuplicates(t *testing.T) {
	db := newTestDB(t)

	rule := models.NotificationRule{Username: "alice", Keyword: "kush", ChatID: 7}
	added, err := db.AddRule(rule)
	if err != nil {
		t.Fatal(err)
	}
	if !added {
		t.Error("first AddRule reported not added")
	}

	added, err = db.AddRule(rule)
	if err != nil {
		t.Fatal(err)
	}
	if added {
		t.Error("second AddRule reported added, want already exists")
	}

	rules, err := db.ListRulesForUser("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 {
		t.Errorf("got %d rows, want exactly 1", len(rules))
	}
}

func TestDeleteRuleReportsMissingRows(t *testing.T) {
	db := newTestDB(t)

	if _, err := db.AddRule(models.NotificationRule{Username: "alice", Keyword: "kush"}); err != nil {
		t.Fatal(err)
	}

	removed, err := db.DeleteRule("alice", "gelato")
	if err != nil {
		t.Fatal(err)
	}
	if removed {
		t.Error("deleting a nonexistent rule reported removed")
	}

	rules, err := db.ListRulesForUser("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 {
		t.Errorf("rule table changed by a failed delete: %+v", rules)
	}

	removed, err = db.DeleteRule("alice", "kush")
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Error("deleting an existing rule reported not removed")
	}
}

func TestListAllRulesGroupsByUser(t *testing.T) {
	db := newTestDB(t)

	for _, r := range []models.NotificationRule{
		{Username: "alice", Keyword: "kush", ChatID: 7},
		{Username: "alice", Keyword: "gelato", ChatID: 7},
		{Username: "bob", Keyword: "haze", ChatID: 9},
	} {
		if _, err := db.AddRule(r); err != nil {
			t.Fatal(err)
		}
	}

	grouped, err := db.ListAllRules()
	if err != nil {
		t.Fatal(err)
	}
	if len(grouped) != 2 {
		t.Fatalf("got %d users, want 2", len(grouped))
	}
	if len(grouped["alice"]) != 2 || len(grouped["bob"]) != 1 {
		t.Errorf("unexpected grouping: %+v", grouped)
	}
}

func TestAppStateRoundTrip(t *testing.T) {
	db := newTestDB(t)

	state, err := db.GetAppState()
	if err != nil {
		t.Fatal(err)
	}
	if state.LastScanTimestamp != nil {
		t.Errorf("fresh database has a last scan timestamp: %v", state.LastScanTimestamp)
	}

	ts := time.Now().Truncate(time.Second)
	if err := db.UpdateLastScanTimestamp(ts); err != nil {
		t.Fatal(err)
	}

	state, err = db.GetAppState()
	if err != nil {
		t.Fatal(err)
	}
	if state.LastScanTimestamp == nil || !state.LastScanTimestamp.Equal(ts) {
		t.Errorf("got %v, want %v", state.LastScanTimestamp, ts)
	}
}

func TestMarkNotifiedStampsTimestamp(t *testing.T) {
	db := newTestDB(t)

	p := sampleProduct("p1", true)
	if err := db.SaveProducts([]models.Product{p}); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkNotified([]models.Product{p}); err != nil {
		t.Fatal(err)
	}

	products, err := db.GetProducts()
	if err != nil {
		t.Fatal(err)
	}
	if products[0].LastNotifiedAt == nil {
		t.Error("last_notified_at not stamped")
	}
}
