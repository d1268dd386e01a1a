package history

import (
	"math"
	"testing"
	"time"

	"sqdc-watcher/internal/models"
)

func event(kind models.EventKind, ts time.Time) models.HistoryEvent {
	return models.HistoryEvent{ProductID: "p1", VariantID: "v1", Kind: kind, Timestamp: ts}
}

func variantCreated(created time.Time) *models.Variant {
	return &models.Variant{ID: "v1", ProductID: "p1", CreatedAt: created}
}

func productInStock(inStock bool) *models.Product {
	return &models.Product{
		ID:       "p1",
		Variants: []models.Variant{{ID: "v1", ProductID: "p1", InStock: inStock}},
	}
}

func TestHalfLifetimeInStock(t *testing.T) {
	created := time.Now().Add(-8 * time.Hour)
	asOf := created.Add(8 * time.Hour)
	entries := []models.HistoryEvent{
		event(models.EventInStock, created),
		event(models.EventNotInStock, created.Add(4*time.Hour)),
	}

	got := PercentInStock(variantCreated(created), productInStock(false), entries, asOf)
	if math.Abs(got-50) > 1e-4 {
		t.Errorf("PercentInStock = %v, want 50", got)
	}
}

func TestNoEventsCurrentlyInStock(t *testing.T) {
	created := time.Now().Add(-8 * time.Hour)
	asOf := created.Add(8 * time.Hour)

	got := PercentInStock(variantCreated(created), productInStock(true), nil, asOf)
	if math.Abs(got-100) > 1e-4 {
		t.Errorf("PercentInStock = %v, want 100", got)
	}
}

func TestNoEventsCurrentlyOutOfStock(t *testing.T) {
	created := time.Now().Add(-8 * time.Hour)
	asOf := created.Add(8 * time.Hour)

	got := PercentInStock(variantCreated(created), productInStock(false), nil, asOf)
	if got != 0 {
		t.Errorf("PercentInStock = %v, want 0", got)
	}
}

func TestDuplicateEventsDoNotDistort(t *testing.T) {
	created := time.Now().Add(-8 * time.Hour)
	asOf := created.Add(8 * time.Hour)
	entries := []models.HistoryEvent{
		event(models.EventInStock, created),
		event(models.EventInStock, created.Add(2*time.Hour)),
		event(models.EventNotInStock, created.Add(4*time.Hour)),
	}

	got := PercentInStock(variantCreated(created), productInStock(false), entries, asOf)
	if math.Abs(got-50) > 1e-4 {
		t.Errorf("PercentInStock = %v, want 50 despite duplicate in-stock event", got)
	}
}

func TestAlternatingIntervals(t *testing.T) {
	created := time.Now().Add(-12 * time.Hour)
	asOf := created.Add(12 * time.Hour)
	entries := []models.HistoryEvent{
		event(models.EventInStock, created),
		event(models.EventNotInStock, created.Add(3*time.Hour)),
		event(models.EventInStock, created.Add(6*time.Hour)),
		event(models.EventNotInStock, created.Add(9*time.Hour)),
	}

	// In stock 0-3h and 6-9h out of 12h.
	got := PercentInStock(variantCreated(created), productInStock(false), entries, asOf)
	if math.Abs(got-50) > 1e-4 {
		t.Errorf("PercentInStock = %v, want 50", got)
	}
}

func TestFinalOpenIntervalClosesAtAsOf(t *testing.T) {
	created := time.Now().Add(-8 * time.Hour)
	asOf := created.Add(8 * time.Hour)
	entries := []models.HistoryEvent{
		event(models.EventNotInStock, created),
		event(models.EventInStock, created.Add(6*time.Hour)),
	}

	got := PercentInStock(variantCreated(created), productInStock(true), entries, asOf)
	if math.Abs(got-25) > 1e-4 {
		t.Errorf("PercentInStock = %v, want 25", got)
	}
}

func TestZeroElapsedLifetime(t *testing.T) {
	created := time.Now()

	got := PercentInStock(variantCreated(created), productInStock(true), nil, created)
	if got != 0 {
		t.Errorf("PercentInStock = %v, want 0 for zero elapsed time", got)
	}
}

func TestUnsetCreationFallsBackToFirstInStockEvent(t *testing.T) {
	first := time.Now().Add(-4 * time.Hour)
	asOf := first.Add(4 * time.Hour)
	entries := []models.HistoryEvent{
		event(models.EventInStock, first),
		event(models.EventNotInStock, first.Add(2*time.Hour)),
	}

	got := PercentInStock(variantCreated(time.Time{}), productInStock(false), entries, asOf)
	if math.Abs(got-50) > 1e-4 {
		t.Errorf("PercentInStock = %v, want 50", got)
	}
}

func TestUnsetCreationWithoutInStockEvents(t *testing.T) {
	got := PercentInStock(variantCreated(time.Time{}), productInStock(false),
		[]models.HistoryEvent{event(models.EventNotInStock, time.Now())}, time.Now())
	if got != 0 {
		t.Errorf("PercentInStock = %v, want 0 when lifetime is undefined", got)
	}
}

func TestResultStaysWithinBounds(t *testing.T) {
	created := time.Now().Add(-time.Hour)
	asOf := created.Add(time.Hour)
	entries := []models.HistoryEvent{
		event(models.EventInStock, created.Add(-time.Minute)), // recorded before creation
	}

	got := PercentInStock(variantCreated(created), productInStock(true), entries, asOf)
	if got < 0 || got > 100 {
		t.Errorf("PercentInStock = %v, want within [0, 100]", got)
	}
}
