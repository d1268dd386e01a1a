// Package stock compares two catalog snapshots and classifies
// per-product stock transitions.
package stock

import (
	"sort"
	"time"

	"sqdc-watcher/internal/models"
)

// HistoryReader is the slice of the store the calculator needs for
// the cooldown check. It reads the history log, not the snapshots,
// so the check survives restarts.
type HistoryReader interface {
	GetLastInStockEvent(productID string) (*models.HistoryEvent, error)
}

// Calculator diffs the previously persisted snapshot against the
// freshly built one. It never mutates either snapshot on its own.
type Calculator struct {
	history  HistoryReader
	previous []models.Product
	updated  []models.Product

	prevByID map[string]*models.Product
	// lastInStock, once captured, pins the cooldown checks to the
	// history log as it stood at capture time.
	lastInStock map[string]*models.HistoryEvent
}

// NewCalculator builds a calculator over the two snapshots.
func NewCalculator(history HistoryReader, previous, updated []models.Product) *Calculator {
	prevByID := make(map[string]*models.Product, len(previous))
	for i := range previous {
		prevByID[previous[i].ID] = &previous[i]
	}
	return &Calculator{
		history:  history,
		previous: previous,
		updated:  updated,
		prevByID: prevByID,
	}
}

// Previous returns the persisted snapshot the diff runs against.
func (c *Calculator) Previous() []models.Product { return c.previous }

// Updated returns the freshly built snapshot.
func (c *Calculator) Updated() []models.Product { return c.updated }

// HadPreviousSnapshot reports whether any product had been persisted
// before this cycle. The very first scan has nothing to diff against.
func (c *Calculator) HadPreviousSnapshot() bool { return len(c.previous) > 0 }

// BecameInStock returns the updated products that are in stock now
// but had no in-stock counterpart in the previous snapshot.
func (c *Calculator) BecameInStock() []models.Product {
	var out []models.Product
	for i := range c.updated {
		p := &c.updated[i]
		if !p.IsInStock() {
			continue
		}
		prev, ok := c.prevByID[p.ID]
		if !ok || !prev.IsInStock() {
			out = append(out, *p)
		}
	}
	sortForDisplay(out)
	return out
}

// BecameOutOfStock returns the updated products that are out of stock
// now but were in stock in the previous snapshot. A product that
// vanished from the feed entirely is not reported.
func (c *Calculator) BecameOutOfStock() []models.Product {
	var out []models.Product
	for i := range c.updated {
		p := &c.updated[i]
		if p.IsInStock() {
			continue
		}
		if prev, ok := c.prevByID[p.ID]; ok && prev.IsInStock() {
			out = append(out, *p)
		}
	}
	sortForDisplay(out)
	return out
}

// NewProducts returns the subset of BecameInStock whose identity did
// not exist at all in the previous snapshot.
func (c *Calculator) NewProducts() []models.Product {
	var out []models.Product
	for i := range c.updated {
		p := &c.updated[i]
		if !p.IsInStock() {
			continue
		}
		if _, ok := c.prevByID[p.ID]; !ok {
			out = append(out, *p)
		}
	}
	sortForDisplay(out)
	return out
}

// CaptureLastInStock records, for every product that just became in
// stock, the most recent in-stock event currently in the log. After
// capture WasRecentlyInStock answers from this snapshot, so the
// events this very cycle appends do not count against their own
// product's cooldown. Must be called before those events are written.
func (c *Calculator) CaptureLastInStock() error {
	captured := make(map[string]*models.HistoryEvent)
	for _, p := range c.BecameInStock() {
		event, err := c.history.GetLastInStockEvent(p.ID)
		if err != nil {
			return err
		}
		captured[p.ID] = event
	}
	c.lastInStock = captured
	return nil
}

// WasRecentlyInStock reports whether the product's most recent
// in-stock event happened within cooldown of now. With no recorded
// event the product is not considered recent.
func (c *Calculator) WasRecentlyInStock(p *models.Product, cooldown time.Duration, now time.Time) (bool, error) {
	event, captured := c.lastInStock[p.ID]
	if !captured {
		var err error
		event, err = c.history.GetLastInStockEvent(p.ID)
		if err != nil {
			return false, err
		}
	}
	if event == nil {
		return false, nil
	}
	return now.Sub(event.Timestamp) < cooldown, nil
}

// sortForDisplay orders transition sets so that new and interesting
// items surface first: IsNew, then category, producer and brand.
func sortForDisplay(products []models.Product) {
	sort.SliceStable(products, func(i, j int) bool {
		a, b := &products[i], &products[j]
		if a.IsNew != b.IsNew {
			return a.IsNew
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.ProducerName != b.ProducerName {
			return a.ProducerName < b.ProducerName
		}
		return a.Brand < b.Brand
	})
}

// InStock filters a snapshot down to the products currently in stock.
func InStock(products []models.Product) []models.Product {
	var out []models.Product
	for i := range products {
		if products[i].IsInStock() {
			out = append(out, products[i])
		}
	}
	return out
}
