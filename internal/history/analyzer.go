// Package history reconstructs availability statistics from the
// append-only stock event log.
package history

import (
	"time"

	"sqdc-watcher/internal/models"
)

// accumulator splits elapsed time between the two stock states.
type accumulator struct {
	inStock    time.Duration
	outOfStock time.Duration
}

func (a *accumulator) add(d time.Duration, inStock bool) {
	if inStock {
		a.inStock += d
	} else {
		a.outOfStock += d
	}
}

// PercentInStock computes the fraction of the variant's observed
// lifetime spent in stock, as a percentage in [0, 100].
//
// The walk starts at the variant's creation (falling back to the
// first in-stock event when creation is unset) and is seeded with the
// product's current stock state. Only a real transition away from
// in-stock closes an interval, so consecutive events of the same kind
// recorded redundantly do not distort the total.
func PercentInStock(variant *models.Variant, product *models.Product, entries []models.HistoryEvent, asOf time.Time) float64 {
	created := variant.CreatedAt
	if created.IsZero() {
		for _, e := range entries {
			if e.Kind == models.EventInStock {
				created = e.Timestamp
				break
			}
		}
	}
	if created.IsZero() {
		return 0
	}

	total := asOf.Sub(created)
	if total <= 0 {
		return 0
	}

	acc := accumulator{}
	inStock := product.IsInStock()
	stateStart := created
	for _, e := range entries {
		eventInStock := e.Kind == models.EventInStock
		if inStock && !eventInStock {
			acc.add(e.Timestamp.Sub(stateStart), true)
			stateStart = e.Timestamp
		} else if !inStock {
			// Keep the anchor current while out of stock so the next
			// in-stock interval starts at the right place.
			acc.add(e.Timestamp.Sub(stateStart), false)
			stateStart = e.Timestamp
		}
		inStock = eventInStock
	}
	if inStock {
		acc.add(asOf.Sub(stateStart), true)
	}

	percentage := float64(acc.inStock) / float64(total) * 100
	if percentage < 0 {
		return 0
	}
	if percentage > 100 {
		return 100
	}
	return percentage
}
