// Package catalog turns raw storefront data into full product
// snapshots and keeps availability statistics fresh.
package catalog

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"sqdc-watcher/internal/formatter"
	"sqdc-watcher/internal/history"
	"sqdc-watcher/internal/models"
	"sqdc-watcher/internal/scraper"
)

// referenceGramEquivalent is the canonical format used to represent a
// product's overall availability when that variant is in stock.
const referenceGramEquivalent = 3.5

// Source is the catalog endpoint surface the updater consumes.
type Source interface {
	ListingPage(ctx context.Context, page int) ([]scraper.ProductSummary, error)
	CalculatePrices(ctx context.Context, productIDs []string) (map[string][]scraper.VariantPrice, error)
	InStockVariantIDs(ctx context.Context, variantIDs []string) (map[string]bool, error)
	Specifications(ctx context.Context, productID, variantID string) (map[string]string, error)
}

// Store is the persistence slice the updater consumes.
type Store interface {
	GetProducts() ([]models.Product, error)
	UpdateLastScanTimestamp(ts time.Time) error
	GetHistory(productID, variantID string) ([]models.HistoryEvent, error)
}

// Updater builds the per-cycle snapshot by merging fetched data with
// the persisted one.
type Updater struct {
	source Source
	store  Store
	// MaxPages bounds pagination; zero means unbounded.
	MaxPages int
}

// NewUpdater wires an updater to its collaborators.
func NewUpdater(source Source, store Store) *Updater {
	return &Updater{source: source, store: store}
}

// Products builds the updated snapshot. When cached is non-nil it is
// reused as-is and no network call is made at all.
func (u *Updater) Products(ctx context.Context, cached []models.Product) ([]models.Product, error) {
	if cached != nil {
		log.Println("Using cached products")
		return cached, nil
	}

	start := time.Now()
	log.Println("Re-fetching products from SQDC API...")

	dbProducts, err := u.store.GetProducts()
	if err != nil {
		return nil, fmt.Errorf("loading persisted products: %w", err)
	}
	dbByID := make(map[string]*models.Product, len(dbProducts))
	dbVariants := make(map[string]*models.Variant)
	for i := range dbProducts {
		dbByID[dbProducts[i].ID] = &dbProducts[i]
		for j := range dbProducts[i].Variants {
			v := &dbProducts[i].Variants[j]
			dbVariants[v.ID] = v
		}
	}

	products, err := u.fetchAllSummaries(ctx, dbByID)
	if err != nil {
		return nil, err
	}

	if err := u.populateVariants(ctx, products, dbVariants); err != nil {
		return nil, err
	}

	if err := u.store.UpdateLastScanTimestamp(time.Now()); err != nil {
		return nil, fmt.Errorf("updating last scan timestamp: %w", err)
	}

	log.Printf("Website parsing - COMPLETED in %s", time.Since(start).Round(time.Millisecond))
	return products, nil
}

// fetchAllSummaries walks the listing pages until one comes back
// empty, merging each summary with its persisted counterpart.
func (u *Updater) fetchAllSummaries(ctx context.Context, dbByID map[string]*models.Product) ([]models.Product, error) {
	var products []models.Product
	page := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if u.MaxPages > 0 && page > u.MaxPages {
			break
		}

		summaries, err := u.source.ListingPage(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("fetching listing page %d: %w", page, err)
		}
		if len(summaries) == 0 {
			break
		}

		for _, s := range summaries {
			p := models.Product{
				ID:      s.ID,
				Title:   s.Title,
				URL:     s.URL,
				Brand:   s.Brand,
				InStock: s.InStock,
			}
			if db, ok := dbByID[s.ID]; ok {
				p.CreatedAt = db.CreatedAt
				p.LastUpdated = db.LastUpdated
				p.Category = db.Category
				p.CannabisType = db.CannabisType
				p.ProducerName = db.ProducerName
				p.LastNotifiedAt = db.LastNotifiedAt
				p.AvailabilityStats = db.AvailabilityStats
			}
			products = append(products, p)
		}
		page++
	}

	log.Printf("Fetched %d products from SQDC API (%d pages)", len(products), page-1)
	return products, nil
}

// populateVariants attaches price, inventory and specification data
// to every product in place.
func (u *Updater) populateVariants(ctx context.Context, products []models.Product, dbVariants map[string]*models.Variant) error {
	productIDs := make([]string, 0, len(products))
	for i := range products {
		productIDs = append(productIDs, products[i].ID)
	}

	prices, err := u.source.CalculatePrices(ctx, productIDs)
	if err != nil {
		return fmt.Errorf("calculating prices: %w", err)
	}

	var allVariantIDs []string
	for i := range products {
		p := &products[i]
		entries, ok := prices[p.ID]
		if !ok {
			log.Printf("No price entries for product %s (%s), skipping its variants", p.ID, p.Title)
			continue
		}

		var variants []models.Variant
		for _, entry := range entries {
			v := models.Variant{
				ID:           entry.VariantID,
				ProductID:    p.ID,
				ListPrice:    entry.ListPrice,
				Price:        entry.DisplayPrice,
				PricePerGram: entry.PricePerGram,
			}
			if db, ok := dbVariants[entry.VariantID]; ok {
				v.CreatedAt = db.CreatedAt
				v.LastUpdated = db.LastUpdated
				v.OutOfStockSince = db.OutOfStockSince
				v.Specifications = db.Specifications
				v.QuantityDescription = db.QuantityDescription
			}
			variants = append(variants, v)
			allVariantIDs = append(allVariantIDs, v.ID)
		}
		p.Variants = variants
	}

	inStock, err := u.source.InStockVariantIDs(ctx, allVariantIDs)
	if err != nil {
		return fmt.Errorf("fetching inventory: %w", err)
	}

	now := time.Now()
	for i := range products {
		p := &products[i]
		for j := range p.Variants {
			if err := ctx.Err(); err != nil {
				return err
			}
			v := &p.Variants[j]
			v.InStock = inStock[v.ID]
			if v.InStock {
				v.OutOfStockSince = nil
			} else if v.OutOfStockSince == nil {
				t := now
				v.OutOfStockSince = &t
			}

			// Specifications are fetched once per variant and then
			// reused forever, even when the site changes them.
			if v.Specifications == nil {
				specs, err := u.source.Specifications(ctx, v.ProductID, v.ID)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					log.Printf("Failed to fetch specifications for variant %s of product %s: %v", v.ID, p.ID, err)
					continue
				}
				v.Specifications = specs
			}

			if raw, ok := v.Specifications.Get(models.SpecGramEquivalent); ok {
				v.QuantityDescription = formatter.FormatVariantQuantity(raw)
			}
			p.Category = v.Specifications.GetOr(models.SpecCategory, p.Category)
			p.CannabisType = v.Specifications.GetOr(models.SpecCannabisType, p.CannabisType)
			p.ProducerName = v.Specifications.GetOr(models.SpecProducerName, p.ProducerName)
		}
		p.InStock = p.IsInStock()
	}
	return nil
}

// UpdateAvailabilityStats recomputes the product's availability
// percentage from the best representative in-stock variant.
func (u *Updater) UpdateAvailabilityStats(p *models.Product, asOf time.Time) error {
	variants := p.VariantsInStock()
	if len(variants) == 0 {
		return nil
	}

	if ref := findReferenceVariant(variants); ref != nil {
		pct, err := u.variantAvailability(ref, p, asOf)
		if err != nil {
			return err
		}
		p.AvailabilityStats = pct
		return nil
	}

	best := -1.0
	for i := range variants {
		pct, err := u.variantAvailability(&variants[i], p, asOf)
		if err != nil {
			return err
		}
		if pct > best {
			best = pct
		}
	}
	p.AvailabilityStats = best
	return nil
}

func (u *Updater) variantAvailability(v *models.Variant, p *models.Product, asOf time.Time) (float64, error) {
	entries, err := u.store.GetHistory(v.ProductID, v.ID)
	if err != nil {
		return 0, fmt.Errorf("loading history for variant %s: %w", v.ID, err)
	}
	return history.PercentInStock(v, p, entries, asOf), nil
}

func findReferenceVariant(variants []models.Variant) *models.Variant {
	for i := range variants {
		raw, ok := variants[i].Specifications.Get(models.SpecGramEquivalent)
		if !ok {
			continue
		}
		grams, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err == nil && grams == referenceGramEquivalent {
			return &variants[i]
		}
	}
	return nil
}
