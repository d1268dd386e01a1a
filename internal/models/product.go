package models

import "time"

// Specification keys populated from the catalog specifications API.
const (
	SpecStrain         = "Strain"
	SpecCannabisType   = "CannabisType"
	SpecProducerName   = "ProducerName"
	SpecCategory       = "LevelTwoCategory"
	SpecGramEquivalent = "GramEquivalent"
)

// Specs is the attribute map attached to a variant. Attributes are
// fetched once from the catalog and never refreshed afterwards.
type Specs map[string]string

// Get returns the attribute value and whether it is present.
func (s Specs) Get(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s[key]
	return v, ok
}

// GetOr returns the attribute value, or def when absent.
func (s Specs) GetOr(key, def string) string {
	if v, ok := s.Get(key); ok {
		return v
	}
	return def
}

// Product is a catalog product identified by its stable external id.
// It owns its variants; variants never point back at the product.
type Product struct {
	ID                string
	Title             string
	URL               string
	Brand             string
	Category          string
	CannabisType      string
	ProducerName      string
	InStock           bool
	IsNew             bool
	AvailabilityStats float64
	CreatedAt         time.Time
	LastUpdated       time.Time
	LastNotifiedAt    *time.Time
	Variants          []Variant
}

// Variant is one sale format of a product.
type Variant struct {
	ID                  string
	ProductID           string
	CreatedAt           time.Time
	LastUpdated         time.Time
	InStock             bool
	Specifications      Specs
	ListPrice           float64
	Price               float64
	PricePerGram        float64
	QuantityDescription string
	// OutOfStockSince is set exactly while the variant is out of stock.
	OutOfStockSince *time.Time
}

// IsInStock reports whether at least one variant is currently in stock.
func (p *Product) IsInStock() bool {
	for i := range p.Variants {
		if p.Variants[i].InStock {
			return true
		}
	}
	return false
}

// VariantsInStock returns the variants currently flagged in stock.
func (p *Product) VariantsInStock() []Variant {
	var out []Variant
	for _, v := range p.Variants {
		if v.InStock {
			out = append(out, v)
		}
	}
	return out
}

// Variant returns the owned variant with the given id, or nil.
func (p *Product) Variant(id string) *Variant {
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			return &p.Variants[i]
		}
	}
	return nil
}

// Specification looks up an attribute on the first variant that has
// specifications populated.
func (p *Product) Specification(key string) (string, bool) {
	for i := range p.Variants {
		if p.Variants[i].Specifications != nil {
			return p.Variants[i].Specifications.Get(key)
		}
	}
	return "", false
}

// HasSpecifications reports whether any variant carries specifications.
func (p *Product) HasSpecifications() bool {
	for i := range p.Variants {
		if p.Variants[i].Specifications != nil {
			return true
		}
	}
	return false
}
