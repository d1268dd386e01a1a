package models

import "testing"

func TestIsInStockDerivedFromVariants(t *testing.T) {
	p := Product{Variants: []Variant{{ID: "v1"}, {ID: "v2"}}}
	if p.IsInStock() {
		t.Error("product with no in-stock variant reported in stock")
	}

	p.Variants[1].InStock = true
	if !p.IsInStock() {
		t.Error("product with an in-stock variant reported out of stock")
	}
}

func TestVariantLookup(t *testing.T) {
	p := Product{Variants: []Variant{{ID: "v1"}, {ID: "v2"}}}

	if v := p.Variant("v2"); v == nil || v.ID != "v2" {
		t.Errorf("Variant(v2) = %+v", v)
	}
	if v := p.Variant("missing"); v != nil {
		t.Errorf("Variant(missing) = %+v, want nil", v)
	}
}

func TestSpecificationUsesFirstVariantWithSpecs(t *testing.T) {
	p := Product{Variants: []Variant{
		{ID: "v1"},
		{ID: "v2", Specifications: Specs{SpecStrain: "Hindu Kush"}},
	}}

	strain, ok := p.Specification(SpecStrain)
	if !ok || strain != "Hindu Kush" {
		t.Errorf("Specification(Strain) = %q, %v", strain, ok)
	}
	if _, ok := p.Specification("Missing"); ok {
		t.Error("Specification reported a missing key as present")
	}
}

func TestSpecsGetNilSafe(t *testing.T) {
	var s Specs
	if _, ok := s.Get(SpecStrain); ok {
		t.Error("nil Specs reported a key as present")
	}
	if got := s.GetOr(SpecStrain, "fallback"); got != "fallback" {
		t.Errorf("GetOr on nil Specs = %q, want fallback", got)
	}
}
