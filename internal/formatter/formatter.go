// Package formatter renders products for log output and notifications.
package formatter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"sqdc-watcher/internal/models"

	"github.com/olekukonko/tablewriter"
)

const (
	strainMaxWidth        = 25
	singleBrandingWidth   = 25
	dualBrandingCompWidth = 12
)

// Brands that add no information to the display line.
var (
	hiddenBrands    = map[string]bool{"Plain Packaging": true}
	hiddenSuppliers = map[string]bool{"Aurora Cannabis": true}
)

// FormatProduct builds the one-line notification text for a product.
func FormatProduct(p *models.Product) string {
	return fmt.Sprintf("%s*%s* / %s - (%s %s) %s",
		newProductPrefix(p),
		formatNameWithType(p),
		FormatBrandAndSupplier(p),
		p.Category,
		FormatVariantsAvailable(p),
		p.URL)
}

// FormatProducts renders the product list, either as a table or as
// one line per product.
func FormatProducts(products []models.Product, displayFormat string) string {
	if displayFormat == "list" {
		lines := make([]string, 0, len(products))
		for i := range products {
			lines = append(lines, FormatProduct(&products[i]))
		}
		return strings.Join(lines, "\n")
	}
	return BuildProductsTable(products)
}

// BuildProductsTable renders the products as an aligned text table.
func BuildProductsTable(products []models.Product) string {
	var buf strings.Builder
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Name", "Category", "Brand", "Formats", "Availability"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)

	for i := range products {
		p := &products[i]
		table.Append([]string{
			formatNameWithType(p),
			p.Category,
			FormatBrandAndSupplier(p),
			FormatVariantsAvailable(p),
			fmt.Sprintf("%.0f%%", p.AvailabilityStats),
		})
	}
	table.Render()
	return buf.String()
}

// FormatVariantsAvailable lists the in-stock quantities, smallest first.
func FormatVariantsAvailable(p *models.Product) string {
	variants := p.VariantsInStock()
	sort.SliceStable(variants, func(i, j int) bool {
		return gramEquivalent(&variants[i]) < gramEquivalent(&variants[j])
	})

	descriptions := make([]string, 0, len(variants))
	for i := range variants {
		raw, ok := variants[i].Specifications.Get(models.SpecGramEquivalent)
		if !ok {
			continue
		}
		descriptions = append(descriptions, FormatVariantQuantity(raw))
	}
	return strings.Join(descriptions, ", ")
}

// FormatVariantQuantity renders a raw gram amount as e.g. "3.5g".
func FormatVariantQuantity(raw string) string {
	grams, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return raw
	}
	return strconv.FormatFloat(grams, 'f', -1, 64) + "g"
}

// FormatBrandAndSupplier combines brand and producer, hiding the
// uninformative ones.
func FormatBrandAndSupplier(p *models.Product) string {
	producer := p.ProducerName
	var components []string
	if !hiddenBrands[p.Brand] && p.Brand != "" {
		components = append(components, p.Brand)
	}
	if !hiddenSuppliers[producer] && producer != "" && producer != p.Brand {
		components = append(components, producer)
	}
	if len(components) == 0 {
		components = append(components, p.Brand)
	}

	display := components[0]
	if len(components) > 1 {
		display += " (" + applyMaxLength(components[1], dualBrandingCompWidth) + ")"
	} else {
		display = applyMaxLength(display, singleBrandingWidth)
	}
	return display
}

func formatName(p *models.Product) string {
	name := p.Title
	strain, _ := p.Specification(models.SpecStrain)
	strain = applyMaxLength(strain, strainMaxWidth)
	if strain != "" && !strings.EqualFold(strain, name) {
		if strings.Contains(strain, ",") {
			// A blend lists several strains; keep the title in front.
			name = fmt.Sprintf("%s (%s)", name, strain)
		} else {
			name = fmt.Sprintf("%s (%s)", strain, name)
		}
	}
	return name
}

func formatNameWithType(p *models.Product) string {
	name := formatName(p)
	if p.CannabisType != "" {
		name += ", " + p.CannabisType
	}
	return name
}

func newProductPrefix(p *models.Product) string {
	if p.IsNew {
		return ":new: "
	}
	return ""
}

func applyMaxLength(text string, max int) string {
	runes := []rune(text)
	if len(runes) > max {
		return string(runes[:max]) + "..."
	}
	return text
}

func gramEquivalent(v *models.Variant) float64 {
	raw, ok := v.Specifications.Get(models.SpecGramEquivalent)
	if !ok {
		return 0
	}
	grams, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return grams
}
