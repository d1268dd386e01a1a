// Package scraper talks to the SQDC storefront: one paginated HTML
// listing for product summaries plus JSON APIs for prices, inventory
// and specifications.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultLocale = "en-CA"
	defaultDomain = "https://www.sqdc.ca"
)

// ProductSummary is one entry parsed from a listing page.
type ProductSummary struct {
	ID      string
	Title   string
	URL     string
	Brand   string
	InStock bool
}

// VariantPrice is one variant price entry from the calculatePrices API.
type VariantPrice struct {
	VariantID    string
	ListPrice    float64
	DisplayPrice float64
	PricePerGram float64
}

// Client fetches catalog data over a shared HTTP session.
type Client struct {
	baseURL string
	locale  string
	client  *http.Client
}

// NewClient creates a client against the production storefront.
func NewClient() *Client {
	return NewClientWithBase(defaultDomain)
}

// NewClientWithBase creates a client against an alternate base URL,
// used by tests to point at a local server.
func NewClientWithBase(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		locale:  defaultLocale,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Language", c.locale)
	req.Header.Set("User-Agent", "sqdc-watcher")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	return req, nil
}

func (c *Client) htmlGet(ctx context.Context, path string) (*goquery.Document, error) {
	url := fmt.Sprintf("%s/%s/%s", c.baseURL, c.locale, path)
	req, err := c.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	log.Printf("GET %s completed in %.2gs", url, time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status code %d", url, resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

func (c *Client) apiPost(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/%s", c.baseURL, path)
	req, err := c.newRequest(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	log.Printf("POST %s completed in %.2gs", url, time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("POST %s: status code %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ListingPage fetches one search result page and parses its product
// tiles. An empty result signals the end of pagination. A tile that
// fails to parse is skipped, never fatal.
func (c *Client) ListingPage(ctx context.Context, page int) ([]ProductSummary, error) {
	path := fmt.Sprintf("Search?SortDirection=asc&keywords=*&page=%d", page)
	doc, err := c.htmlGet(ctx, path)
	if err != nil {
		return nil, err
	}

	var summaries []ProductSummary
	doc.Find("div.product-tile").Each(func(_ int, tile *goquery.Selection) {
		anchor := tile.Find(`a[data-qa="search-product-title"]`).First()
		title := strings.TrimSpace(anchor.Text())
		href, _ := anchor.Attr("href")
		id, ok := anchor.Attr("data-productid")
		if !ok || id == "" {
			log.Printf("Skipping product tile without id (title=%q url=%q)", title, href)
			return
		}

		tileClass, _ := tile.Attr("class")
		summaries = append(summaries, ProductSummary{
			ID:      id,
			Title:   title,
			URL:     c.baseURL + href,
			Brand:   strings.TrimSpace(tile.Find("div.js-equalized-brand").First().Text()),
			InStock: !strings.Contains(tileClass, "product-outofstock"),
		})
	})
	return summaries, nil
}

// CalculatePrices returns the variant price entries for the given
// products, keyed by product id.
func (c *Client) CalculatePrices(ctx context.Context, productIDs []string) (map[string][]VariantPrice, error) {
	log.Printf("Calling product/calculatePrices with %d product ids", len(productIDs))

	var response struct {
		ProductPrices []struct {
			ProductID     string `json:"ProductId"`
			VariantPrices []struct {
				VariantID    string `json:"VariantId"`
				ListPrice    string `json:"ListPrice"`
				DisplayPrice string `json:"DisplayPrice"`
				PricePerGram string `json:"PricePerGram"`
			} `json:"VariantPrices"`
		} `json:"ProductPrices"`
	}
	payload := map[string]interface{}{"products": productIDs}
	if err := c.apiPost(ctx, "product/calculatePrices", payload, &response); err != nil {
		return nil, err
	}

	prices := make(map[string][]VariantPrice, len(response.ProductPrices))
	for _, pp := range response.ProductPrices {
		var entries []VariantPrice
		for _, vp := range pp.VariantPrices {
			entries = append(entries, VariantPrice{
				VariantID:    vp.VariantID,
				ListPrice:    ParsePrice(vp.ListPrice),
				DisplayPrice: ParsePrice(vp.DisplayPrice),
				PricePerGram: ParsePrice(vp.PricePerGram),
			})
		}
		prices[pp.ProductID] = entries
	}
	return prices, nil
}

// InStockVariantIDs returns the subset of the given variant ids whose
// inventory is currently available.
func (c *Client) InStockVariantIDs(ctx context.Context, variantIDs []string) (map[string]bool, error) {
	log.Printf("Calling inventory/findInventoryItems with %d skus", len(variantIDs))

	var response []string
	payload := map[string]interface{}{"skus": variantIDs}
	if err := c.apiPost(ctx, "inventory/findInventoryItems", payload, &response); err != nil {
		return nil, err
	}

	inStock := make(map[string]bool, len(response))
	for _, id := range response {
		inStock[id] = true
	}
	return inStock, nil
}

// Specifications fetches the attribute map for one variant.
func (c *Client) Specifications(ctx context.Context, productID, variantID string) (map[string]string, error) {
	var response struct {
		Groups []struct {
			Attributes []struct {
				PropertyName string `json:"PropertyName"`
				Value        string `json:"Value"`
			} `json:"Attributes"`
		} `json:"Groups"`
	}
	payload := map[string]interface{}{"productId": productID, "variantId": variantID}
	if err := c.apiPost(ctx, "product/specifications", payload, &response); err != nil {
		return nil, err
	}
	if len(response.Groups) == 0 {
		return nil, fmt.Errorf("no specification groups for variant %s of product %s", variantID, productID)
	}

	attributes := make(map[string]string)
	for _, a := range response.Groups[0].Attributes {
		attributes[a.PropertyName] = a.Value
	}
	return attributes, nil
}

// ParsePrice converts a catalog price string such as "$12.35" to a float.
func ParsePrice(raw string) float64 {
	cleaned := strings.TrimSpace(strings.ReplaceAll(raw, "$", ""))
	if cleaned == "" {
		return 0
	}
	var value float64
	if _, err := fmt.Sscanf(cleaned, "%f", &value); err != nil {
		return 0
	}
	return value
}
