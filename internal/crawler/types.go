package crawler

import (
	"context"
	"time"

	"sjsage522/stockwatcher/helpers"
)

// VerificationMethod records which path resolved a snapshot's availability
type VerificationMethod string

const (
	// VerificationStructured means the structured feed carried a boolean
	VerificationStructured VerificationMethod = "STRUCTURED"
	// VerificationRenderedFallback means the rendered product page was inspected
	VerificationRenderedFallback VerificationMethod = "RENDERED_FALLBACK"
)

// ProductSnapshot is one observation of a product's price and stock
type ProductSnapshot struct {
	CollectedAt        time.Time          `json:"collected_at"`
	ProductName        string             `json:"product_name"`
	SKU                string             `json:"sku"`
	Category           string             `json:"category"`
	URL                string             `json:"url"`
	ImageURL           string             `json:"image_url"`
	Tags               string             `json:"tags"`
	OriginalPrice      float64            `json:"original_price"`
	CurrentPrice       float64            `json:"current_price"`
	IsPromotion        bool               `json:"is_promotion"`
	Available          bool               `json:"available"`
	VariantID          string             `json:"variant_id"`
	VerificationMethod VerificationMethod `json:"verification_method"`
}

// Fetcher performs a bounded GET. HTTP statuses are reported in the response;
// only transport failures come back as errors.
type Fetcher interface {
	Get(ctx context.Context, url string, timeout time.Duration) (*helpers.Response, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context, url string, timeout time.Duration) (*helpers.Response, error)

// Get calls f
func (f FetcherFunc) Get(ctx context.Context, url string, timeout time.Duration) (*helpers.Response, error) {
	return f(ctx, url, timeout)
}
