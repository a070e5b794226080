package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"sjsage522/stockwatcher/pkg/errors"
)

// Placeholders kept identical to the rows already in the history table
const (
	DefaultTitle    = "Sem Título"
	DefaultCategory = "Outros"
)

// AvailabilityChecker decides stock status when the structured feed does not
type AvailabilityChecker interface {
	Resolve(ctx context.Context, productURL string) bool
}

type productEnvelope struct {
	Product *productPayload `json:"product"`
}

type productPayload struct {
	Title       json.RawMessage   `json:"title"`
	ProductType json.RawMessage   `json:"product_type"`
	Tags        json.RawMessage   `json:"tags"`
	Images      []imagePayload    `json:"images"`
	Variants    []json.RawMessage `json:"variants"`
}

type imagePayload struct {
	Src json.RawMessage `json:"src"`
}

type variantPayload struct {
	ID             json.RawMessage `json:"id"`
	SKU            json.RawMessage `json:"sku"`
	Price          json.RawMessage `json:"price"`
	CompareAtPrice json.RawMessage `json:"compare_at_price"`
	Available      json.RawMessage `json:"available"`
}

// ProductExtractor turns a product page URL into a snapshot using the storefront's JSON feed
type ProductExtractor struct {
	fetcher  Fetcher
	resolver AvailabilityChecker
	timeout  time.Duration
}

// NewProductExtractor creates an extractor. resolver is consulted only when the feed hides availability.
func NewProductExtractor(fetcher Fetcher, resolver AvailabilityChecker, timeout time.Duration) *ProductExtractor {
	return &ProductExtractor{
		fetcher:  fetcher,
		resolver: resolver,
		timeout:  timeout,
	}
}

// Extract fetches productURL + ".json" and builds a snapshot from its first variant.
// CollectedAt is left zero for the caller to stamp.
func (e *ProductExtractor) Extract(ctx context.Context, productURL string) (*ProductSnapshot, error) {
	endpoint := productURL + ".json"

	resp, err := e.fetcher.Get(ctx, endpoint, e.timeout)
	if err != nil {
		if errors.TypeOf(err) != "" {
			return nil, err
		}
		return nil, errors.NewNetwork(endpoint, "request failed", err)
	}
	if !resp.OK() {
		return nil, errors.NewNetwork(endpoint, fmt.Sprintf("unexpected status code: %d", resp.StatusCode), nil)
	}

	var envelope productEnvelope
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, errors.NewParsing(endpoint, "invalid product JSON", err)
	}
	product := envelope.Product
	if product == nil {
		return nil, errors.NewValidation(endpoint, "missing product")
	}
	if len(product.Variants) == 0 {
		return nil, errors.NewValidation(endpoint, "product has no variants")
	}
	if isNull(product.Variants[0]) {
		return nil, errors.NewValidation(endpoint, "first variant is null")
	}
	var variant variantPayload
	if err := json.Unmarshal(product.Variants[0], &variant); err != nil {
		return nil, errors.NewParsing(endpoint, "invalid variant", err)
	}

	snapshot := &ProductSnapshot{
		ProductName:  stringOr(product.Title, DefaultTitle),
		SKU:          rawText(variant.SKU),
		Category:     stringOr(product.ProductType, DefaultCategory),
		URL:          productURL,
		Tags:         joinTags(product.Tags),
		CurrentPrice: ParsePrice(variant.Price),
		VariantID:    rawText(variant.ID),
	}
	if len(product.Images) > 0 {
		snapshot.ImageURL = rawText(product.Images[0].Src)
	}

	snapshot.OriginalPrice = snapshot.CurrentPrice
	if compareAtPresent(variant.CompareAtPrice) {
		if original, ok := parsePrice(variant.CompareAtPrice); ok {
			snapshot.OriginalPrice = original
			snapshot.IsPromotion = true
		}
	}

	if available, ok := rawBool(variant.Available); ok {
		snapshot.Available = available
		snapshot.VerificationMethod = VerificationStructured
	} else {
		snapshot.Available = e.resolver.Resolve(ctx, productURL)
		snapshot.VerificationMethod = VerificationRenderedFallback
	}

	return snapshot, nil
}

// ParsePrice converts a JSON price (string or number) to a float.
// Anything unparsable, negative or non-finite becomes 0.
func ParsePrice(raw json.RawMessage) float64 {
	price, ok := parsePrice(raw)
	if !ok {
		return 0
	}
	return price
}

func parsePrice(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}

	var text string
	switch raw[0] {
	case '"':
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, false
		}
		text = strings.TrimSpace(text)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		text = string(raw)
	default:
		return 0, false
	}

	price, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return 0, false
	}
	return price, true
}

// compareAtPresent treats null, "", numeric zero and false as "no compare-at price"
func compareAtPresent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return false
	}
	switch string(raw) {
	case `""`, "false":
		return false
	}
	if f, err := strconv.ParseFloat(string(raw), 64); err == nil && f == 0 {
		return false
	}
	return true
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || string(raw) == "null"
}

func rawBool(raw json.RawMessage) (bool, bool) {
	switch string(bytes.TrimSpace(raw)) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// rawText renders an opaque JSON scalar as text: strings unquoted, null empty, others verbatim
func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

func stringOr(raw json.RawMessage, fallback string) string {
	if isNull(raw) {
		return fallback
	}
	return rawText(raw)
}

// joinTags accepts a list (joined with ", ") or an already-joined string
func joinTags(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return ""
	}
	if raw[0] != '[' {
		return rawText(raw)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return ""
	}
	tags := make([]string, 0, len(items))
	for _, item := range items {
		tags = append(tags, rawText(item))
	}
	return strings.Join(tags, ", ")
}
