package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/stockwatcher/helpers"
	stockerrors "sjsage522/stockwatcher/pkg/errors"
)

const productURL = "https://shop.example.com/products/camiseta-azul"

func extractJSON(t *testing.T, body string, checker *stubChecker) (*ProductSnapshot, error) {
	t.Helper()
	fetcher := NewMockFetcher().Respond(productURL+".json", http.StatusOK, "application/json", body)
	if checker == nil {
		checker = &stubChecker{available: true}
	}
	return NewProductExtractor(fetcher, checker, time.Second).Extract(context.Background(), productURL)
}

func TestExtractStructured(t *testing.T) {
	body := `{"product":{
		"title":"Camiseta Azul",
		"product_type":"Camisetas",
		"tags":["verão","algodão"],
		"images":[{"src":"https://cdn.example.com/a.jpg"},{"src":"https://cdn.example.com/b.jpg"}],
		"variants":[
			{"id":40123456789,"sku":"CAM-AZ-P","price":"129.90","compare_at_price":"159.90","available":true},
			{"id":40123456790,"sku":"CAM-AZ-M","price":"99.00","available":false}
		]}}`
	checker := &stubChecker{available: false}

	snapshot, err := extractJSON(t, body, checker)
	require.NoError(t, err)

	assert.Equal(t, "Camiseta Azul", snapshot.ProductName)
	assert.Equal(t, "Camisetas", snapshot.Category)
	assert.Equal(t, "verão, algodão", snapshot.Tags)
	assert.Equal(t, "https://cdn.example.com/a.jpg", snapshot.ImageURL)
	assert.Equal(t, "CAM-AZ-P", snapshot.SKU)
	assert.Equal(t, "40123456789", snapshot.VariantID)
	assert.Equal(t, productURL, snapshot.URL)
	assert.Equal(t, 129.90, snapshot.CurrentPrice)
	assert.Equal(t, 159.90, snapshot.OriginalPrice)
	assert.True(t, snapshot.IsPromotion)
	assert.True(t, snapshot.Available)
	assert.Equal(t, VerificationStructured, snapshot.VerificationMethod)
	assert.True(t, snapshot.CollectedAt.IsZero())
	assert.Empty(t, checker.calls, "structured availability must not hit the fallback")
}

func TestExtractDefaults(t *testing.T) {
	body := `{"product":{"title":null,"variants":[{"price":"10","available":false}]}}`

	snapshot, err := extractJSON(t, body, nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultTitle, snapshot.ProductName)
	assert.Equal(t, DefaultCategory, snapshot.Category)
	assert.Equal(t, "", snapshot.Tags)
	assert.Equal(t, "", snapshot.ImageURL)
	assert.Equal(t, "", snapshot.SKU)
	assert.Equal(t, "", snapshot.VariantID)
	assert.Equal(t, 10.0, snapshot.OriginalPrice)
	assert.False(t, snapshot.IsPromotion)
	assert.False(t, snapshot.Available)
	assert.Equal(t, VerificationStructured, snapshot.VerificationMethod)
}

func TestExtractTags(t *testing.T) {
	snapshot, err := extractJSON(t, `{"product":{"tags":"a, b","variants":[{"price":"1","available":true}]}}`, nil)
	require.NoError(t, err)
	assert.Equal(t, "a, b", snapshot.Tags)

	snapshot, err = extractJSON(t, `{"product":{"tags":["novo",2024,null],"variants":[{"price":"1","available":true}]}}`, nil)
	require.NoError(t, err)
	assert.Equal(t, "novo, 2024, ", snapshot.Tags)
}

func TestExtractFallsBackForHiddenAvailability(t *testing.T) {
	for name, variant := range map[string]string{
		"null":     `{"price":"50.00","available":null}`,
		"absent":   `{"price":"50.00"}`,
		"non-bool": `{"price":"50.00","available":"yes"}`,
	} {
		t.Run(name, func(t *testing.T) {
			checker := &stubChecker{available: false}
			snapshot, err := extractJSON(t, `{"product":{"title":"X","variants":[`+variant+`]}}`, checker)
			require.NoError(t, err)

			assert.Equal(t, []string{productURL}, checker.calls)
			assert.False(t, snapshot.Available)
			assert.Equal(t, VerificationRenderedFallback, snapshot.VerificationMethod)
		})
	}
}

func TestExtractCompareAt(t *testing.T) {
	tests := []struct {
		name      string
		compareAt string
		original  float64
		promo     bool
	}{
		{"null", `null`, 80, false},
		{"empty string", `""`, 80, false},
		{"numeric zero", `0`, 80, false},
		{"false", `false`, 80, false},
		{"unparsable", `"abc"`, 80, false},
		{"higher", `"100.00"`, 100, true},
		// promotion is flagged without comparing magnitudes
		{"lower", `"50.00"`, 50, true},
		{"number", `120.5`, 120.5, true},
		{"string zero", `"0.00"`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := `{"product":{"variants":[{"price":"80","compare_at_price":` + tt.compareAt + `,"available":true}]}}`
			snapshot, err := extractJSON(t, body, nil)
			require.NoError(t, err)
			assert.Equal(t, 80.0, snapshot.CurrentPrice)
			assert.Equal(t, tt.original, snapshot.OriginalPrice)
			assert.Equal(t, tt.promo, snapshot.IsPromotion)
		})
	}
}

func TestExtractErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		errType stockerrors.ErrorType
	}{
		{"not found", http.StatusNotFound, "", stockerrors.ErrorTypeNetwork},
		{"server error", http.StatusInternalServerError, "oops", stockerrors.ErrorTypeNetwork},
		{"malformed json", http.StatusOK, `{"product":`, stockerrors.ErrorTypeParsing},
		{"wrong shape", http.StatusOK, `{"product":{"variants":"none"}}`, stockerrors.ErrorTypeParsing},
		{"missing product", http.StatusOK, `{}`, stockerrors.ErrorTypeValidation},
		{"null product", http.StatusOK, `{"product":null}`, stockerrors.ErrorTypeValidation},
		{"no variants", http.StatusOK, `{"product":{"title":"X","variants":[]}}`, stockerrors.ErrorTypeValidation},
		{"null first variant", http.StatusOK, `{"product":{"title":"X","variants":[null,{"price":"10","available":true}]}}`, stockerrors.ErrorTypeValidation},
		{"variant not an object", http.StatusOK, `{"product":{"title":"X","variants":["x"]}}`, stockerrors.ErrorTypeParsing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := NewMockFetcher().Respond(productURL+".json", tt.status, "application/json", tt.body)
			checker := &stubChecker{}
			snapshot, err := NewProductExtractor(fetcher, checker, time.Second).Extract(context.Background(), productURL)
			assert.Nil(t, snapshot)
			assert.Equal(t, tt.errType, stockerrors.TypeOf(err))
			assert.Empty(t, checker.calls, "no fallback page fetch for a rejected payload")
		})
	}

	fetcher := NewMockFetcher().Fail(productURL+".json", errors.New("i/o timeout"))
	_, err := NewProductExtractor(fetcher, &stubChecker{}, time.Second).Extract(context.Background(), productURL)
	assert.True(t, stockerrors.Is(err, stockerrors.ErrorTypeNetwork))
}

func TestExtractKeepsRateLimitError(t *testing.T) {
	fetcher := FetcherFunc(func(ctx context.Context, url string, timeout time.Duration) (*helpers.Response, error) {
		return nil, stockerrors.NewRateLimit("shop.example.com", time.Minute)
	})
	_, err := NewProductExtractor(fetcher, &stubChecker{}, time.Second).Extract(context.Background(), productURL)
	assert.True(t, stockerrors.Is(err, stockerrors.ErrorTypeRateLimit))
}

func TestParsePrice(t *testing.T) {
	tests := map[string]float64{
		`"129.90"`: 129.90,
		`" 15 "`:   15,
		`42`:       42,
		`0.5`:      0.5,
		`"abc"`:    0,
		`""`:       0,
		`null`:     0,
		`true`:     0,
		`"-5"`:     0,
		`-5`:       0,
		`"NaN"`:    0,
		`"Inf"`:    0,
		`{"a":1}`:  0,
		``:         0,
	}

	for raw, want := range tests {
		assert.Equal(t, want, ParsePrice(json.RawMessage(raw)), "ParsePrice(%s)", raw)
	}
}
