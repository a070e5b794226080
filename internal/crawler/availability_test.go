package crawler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSchemaMarkerRule(t *testing.T) {
	rule := SchemaMarkerRule()

	tests := []struct {
		name      string
		html      string
		available bool
		matched   bool
	}{
		{"in stock spaced", `{"availability": "http://schema.org/InStock"}`, true, true},
		{"in stock compact", `{"availability":"http://schema.org/InStock"}`, true, true},
		{"out of stock spaced", `{"availability": "http://schema.org/OutOfStock"}`, false, true},
		{"out of stock compact", `{"availability":"http://schema.org/OutOfStock"}`, false, true},
		{"in stock wins", `"availability": "http://schema.org/OutOfStock" "availability": "http://schema.org/InStock"`, true, true},
		{"no marker", `<html><body>Camiseta</body></html>`, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			available, matched, err := rule.Check(&Page{HTML: tt.html})
			assert.NoError(t, err)
			assert.Equal(t, tt.available, available)
			assert.Equal(t, tt.matched, matched)
		})
	}
}

func TestSoldOutButtonRule(t *testing.T) {
	rule := SoldOutButtonRule()

	tests := []struct {
		name    string
		html    string
		matched bool
	}{
		{"esgotado", `<form><button type="submit"> ESGOTADO </button></form>`, true},
		{"sold out", `<form><button type="submit"><span>Sold Out</span></button></form>`, true},
		{"buy button", `<form><button type="submit">Comprar</button></form>`, false},
		{"non-submit button", `<button type="button">Esgotado</button>`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			available, matched, err := rule.Check(&Page{HTML: tt.html})
			assert.NoError(t, err)
			assert.False(t, available)
			assert.Equal(t, tt.matched, matched)
		})
	}
}

func TestEvaluate(t *testing.T) {
	// schema marker is consulted before the button
	html := `<script>{"availability": "http://schema.org/InStock"}</script><button type="submit">Esgotado</button>`
	available, rule, err := Evaluate(DefaultRules(), &Page{HTML: html})
	assert.NoError(t, err)
	assert.True(t, available)
	assert.Equal(t, "schema_marker", rule)

	available, rule, err = Evaluate(DefaultRules(), &Page{HTML: `<button type="submit">Esgotado</button>`})
	assert.NoError(t, err)
	assert.False(t, available)
	assert.Equal(t, "sold_out_button", rule)

	available, rule, err = Evaluate(DefaultRules(), &Page{HTML: `<p>nothing to see</p>`})
	assert.NoError(t, err)
	assert.True(t, available)
	assert.Equal(t, "default", rule)

	broken := AvailabilityRule{Name: "broken", Check: func(*Page) (bool, bool, error) {
		return true, true, errors.New("boom")
	}}
	_, rule, err = Evaluate([]AvailabilityRule{broken}, &Page{})
	assert.Error(t, err)
	assert.Equal(t, "broken", rule)
}

func TestAvailabilityResolver(t *testing.T) {
	const page = "https://shop.example.com/products/bone-preto"

	tests := []struct {
		name      string
		fetcher   *MockFetcher
		available bool
	}{
		{"in stock marker", NewMockFetcher().Respond(page, http.StatusOK, "text/html", `"availability":"http://schema.org/InStock"`), true},
		{"out of stock marker", NewMockFetcher().Respond(page, http.StatusOK, "text/html", `"availability": "http://schema.org/OutOfStock"`), false},
		{"sold out button", NewMockFetcher().Respond(page, http.StatusOK, "text/html", `<button type="submit">Esgotado</button>`), false},
		{"no evidence", NewMockFetcher().Respond(page, http.StatusOK, "text/html", `<html><body></body></html>`), true},
		{"not found", NewMockFetcher(), false},
		{"transport error", NewMockFetcher().Fail(page, errors.New("connection reset")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := NewAvailabilityResolver(tt.fetcher, nil, time.Second)
			assert.Equal(t, tt.available, resolver.Resolve(context.Background(), page))
			assert.Equal(t, []string{page}, tt.fetcher.Calls())
		})
	}
}

func TestAvailabilityResolverRuleError(t *testing.T) {
	const page = "https://shop.example.com/products/bone-preto"
	fetcher := NewMockFetcher().Respond(page, http.StatusOK, "text/html", "<html></html>")
	broken := AvailabilityRule{Name: "broken", Check: func(*Page) (bool, bool, error) {
		return true, true, errors.New("boom")
	}}

	resolver := NewAvailabilityResolver(fetcher, []AvailabilityRule{broken}, time.Second)
	assert.False(t, resolver.Resolve(context.Background(), page))
}

func TestPageDocumentIsLazy(t *testing.T) {
	page := &Page{HTML: `<button type="submit">Comprar</button>`}
	assert.Nil(t, page.doc)

	doc, err := page.Document()
	assert.NoError(t, err)
	assert.Equal(t, 1, doc.Find("button").Length())

	again, _ := page.Document()
	assert.Same(t, doc, again)
}
