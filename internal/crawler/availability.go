package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/stockwatcher/logger"
)

// Page is a fetched product page offered to availability rules
type Page struct {
	URL  string
	HTML string

	once   sync.Once
	doc    *goquery.Document
	docErr error
}

// Document parses the page on first use
func (p *Page) Document() (*goquery.Document, error) {
	p.once.Do(func() {
		p.doc, p.docErr = goquery.NewDocumentFromReader(strings.NewReader(p.HTML))
	})
	return p.doc, p.docErr
}

// AvailabilityRule inspects a page. matched=false lets the next rule decide.
type AvailabilityRule struct {
	Name  string
	Check func(page *Page) (available bool, matched bool, err error)
}

const defaultRuleName = "default"

var (
	inStockMarkers = []string{
		`"availability": "http://schema.org/InStock"`,
		`"availability":"http://schema.org/InStock"`,
	}
	outOfStockMarkers = []string{
		`"availability": "http://schema.org/OutOfStock"`,
		`"availability":"http://schema.org/OutOfStock"`,
	}
	soldOutLabels = []string{"esgotado", "sold out"}
)

// SchemaMarkerRule looks for schema.org availability in the raw HTML. InStock wins over OutOfStock.
func SchemaMarkerRule() AvailabilityRule {
	return AvailabilityRule{
		Name: "schema_marker",
		Check: func(page *Page) (bool, bool, error) {
			if containsAny(page.HTML, inStockMarkers) {
				return true, true, nil
			}
			if containsAny(page.HTML, outOfStockMarkers) {
				return false, true, nil
			}
			return false, false, nil
		},
	}
}

// SoldOutButtonRule reports unavailable when a submit button reads "esgotado" or "sold out"
func SoldOutButtonRule() AvailabilityRule {
	return AvailabilityRule{
		Name: "sold_out_button",
		Check: func(page *Page) (bool, bool, error) {
			doc, err := page.Document()
			if err != nil {
				return false, false, err
			}

			soldOut := false
			doc.Find("button[type='submit']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
				if containsAny(strings.ToLower(s.Text()), soldOutLabels) {
					soldOut = true
					return false
				}
				return true
			})
			if soldOut {
				return false, true, nil
			}
			return false, false, nil
		},
	}
}

// DefaultRules returns the storefront rule chain in evaluation order
func DefaultRules() []AvailabilityRule {
	return []AvailabilityRule{SchemaMarkerRule(), SoldOutButtonRule()}
}

// Evaluate runs rules in order; the first match decides. Nothing matching means available.
func Evaluate(rules []AvailabilityRule, page *Page) (bool, string, error) {
	for _, rule := range rules {
		available, matched, err := rule.Check(page)
		if err != nil {
			return false, rule.Name, fmt.Errorf("rule %s: %w", rule.Name, err)
		}
		if matched {
			return available, rule.Name, nil
		}
	}
	return true, defaultRuleName, nil
}

// AvailabilityResolver fetches the human-facing product page and evaluates the rule chain
type AvailabilityResolver struct {
	fetcher Fetcher
	rules   []AvailabilityRule
	timeout time.Duration
	log     *logger.Logger
}

// NewAvailabilityResolver creates a resolver. A nil rules slice means DefaultRules.
func NewAvailabilityResolver(fetcher Fetcher, rules []AvailabilityRule, timeout time.Duration) *AvailabilityResolver {
	if rules == nil {
		rules = DefaultRules()
	}
	return &AvailabilityResolver{
		fetcher: fetcher,
		rules:   rules,
		timeout: timeout,
		log:     logger.ForCrawler("availability"),
	}
}

// Resolve never fails: any fetch or rule error resolves to unavailable
func (r *AvailabilityResolver) Resolve(ctx context.Context, productURL string) bool {
	resp, err := r.fetcher.Get(ctx, productURL, r.timeout)
	if err != nil {
		r.log.Warn().Err(err).Str("url", productURL).Msg("Product page unavailable, marking out of stock")
		return false
	}
	if !resp.OK() {
		r.log.Warn().Int("status", resp.StatusCode).Str("url", productURL).Msg("Product page unavailable, marking out of stock")
		return false
	}

	available, rule, err := Evaluate(r.rules, &Page{URL: productURL, HTML: string(resp.Body)})
	if err != nil {
		r.log.Warn().Err(err).Str("url", productURL).Msg("Availability rule failed, marking out of stock")
		return false
	}

	r.log.Debug().Str("url", productURL).Str("rule", rule).Bool("available", available).Msg("Availability resolved from page")
	return available
}

func containsAny(s string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
