package crawler

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"

	"sjsage522/stockwatcher/logger"
	"sjsage522/stockwatcher/pkg/errors"
)

const (
	sitemapFilter = "products"
	productFilter = "/products/"
)

// locReader fetches an XML document and returns the <loc> entries containing a substring
type locReader struct {
	fetcher Fetcher
	timeout time.Duration
	filter  string
	log     *logger.Logger
}

// read never fails. Any error is logged and yields an empty slice.
func (r *locReader) read(ctx context.Context, url string) []string {
	locs, err := r.fetchLocs(ctx, url)
	if err != nil {
		r.log.Warn().Err(err).Str("url", url).Str("error_kind", string(errors.TypeOf(err))).Msg("Sitemap unavailable")
		return []string{}
	}
	return locs
}

func (r *locReader) fetchLocs(ctx context.Context, url string) ([]string, error) {
	resp, err := r.fetcher.Get(ctx, url, r.timeout)
	if err != nil {
		if errors.TypeOf(err) != "" {
			return nil, err
		}
		return nil, errors.NewNetwork(url, "request failed", err)
	}
	if !resp.OK() {
		return nil, errors.NewNetwork(url, fmt.Sprintf("unexpected status code: %d", resp.StatusCode), nil)
	}

	doc, err := xmlquery.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, errors.NewParsing(url, "invalid sitemap XML", err)
	}

	locs := []string{}
	for _, node := range xmlquery.Find(doc, "//loc") {
		loc := strings.TrimSpace(node.InnerText())
		if strings.Contains(loc, r.filter) {
			locs = append(locs, loc)
		}
	}
	return locs, nil
}

// SitemapDiscoverer lists the product sub-sitemaps of a sitemap index
type SitemapDiscoverer struct {
	reader locReader
}

// NewSitemapDiscoverer creates a discoverer bounded by timeout per fetch
func NewSitemapDiscoverer(fetcher Fetcher, timeout time.Duration) *SitemapDiscoverer {
	return &SitemapDiscoverer{reader: locReader{
		fetcher: fetcher,
		timeout: timeout,
		filter:  sitemapFilter,
		log:     logger.ForCrawler("sitemap"),
	}}
}

// Discover returns every <loc> of the root sitemap mentioning products, in document order
func (d *SitemapDiscoverer) Discover(ctx context.Context, rootURL string) []string {
	return d.reader.read(ctx, rootURL)
}

// ProductURLExtractor lists the product pages of one sub-sitemap
type ProductURLExtractor struct {
	reader locReader
}

// NewProductURLExtractor creates an extractor bounded by timeout per fetch
func NewProductURLExtractor(fetcher Fetcher, timeout time.Duration) *ProductURLExtractor {
	return &ProductURLExtractor{reader: locReader{
		fetcher: fetcher,
		timeout: timeout,
		filter:  productFilter,
		log:     logger.ForCrawler("product_urls"),
	}}
}

// ProductURLs returns every <loc> of the sub-sitemap containing /products/, in document order
func (e *ProductURLExtractor) ProductURLs(ctx context.Context, sitemapURL string) []string {
	return e.reader.read(ctx, sitemapURL)
}
