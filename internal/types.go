package internal

import (
	"io"

	"sjsage522/stockwatcher/internal/crawler"
	"sjsage522/stockwatcher/logger"
	"sjsage522/stockwatcher/services/cache"
	"sjsage522/stockwatcher/services/publisher"
	"sjsage522/stockwatcher/services/store"
)

// Dependencies holds all service dependencies
type Dependencies struct {
	Cache cache.CacheService
	// Fetcher serves sitemaps and product JSON
	Fetcher crawler.Fetcher
	// PageFetcher serves the rendered product page for the availability fallback
	PageFetcher crawler.Fetcher
	Store       store.SnapshotStore
	// Publisher is nil when no stream is configured
	Publisher publisher.Publisher

	closers []io.Closer
}

// AddCloser registers a resource released by Cleanup
func (d *Dependencies) AddCloser(c io.Closer) {
	d.closers = append(d.closers, c)
}

// Cleanup releases everything in reverse order of acquisition
func (d *Dependencies) Cleanup() {
	log := logger.ForComponent("services")

	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to release resource")
		}
	}
	d.closers = nil

	if d.Publisher != nil {
		if err := d.Publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close publisher")
		}
	}
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close store")
		}
	}
}
