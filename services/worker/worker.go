package worker

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"sjsage522/stockwatcher/internal/crawler"
	"sjsage522/stockwatcher/logger"
	"sjsage522/stockwatcher/pkg/errors"
	"sjsage522/stockwatcher/services/publisher"
	"sjsage522/stockwatcher/services/store"
)

// SitemapSource lists the product sub-sitemaps of the catalog
type SitemapSource interface {
	Discover(ctx context.Context, rootURL string) []string
}

// URLSource lists the product pages of one sub-sitemap
type URLSource interface {
	ProductURLs(ctx context.Context, sitemapURL string) []string
}

// Extractor builds a snapshot for one product page
type Extractor interface {
	Extract(ctx context.Context, productURL string) (*crawler.ProductSnapshot, error)
}

// Options controls one worker
type Options struct {
	SitemapURL string
	BatchSize  int
	MinDelay   time.Duration
	MaxDelay   time.Duration
	// Zero runs once and returns
	Interval time.Duration
}

// Summary describes one completed run
type Summary struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Sitemaps  int           `json:"sitemaps"`
	Attempted int           `json:"attempted"`
	Persisted int           `json:"persisted"`
	Skipped   int           `json:"skipped"`
	Lost      int           `json:"lost"`
}

// Worker handles the discovery, extraction and persistence process
type Worker struct {
	sitemaps  SitemapSource
	urls      URLSource
	extractor Extractor
	store     store.SnapshotStore
	publisher publisher.Publisher
	opts      Options
	logger    *logger.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
	rnd   *rand.Rand
}

// NewWorker creates a new worker. pub may be nil.
func NewWorker(
	sitemaps SitemapSource,
	urls URLSource,
	extractor Extractor,
	snapshots store.SnapshotStore,
	pub publisher.Publisher,
	opts Options,
) *Worker {
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.MaxDelay < opts.MinDelay {
		opts.MaxDelay = opts.MinDelay
	}
	return &Worker{
		sitemaps:  sitemaps,
		urls:      urls,
		extractor: extractor,
		store:     snapshots,
		publisher: pub,
		opts:      opts,
		logger:    logger.ForWorker(),
		now:       time.Now,
		sleep:     sleepContext,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start runs the pipeline once, or every Interval until ctx is cancelled
func (w *Worker) Start(ctx context.Context) error {
	for {
		summary, err := w.RunOnce(ctx)
		if err != nil {
			return err
		}
		if w.opts.Interval <= 0 || ctx.Err() != nil {
			return nil
		}

		w.logger.Info().Dur("interval", w.opts.Interval).Str("last_run_id", summary.RunID).Msg("Waiting for next run")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.opts.Interval):
		}
	}
}

// RunOnce walks the whole catalog once. Every row of a run shares one collected_at.
// Individual product failures are counted, never returned; only a failing final
// flush with nothing persisted is reported as an error.
func (w *Worker) RunOnce(ctx context.Context) (Summary, error) {
	started := w.now()
	summary := Summary{
		RunID:     uuid.NewString(),
		StartedAt: started.Truncate(time.Second),
	}
	log := w.logger.WithField("run_id", summary.RunID)
	log.Info().Str("sitemap", w.opts.SitemapURL).Msg("Run started")

	sitemaps := w.sitemaps.Discover(ctx, w.opts.SitemapURL)
	summary.Sitemaps = len(sitemaps)

	var productURLs []string
	for _, sm := range sitemaps {
		urls := w.urls.ProductURLs(ctx, sm)
		log.Debug().Str("sitemap", sm).Int("products", len(urls)).Msg("Sitemap read")
		productURLs = append(productURLs, urls...)
	}
	log.Info().Int("sitemaps", len(sitemaps)).Int("products", len(productURLs)).Msg("Catalog mapped")

	var batch []crawler.ProductSnapshot
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		// the final flush must run even after cancellation
		err := w.store.Flush(context.WithoutCancel(ctx))
		if err != nil {
			summary.Persisted -= len(batch)
			summary.Lost += len(batch)
			log.Error().Err(err).Int("lost", len(batch)).Msg("Flush failed, batch lost")
		} else {
			w.publishBatch(ctx, summary.RunID, batch, log)
		}
		batch = batch[:0]
		return err
	}

	var lastFlushErr error
	for i, productURL := range productURLs {
		// pause between consecutive requests, skipped products included
		if i > 0 {
			w.sleep(ctx, w.jitter())
		}
		if ctx.Err() != nil {
			log.Warn().Int("remaining", len(productURLs)-i).Msg("Run cancelled, stopping early")
			break
		}

		summary.Attempted++
		snapshot, err := w.extractor.Extract(ctx, productURL)
		if err != nil {
			summary.Skipped++
			log.Warn().Err(err).Str("url", productURL).Str("error_kind", string(errors.TypeOf(err))).Msg("Product skipped")
			continue
		}

		snapshot.CollectedAt = summary.StartedAt
		if err := w.store.Append(ctx, *snapshot); err != nil {
			summary.Skipped++
			log.Error().Err(err).Str("url", productURL).Str("error_kind", string(errors.TypeOf(err))).Msg("Product not stored")
			continue
		}
		summary.Persisted++
		batch = append(batch, *snapshot)

		if summary.Persisted%w.opts.BatchSize == 0 {
			lastFlushErr = flush()
			log.Info().
				Int("processed", i+1).
				Int("total", len(productURLs)).
				Int("persisted", summary.Persisted).
				Str("url", productURL).
				Msg("Progress")
		}
	}
	if err := flush(); err != nil {
		lastFlushErr = err
	}

	summary.Duration = w.now().Sub(started)
	w.publishSummary(ctx, summary, log)

	log.Info().
		Int("attempted", summary.Attempted).
		Int("persisted", summary.Persisted).
		Int("skipped", summary.Skipped).
		Int("lost", summary.Lost).
		Dur("duration", summary.Duration).
		Msg("Run finished")

	if lastFlushErr != nil && summary.Persisted == 0 {
		return summary, lastFlushErr
	}
	return summary, nil
}

func (w *Worker) jitter() time.Duration {
	span := w.opts.MaxDelay - w.opts.MinDelay
	if span <= 0 {
		return w.opts.MinDelay
	}
	return w.opts.MinDelay + time.Duration(w.rnd.Int63n(int64(span)+1))
}

func (w *Worker) publishBatch(ctx context.Context, runID string, batch []crawler.ProductSnapshot, log *logger.Logger) {
	if w.publisher == nil {
		return
	}
	for _, snapshot := range batch {
		data, err := json.Marshal(snapshot)
		if err != nil {
			log.Error().Err(err).Str("sku", snapshot.SKU).Msg("Failed to encode snapshot")
			continue
		}
		if err := w.publisher.Publish(context.WithoutCancel(ctx), publisher.KindSnapshot, runID, data); err != nil {
			log.Warn().Err(err).Msg("Failed to publish snapshot")
			return
		}
	}
}

func (w *Worker) publishSummary(ctx context.Context, summary Summary, log *logger.Logger) {
	if w.publisher == nil {
		return
	}
	data, err := json.Marshal(summary)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode run summary")
		return
	}
	if err := w.publisher.Publish(context.WithoutCancel(ctx), publisher.KindRunSummary, summary.RunID, data); err != nil {
		log.Warn().Err(err).Msg("Failed to publish run summary")
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
