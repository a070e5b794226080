package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"sjsage522/stockwatcher/config"
	"sjsage522/stockwatcher/helpers"
	"sjsage522/stockwatcher/internal"
	"sjsage522/stockwatcher/internal/crawler"
	"sjsage522/stockwatcher/logger"
	"sjsage522/stockwatcher/pkg/errors"
	"sjsage522/stockwatcher/services/cache"
	"sjsage522/stockwatcher/services/publisher"
	"sjsage522/stockwatcher/services/store"
	"sjsage522/stockwatcher/services/worker"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("sitemap", cfg.SitemapURL).
		Str("store", cfg.StoreDriver).
		Str("render_mode", cfg.RenderMode).
		Dur("run_interval", cfg.RunInterval).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize services. Storage failures end the process before any fetch.
	deps, err := initializeServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("error_kind", string(errors.TypeOf(err))).Msg("Failed to initialize services")
	}
	defer deps.Cleanup()

	w := newWorker(cfg, deps)

	// Start worker in a goroutine
	workerDone := make(chan error, 1)
	go func() {
		log.Info().Msg("Starting stock watcher")
		workerDone <- w.Start(ctx)
	}()

	// Wait for shutdown signal or worker error
	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
		// the worker still flushes its pending batch before returning
		err = <-workerDone
	case err = <-workerDone:
	}

	if err != nil {
		log.Error().Err(err).Msg("Worker exited with error")
	} else {
		log.Info().Msg("Worker exited normally")
	}

	log.Info().Msg("Shutting down gracefully...")
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) (*internal.Dependencies, error) {
	deps := &internal.Dependencies{}

	// Initialize cache service for rate-limit cool-downs
	cacheService := cache.New(cfg.MemcacheAddr)
	if mc, ok := cacheService.(*cache.MemcacheService); ok {
		if err := mc.Ping(); err != nil {
			logger.Warn("Memcache at %s is not answering, rate-limit blocks will not be shared: %v", cfg.MemcacheAddr, err)
		} else {
			logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)
		}
	}
	deps.Cache = cacheService

	// Initialize fetchers
	deps.Fetcher = crawler.NewRateLimitGuard(helpers.NewHTTPFetcher(nil), cacheService, cfg.RateLimitBlockTime)
	deps.PageFetcher = deps.Fetcher
	if cfg.RenderMode == config.RenderChrome {
		chrome, err := crawler.NewChromeFetcher(cfg.ChromeBin)
		if err != nil {
			return nil, errors.NewConfiguration("RENDER_MODE=chrome but chrome could not start", err)
		}
		deps.AddCloser(chrome)
		deps.PageFetcher = crawler.NewRateLimitGuard(chrome, cacheService, cfg.RateLimitBlockTime)
	}

	// Open the snapshot store
	snapshots, err := store.Open(ctx, cfg.StoreDriver, cfg.StoreDSN())
	if err != nil {
		deps.Cleanup()
		return nil, err
	}
	deps.Store = snapshots
	if err := snapshots.EnsureSchema(ctx); err != nil {
		deps.Cleanup()
		return nil, err
	}

	logger.Info("Snapshot store ready (%s)", cfg.StoreDriver)

	// Initialize publisher
	if cfg.RedisAddr != "" {
		redisPublisher := publisher.NewRedisPublisher(
			cfg.RedisAddr,
			cfg.RedisDB,
			cfg.RedisStream,
			cfg.RedisStreamMaxLength,
		)
		if err := redisPublisher.Ping(ctx); err != nil {
			logger.Warn("Redis at %s is not answering, snapshots will not be published: %v", cfg.RedisAddr, err)
			redisPublisher.Close()
		} else {
			deps.Publisher = redisPublisher
			logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
				cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
		}
	}

	return deps, nil
}

// newWorker wires the pipeline stages onto the initialized services
func newWorker(cfg *config.Config, deps *internal.Dependencies) *worker.Worker {
	discoverer := crawler.NewSitemapDiscoverer(deps.Fetcher, cfg.DiscoveryTimeout)
	urls := crawler.NewProductURLExtractor(deps.Fetcher, cfg.DiscoveryTimeout)
	resolver := crawler.NewAvailabilityResolver(deps.PageFetcher, crawler.DefaultRules(), cfg.RequestTimeout)
	extractor := crawler.NewProductExtractor(deps.Fetcher, resolver, cfg.RequestTimeout)

	return worker.NewWorker(discoverer, urls, extractor, deps.Store, deps.Publisher, worker.Options{
		SitemapURL: cfg.SitemapURL,
		BatchSize:  cfg.CommitBatchSize,
		MinDelay:   cfg.MinDelay,
		MaxDelay:   cfg.MaxDelay,
		Interval:   cfg.RunInterval,
	})
}
