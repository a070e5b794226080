package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store drivers
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Render modes for the availability fallback page
const (
	RenderHTTP   = "http"
	RenderChrome = "chrome"
)

// Config represents the application configuration
type Config struct {
	// Catalog entry point
	SitemapURL string

	// Snapshot store
	StoreDriver     string
	DBPath          string
	PostgresDSN     string
	CommitBatchSize int

	// Request pacing and timeouts
	MinDelay         time.Duration
	MaxDelay         time.Duration
	DiscoveryTimeout time.Duration
	RequestTimeout   time.Duration

	// Availability fallback rendering
	RenderMode string
	ChromeBin  string

	// Rate-limit cool-down
	RateLimitBlockTime time.Duration
	MemcacheAddr       string

	// Redis stream publisher (disabled when RedisAddr is empty)
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamMaxLength int

	// Zero means a single run, then exit
	RunInterval time.Duration

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	return &Config{
		SitemapURL:           getEnv("SITEMAP_URL", "https://anotherplace.com.br/sitemap.xml"),
		StoreDriver:          getEnv("STORE_DRIVER", StoreSQLite),
		DBPath:               getEnv("DB_PATH", "monitoramento_anotherplace.db"),
		PostgresDSN:          getEnv("PG_DSN", ""),
		CommitBatchSize:      getEnvInt("COMMIT_BATCH_SIZE", 10),
		MinDelay:             time.Duration(getEnvInt("REQUEST_DELAY_MIN_MS", 500)) * time.Millisecond,
		MaxDelay:             time.Duration(getEnvInt("REQUEST_DELAY_MAX_MS", 1000)) * time.Millisecond,
		DiscoveryTimeout:     time.Duration(getEnvInt("DISCOVERY_TIMEOUT_SECONDS", 15)) * time.Second,
		RequestTimeout:       time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 10)) * time.Second,
		RenderMode:           getEnv("RENDER_MODE", RenderHTTP),
		ChromeBin:            getEnv("CHROME_BIN", ""),
		RateLimitBlockTime:   time.Duration(getEnvInt("RATE_LIMIT_BLOCK_SECONDS", 60)) * time.Second,
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", ""),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		RedisStream:          getEnv("REDIS_STREAM", "stockwatch:snapshots"),
		RedisStreamMaxLength: getEnvInt("REDIS_STREAM_MAX_LENGTH", 10000),
		RunInterval:          time.Duration(getEnvInt("RUN_INTERVAL_SECONDS", 0)) * time.Second,
		Environment:          getEnv("STOCKWATCH_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	if c.SitemapURL == "" {
		return fmt.Errorf("SITEMAP_URL must not be empty")
	}
	if c.CommitBatchSize < 1 {
		return fmt.Errorf("COMMIT_BATCH_SIZE must be at least 1, got %d", c.CommitBatchSize)
	}
	if c.MinDelay < 0 || c.MaxDelay < c.MinDelay {
		return fmt.Errorf("request delay bounds are invalid: min %v, max %v", c.MinDelay, c.MaxDelay)
	}
	if c.DiscoveryTimeout <= 0 || c.RequestTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.RateLimitBlockTime < 0 || c.RunInterval < 0 {
		return fmt.Errorf("durations must not be negative")
	}

	switch c.StoreDriver {
	case StoreSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH must not be empty for the sqlite store")
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("PG_DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.RenderMode {
	case RenderHTTP, RenderChrome:
	default:
		return fmt.Errorf("unknown RENDER_MODE %q", c.RenderMode)
	}

	return nil
}

// StoreDSN returns the connection string for the configured store driver
func (c *Config) StoreDSN() string {
	if c.StoreDriver == StorePostgres {
		return c.PostgresDSN
	}
	return c.DBPath
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
