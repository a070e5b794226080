package crawler

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"sjsage522/stockwatcher/helpers"
	"sjsage522/stockwatcher/logger"
	"sjsage522/stockwatcher/pkg/errors"
	"sjsage522/stockwatcher/services/cache"
)

const rateLimitKeyPrefix = "ratelimit:"

// RateLimitGuard remembers hosts that answered 429/430 and refuses to contact them
// until the block expires. Blocked calls fail immediately; nothing is retried.
type RateLimitGuard struct {
	next      Fetcher
	cacheSvc  cache.CacheService
	blockTime time.Duration
	log       *logger.Logger
}

// NewRateLimitGuard wraps next. A zero blockTime disables blocking.
func NewRateLimitGuard(next Fetcher, cacheSvc cache.CacheService, blockTime time.Duration) *RateLimitGuard {
	return &RateLimitGuard{
		next:      next,
		cacheSvc:  cacheSvc,
		blockTime: blockTime,
		log:       logger.ForCrawler("guard"),
	}
}

// Get implements Fetcher
func (g *RateLimitGuard) Get(ctx context.Context, rawURL string, timeout time.Duration) (*helpers.Response, error) {
	if g.blockTime <= 0 || g.cacheSvc == nil {
		return g.next.Get(ctx, rawURL, timeout)
	}

	host := hostOf(rawURL)
	key := rateLimitKeyPrefix + host

	if _, err := g.cacheSvc.Get(key); err == nil {
		return nil, errors.NewRateLimit(host, g.blockTime)
	}

	resp, err := g.next.Get(ctx, rawURL, timeout)
	if err != nil {
		return nil, err
	}

	if helpers.IsRateLimited(resp.StatusCode) {
		seconds := strconv.Itoa(int(g.blockTime / time.Second))
		if setErr := g.cacheSvc.Set(key, []byte(seconds), g.blockTime); setErr != nil {
			g.log.Error().Err(setErr).Str("host", host).Msg("Failed to record rate limit")
		} else {
			g.log.Warn().Str("host", host).Int("status", resp.StatusCode).Dur("block", g.blockTime).Msg("Host rate limited us, pausing requests")
		}
	}
	return resp, nil
}

// Blocked reports whether host is currently in its cool-down
func (g *RateLimitGuard) Blocked(host string) bool {
	if g.cacheSvc == nil {
		return false
	}
	_, err := g.cacheSvc.Get(rateLimitKeyPrefix + host)
	return err == nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
