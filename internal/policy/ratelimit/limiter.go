// Package ratelimit throttles live fetches with a token bucket per host.
package ratelimit

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/webfetch-archive/internal/metrics"
	"github.com/JakeFAU/webfetch-archive/internal/webfetch"
)

// Limiter manages per-host rate limits.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// Config holds rate limiter configuration.
type Config struct {
	RPS   float64
	Burst int
}

// New creates a Limiter. A non-positive RPS never blocks.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      r,
		burst:    burst,
	}
}

// Wait blocks until the host of rawURL may be fetched or ctx is done.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)

	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return err
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Fetcher waits on a Limiter before delegating to the wrapped fetcher.
type Fetcher struct {
	next    webfetch.Fetcher
	limiter *Limiter
}

// Wrap returns a fetcher throttled by limiter.
func Wrap(next webfetch.Fetcher, limiter *Limiter) *Fetcher {
	return &Fetcher{next: next, limiter: limiter}
}

// Fetch implements webfetch.Fetcher. A wait that outlives ctx is a transport failure.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (webfetch.Response, error) {
	if err := f.limiter.Wait(ctx, rawURL); err != nil {
		return webfetch.Response{}, &webfetch.FetchError{URL: rawURL, Err: err}
	}
	return f.next.Fetch(ctx, rawURL)
}
