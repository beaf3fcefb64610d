// Package skjerming answers whether a person is screened from caseworkers and statistics. The
// lookup service itself lives elsewhere; this package only caches and degrades its answers.
package skjerming

import (
	"context"
	"log/slog"
	"time"

	"github.com/Guizzs26/go-saksstatistikk/internal/cache"
	"github.com/Guizzs26/go-saksstatistikk/pkg/metrics"
)

type Checker interface {
	Skjermet(ctx context.Context, ident string) (bool, error)
}

// CheckerFunc adapts a plain function to Checker
type CheckerFunc func(ctx context.Context, ident string) (bool, error)

func (f CheckerFunc) Skjermet(ctx context.Context, ident string) (bool, error) { return f(ctx, ident) }

// Disabled reports nobody as screened
type Disabled struct{}

func (Disabled) Skjermet(context.Context, string) (bool, error) { return false, nil }

// Cached wraps a Checker with a bounded TTL cache. A failed lookup is answered with the
// conservative default, screened, and is not cached
type Cached struct {
	next   Checker
	cache  *cache.TTLCache[string, bool]
	logger *slog.Logger
}

func NewCached(next Checker, ttl time.Duration, maxEntries int, logger *slog.Logger) *Cached {
	return &Cached{
		next:   next,
		cache:  cache.NewTTLCache[string, bool](ttl, maxEntries),
		logger: logger,
	}
}

// WithClock replaces the cache's time source
func (c *Cached) WithClock(now func() time.Time) *Cached {
	c.cache.WithClock(now)
	return c
}

func (c *Cached) Skjermet(ctx context.Context, ident string) (bool, error) {
	if v, ok := c.cache.Get(ident); ok {
		metrics.SkjermingLookups.WithLabelValues("hit").Inc()
		return v, nil
	}

	v, err := c.next.Skjermet(ctx, ident)
	if err != nil {
		metrics.SkjermingLookups.WithLabelValues("error").Inc()
		c.logger.Warn("Screening lookup failed, treating person as screened", "error", err)
		return true, nil
	}

	metrics.SkjermingLookups.WithLabelValues("miss").Inc()
	c.cache.Set(ident, v)
	return v, nil
}

// Evict forgets the cached answer for ident
func (c *Cached) Evict(ident string) { c.cache.Delete(ident) }

// Purge forgets every cached answer
func (c *Cached) Purge() { c.cache.Purge() }

// AnySkjermet reports whether any of identer is screened
func AnySkjermet(ctx context.Context, c Checker, identer ...string) (bool, error) {
	for _, ident := range identer {
		if ident == "" {
			continue
		}
		s, err := c.Skjermet(ctx, ident)
		if err != nil {
			return false, err
		}
		if s {
			return true, nil
		}
	}
	return false, nil
}
