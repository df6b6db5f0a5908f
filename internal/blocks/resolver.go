// Package blocks maps wall-clock instants to Polygon block numbers so open
// interest can be read as of a day's start.
package blocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyvol/internal/domain"
)

// Resolver returns the last block mined at or before t.
type Resolver interface {
	BlockAt(ctx context.Context, t time.Time) (int64, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, t time.Time) (int64, error)

// BlockAt calls f.
func (f ResolverFunc) BlockAt(ctx context.Context, t time.Time) (int64, error) {
	return f(ctx, t)
}

// Cached memoises resolutions in a BlockCache. Cache failures are logged and
// never fail a lookup.
type Cached struct {
	next    Resolver
	cache   domain.BlockCache
	chainID int64
	logger  *slog.Logger
}

// NewCached wraps next with cache.
func NewCached(next Resolver, cache domain.BlockCache, chainID int64, logger *slog.Logger) *Cached {
	return &Cached{
		next:    next,
		cache:   cache,
		chainID: chainID,
		logger:  logger.With(slog.String("component", "block_cache")),
	}
}

// BlockAt implements Resolver.
func (c *Cached) BlockAt(ctx context.Context, t time.Time) (int64, error) {
	block, err := c.cache.GetBlock(ctx, c.chainID, t)
	if err == nil {
		return block, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		c.logger.Warn("block cache read failed", slog.String("error", err.Error()))
	}

	block, err = c.next.BlockAt(ctx, t)
	if err != nil {
		return 0, err
	}

	if err := c.cache.SetBlock(ctx, c.chainID, t, block); err != nil {
		c.logger.Warn("block cache write failed", slog.String("error", err.Error()))
	}
	return block, nil
}

// Throttled blocks until the shared rate limiter admits another upstream
// call. Etherscan's free tier allows 5 calls per second per key. A broken
// limiter never blocks resolution: the call goes through unthrottled and
// upstream retries absorb any rate-limit response.
type Throttled struct {
	next    Resolver
	limiter domain.RateLimiter
	key     string
	limit   int
	window  time.Duration
	logger  *slog.Logger
}

// NewThrottled wraps next with a limit-per-window budget stored under key.
func NewThrottled(next Resolver, limiter domain.RateLimiter, key string, limit int, window time.Duration, logger *slog.Logger) *Throttled {
	return &Throttled{next: next, limiter: limiter, key: key, limit: limit, window: window, logger: logger}
}

// BlockAt implements Resolver.
func (t *Throttled) BlockAt(ctx context.Context, at time.Time) (int64, error) {
	if err := t.limiter.Wait(ctx, t.key, t.limit, t.window); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, fmt.Errorf("blocks: throttle: %w", ctxErr)
		}
		t.logger.Warn("rate limiter unavailable, calling upstream unthrottled",
			slog.String("key", t.key), slog.String("error", err.Error()))
	}
	return t.next.BlockAt(ctx, at)
}

// Fallback tries each resolver in order and returns the first success.
type Fallback []Resolver

// BlockAt implements Resolver.
func (f Fallback) BlockAt(ctx context.Context, t time.Time) (int64, error) {
	var lastErr error = domain.ErrNoData
	for _, r := range f {
		block, err := r.BlockAt(ctx, t)
		if err == nil {
			return block, nil
		}
		lastErr = err
	}
	return 0, lastErr
}
