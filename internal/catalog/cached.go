package catalog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyvol/internal/domain"
)

// Source loads a normalised catalog.
type Source interface {
	Load(ctx context.Context, activeOnly bool) []domain.Market
}

// CachedSource serves the catalog from a cache while it is fresh and refills
// it from the wrapped source otherwise. Empty loads are never cached.
type CachedSource struct {
	next   Source
	cache  domain.CatalogCache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedSource wraps next.
func NewCachedSource(next Source, cache domain.CatalogCache, ttl time.Duration, logger *slog.Logger) *CachedSource {
	return &CachedSource{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "catalog_cache")),
	}
}

// Load implements Source.
func (c *CachedSource) Load(ctx context.Context, activeOnly bool) []domain.Market {
	markets, err := c.cache.GetCatalog(ctx, activeOnly)
	switch {
	case err == nil && len(markets) > 0:
		c.logger.Info("catalog served from cache", slog.Int("markets", len(markets)), slog.Bool("active_only", activeOnly))
		return markets
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		c.logger.Warn("catalog cache read failed", slog.String("error", err.Error()))
	}

	markets = c.next.Load(ctx, activeOnly)
	if len(markets) == 0 {
		return markets
	}
	if err := c.cache.SetCatalog(ctx, activeOnly, markets, c.ttl); err != nil {
		c.logger.Warn("catalog cache write failed", slog.String("error", err.Error()))
	}
	return markets
}
