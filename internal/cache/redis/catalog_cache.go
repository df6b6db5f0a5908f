package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyvol/internal/domain"
)

// CatalogCache implements domain.CatalogCache. The whole normalised catalog
// is stored as one JSON value per scope ("active" or "all") so consecutive
// backfills skip the multi-hundred-page Gamma walk.
//
// Key schema:
//
//	catalog:{scope} - JSON array of domain.Market
type CatalogCache struct {
	client *Client
}

// NewCatalogCache creates a CatalogCache backed by the given Client.
func NewCatalogCache(c *Client) *CatalogCache {
	return &CatalogCache{client: c}
}

func (cc *CatalogCache) catalogKey(activeOnly bool) string {
	return cc.client.key("catalog", catalogScope(activeOnly))
}

func catalogScope(activeOnly bool) string {
	if activeOnly {
		return "active"
	}
	return "all"
}

// GetCatalog returns the cached catalog or domain.ErrNotFound.
func (cc *CatalogCache) GetCatalog(ctx context.Context, activeOnly bool) ([]domain.Market, error) {
	data, err := cc.client.rdb.Get(ctx, cc.catalogKey(activeOnly)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get catalog %s: %w", catalogScope(activeOnly), err)
	}

	var markets []domain.Market
	if err := json.Unmarshal(data, &markets); err != nil {
		return nil, fmt.Errorf("redis: unmarshal catalog %s: %w", catalogScope(activeOnly), err)
	}
	return markets, nil
}

// SetCatalog stores the catalog with the given TTL.
func (cc *CatalogCache) SetCatalog(ctx context.Context, activeOnly bool, markets []domain.Market, ttl time.Duration) error {
	data, err := json.Marshal(markets)
	if err != nil {
		return fmt.Errorf("redis: marshal catalog: %w", err)
	}
	if err := cc.client.rdb.Set(ctx, cc.catalogKey(activeOnly), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set catalog %s: %w", catalogScope(activeOnly), err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.CatalogCache = (*CatalogCache)(nil)
