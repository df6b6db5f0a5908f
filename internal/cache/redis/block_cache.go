package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyvol/internal/domain"
)

// BlockCache implements domain.BlockCache with plain string keys
// "block:{chainID}:{unix}". The block at or before a past instant never
// changes, so entries are written without expiry.
type BlockCache struct {
	client *Client
}

// NewBlockCache creates a BlockCache backed by the given Client.
func NewBlockCache(c *Client) *BlockCache {
	return &BlockCache{client: c}
}

func (bc *BlockCache) blockKey(chainID int64, ts time.Time) string {
	return bc.client.key("block", strconv.FormatInt(chainID, 10), strconv.FormatInt(ts.Unix(), 10))
}

// GetBlock returns the cached block, or domain.ErrNotFound.
func (bc *BlockCache) GetBlock(ctx context.Context, chainID int64, ts time.Time) (int64, error) {
	n, err := bc.client.rdb.Get(ctx, bc.blockKey(chainID, ts)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("redis: get block %d@%d: %w", chainID, ts.Unix(), err)
	}
	return n, nil
}

// SetBlock stores a resolution.
func (bc *BlockCache) SetBlock(ctx context.Context, chainID int64, ts time.Time, block int64) error {
	if err := bc.client.rdb.Set(ctx, bc.blockKey(chainID, ts), block, 0).Err(); err != nil {
		return fmt.Errorf("redis: set block %d@%d: %w", chainID, ts.Unix(), err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.BlockCache = (*BlockCache)(nil)
