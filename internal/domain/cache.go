package domain

import (
	"context"
	"time"
)

// BlockCache memoises timestamp-to-block resolutions. Blocks at or before a
// past instant never change, so entries may live indefinitely.
type BlockCache interface {
	GetBlock(ctx context.Context, chainID int64, ts time.Time) (int64, error)
	SetBlock(ctx context.Context, chainID int64, ts time.Time, block int64) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// CatalogCache stores the normalised market catalog between runs.
type CatalogCache interface {
	GetCatalog(ctx context.Context, activeOnly bool) ([]Market, error)
	SetCatalog(ctx context.Context, activeOnly bool, markets []Market, ttl time.Duration) error
}
