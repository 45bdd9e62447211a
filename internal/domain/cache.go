package domain

import (
	"context"
	"time"
)

// MarketCache is a read-through cache for market records. Get returns
// ErrNotFound on a miss; staleness is bounded by the implementation's TTL.
type MarketCache interface {
	Set(ctx context.Context, m Market) error
	Get(ctx context.Context, marketID uint64) (Market, error)
	Invalidate(ctx context.Context, marketID uint64) error
}

// RateLimiter limits request rates per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}
