package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/cryptobet/internal/domain"
	"github.com/redis/go-redis/v9"
)

// marketTTL keeps cached market reads fresh enough that a just-settled
// market never looks active for long.
const marketTTL = 30 * time.Second

// MarketCache implements domain.MarketCache using Redis hashes with
// JSON-serialized market data.
//
// Key schema:
//
//	mkt:{id} - hash with field "data" containing JSON
type MarketCache struct {
	rdb *redis.Client
}

// NewMarketCache creates a MarketCache backed by the given Client.
func NewMarketCache(c *Client) *MarketCache {
	return &MarketCache{rdb: c.Underlying()}
}

func marketKey(id uint64) string { return fmt.Sprintf("mkt:%d", id) }

// Set stores a market in the cache.
func (mc *MarketCache) Set(ctx context.Context, m domain.Market) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("redis: marshal market %d: %w", m.MarketID, err)
	}

	key := marketKey(m.MarketID)

	pipe := mc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, marketTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set market %d: %w", m.MarketID, err)
	}
	return nil
}

// Get retrieves a market by id from the cache.
// It returns domain.ErrNotFound when the key does not exist.
func (mc *MarketCache) Get(ctx context.Context, marketID uint64) (domain.Market, error) {
	data, err := mc.rdb.HGet(ctx, marketKey(marketID), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("redis: get market %d: %w", marketID, err)
	}

	var m domain.Market
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.Market{}, fmt.Errorf("redis: unmarshal market %d: %w", marketID, err)
	}
	return m, nil
}

// Invalidate removes a market from the cache.
func (mc *MarketCache) Invalidate(ctx context.Context, marketID uint64) error {
	if err := mc.rdb.Del(ctx, marketKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %d: %w", marketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.MarketCache = (*MarketCache)(nil)
