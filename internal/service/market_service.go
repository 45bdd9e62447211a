package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/cryptobet/internal/domain"
)

// MarketService serves the read surface over market and position records.
// A market cache is optional; reads fall through to the store on a miss.
type MarketService struct {
	markets   domain.MarketStore
	positions domain.PositionStore
	cache     domain.MarketCache
	logger    *slog.Logger
}

// NewMarketService creates a MarketService. cache may be nil.
func NewMarketService(markets domain.MarketStore, positions domain.PositionStore, cache domain.MarketCache, logger *slog.Logger) *MarketService {
	return &MarketService{
		markets:   markets,
		positions: positions,
		cache:     cache,
		logger:    logger.With(slog.String("component", "market_service")),
	}
}

// GetMarket returns a single market by id, cache-aside when a cache is
// configured.
func (s *MarketService) GetMarket(ctx context.Context, marketID uint64) (domain.Market, error) {
	if s.cache != nil {
		m, err := s.cache.Get(ctx, marketID)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "market cache read failed",
				slog.Uint64("market_id", marketID),
				slog.String("error", err.Error()))
		}
	}

	m, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get market %d: %w", marketID, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, m); err != nil {
			s.logger.WarnContext(ctx, "market cache write failed",
				slog.Uint64("market_id", marketID),
				slog.String("error", err.Error()))
		}
	}
	return m, nil
}

// ListActive returns active markets with pagination.
func (s *MarketService) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.ListActive(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list active: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	n, err := s.markets.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count: %w", err)
	}
	return n, nil
}

// GetPosition returns one participant's position in a market.
func (s *MarketService) GetPosition(ctx context.Context, marketID uint64, participant string) (domain.Position, error) {
	p, err := s.positions.Get(ctx, marketID, participant)
	if err != nil {
		return domain.Position{}, fmt.Errorf("market_service: get position %d/%s: %w", marketID, participant, err)
	}
	return p, nil
}
