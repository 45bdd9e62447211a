// Package memory implements the domain store and ledger interfaces with
// in-process maps. It backs demo mode and the service test-suite; semantics
// mirror the postgres implementations.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/cryptobet/internal/domain"
)

// MarketStore implements domain.MarketStore in memory.
type MarketStore struct {
	mu      sync.RWMutex
	markets map[uint64]domain.Market
}

// NewMarketStore creates an empty MarketStore.
func NewMarketStore() *MarketStore {
	return &MarketStore{markets: make(map[uint64]domain.Market)}
}

// Create inserts a new market; it fails if a record already exists at the id.
func (s *MarketStore) Create(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.MarketID]; ok {
		return domain.ErrAlreadyExists
	}
	s.markets[m.MarketID] = m
	return nil
}

// Get loads a market by id.
func (s *MarketStore) Get(_ context.Context, marketID uint64) (domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[marketID]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

// Update overwrites an existing market record.
func (s *MarketStore) Update(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.MarketID]; !ok {
		return domain.ErrNotFound
	}
	s.markets[m.MarketID] = m
	return nil
}

// ListActive returns active markets ordered by id.
func (s *MarketStore) ListActive(_ context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []domain.Market
	for _, m := range s.markets {
		if m.State == domain.MarketStateActive {
			active = append(active, m)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].MarketID < active[j].MarketID })

	return paginate(active, opts), nil
}

// ListSettledBefore returns terminally settled markets last updated strictly
// before the cutoff.
func (s *MarketStore) ListSettledBefore(_ context.Context, before time.Time) ([]domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var settled []domain.Market
	for _, m := range s.markets {
		if m.IsTerminal() && m.UpdatedAt.Before(before) {
			settled = append(settled, m)
		}
	}
	sort.Slice(settled, func(i, j int) bool { return settled[i].MarketID < settled[j].MarketID })
	return settled, nil
}

// Count returns the total number of markets.
func (s *MarketStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.markets)), nil
}

func paginate(ms []domain.Market, opts domain.ListOpts) []domain.Market {
	if opts.Offset >= len(ms) {
		return nil
	}
	ms = ms[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(ms) {
		ms = ms[:opts.Limit]
	}
	return ms
}

var _ domain.MarketStore = (*MarketStore)(nil)
