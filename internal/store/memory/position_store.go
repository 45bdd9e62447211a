package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/cryptobet/internal/domain"
)

// PositionStore implements domain.PositionStore in memory.
type PositionStore struct {
	mu        sync.RWMutex
	positions map[string]domain.Position
}

// NewPositionStore creates an empty PositionStore.
func NewPositionStore() *PositionStore {
	return &PositionStore{positions: make(map[string]domain.Position)}
}

func positionKey(marketID uint64, participant string) string {
	return fmt.Sprintf("%d/%s", marketID, participant)
}

// Create inserts a new position; it fails if one already exists for the
// (market, participant) pair.
func (s *PositionStore) Create(_ context.Context, p domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := positionKey(p.MarketID, p.Participant)
	if _, ok := s.positions[key]; ok {
		return domain.ErrAlreadyExists
	}
	s.positions[key] = p
	return nil
}

// Get loads the position for a (market, participant) pair.
func (s *PositionStore) Get(_ context.Context, marketID uint64, participant string) (domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[positionKey(marketID, participant)]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

// Update overwrites an existing position record.
func (s *PositionStore) Update(_ context.Context, p domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := positionKey(p.MarketID, p.Participant)
	if _, ok := s.positions[key]; !ok {
		return domain.ErrNotFound
	}
	s.positions[key] = p
	return nil
}

// ListByMarket returns every position in a market, ordered by participant.
func (s *PositionStore) ListByMarket(_ context.Context, marketID uint64) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Position
	for _, p := range s.positions {
		if p.MarketID == marketID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Participant < out[j].Participant })
	return out, nil
}

var _ domain.PositionStore = (*PositionStore)(nil)
