package domain

import (
	"fmt"
	"time"
)

// Protocol constants. These are fixed bounds shared by every market; they are
// deliberately not configurable at runtime.
const (
	// MinBetAmount is the smallest stake accepted, in base units.
	MinBetAmount uint64 = 1_000_000
	// MaxBetAmount is the largest single stake accepted, in base units.
	MaxBetAmount uint64 = 1_000_000_000_000

	MaxTitleLen       = 100
	MaxDescriptionLen = 500
	MaxCategoryLen    = 50
)

// MarketState represents the lifecycle state of a market. Active markets
// accept bets; Resolved and Cancelled are terminal.
type MarketState string

const (
	MarketStateActive    MarketState = "active"
	MarketStateResolved  MarketState = "resolved"
	MarketStateCancelled MarketState = "cancelled"
)

// BetSide is the binary outcome a stake is placed on.
type BetSide string

const (
	BetSideYes BetSide = "yes"
	BetSideNo  BetSide = "no"
)

// ParseBetSide converts a wire string into a BetSide.
func ParseBetSide(s string) (BetSide, error) {
	switch BetSide(s) {
	case BetSideYes, BetSideNo:
		return BetSide(s), nil
	default:
		return "", fmt.Errorf("%w: side %q", ErrInvalidBetSide, s)
	}
}

// Market is one binary proposition with its stake pools and resolution state.
// Per-side amount and share counters are kept separately even though the
// share ratio is fixed at 1:1, so a future non-1:1 ratio does not break the
// schema.
type Market struct {
	MarketID        uint64
	Authority       string
	Title           string
	Description     string
	Category        string
	ResolutionTime  time.Time
	AssetClass      AssetClass
	AcceptedAssetID string
	State           MarketState
	TotalYesAmount  uint64
	TotalNoAmount   uint64
	TotalYesShares  uint64
	TotalNoShares   uint64
	TotalVolume     uint64
	ResolvedOutcome *bool // nil while Active, and always nil for Cancelled
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CustodyAccount returns the deterministic ledger account that holds the
// market's native-unit pool.
func (m Market) CustodyAccount() string {
	return fmt.Sprintf("market:%d", m.MarketID)
}

// VaultAccount returns the deterministic token account that holds the
// market's fungible-token pool. Only meaningful for token markets.
func (m Market) VaultAccount() string {
	return fmt.Sprintf("vault:%d", m.MarketID)
}

// IsTerminal reports whether the market has reached a terminal state.
func (m Market) IsTerminal() bool {
	return m.State == MarketStateResolved || m.State == MarketStateCancelled
}
