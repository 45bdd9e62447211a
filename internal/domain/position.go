package domain

import "time"

// Position is one participant's stake record within one market. It is created
// on the participant's first stake and never deleted; after a successful claim
// or refund the relevant share counters are zeroed in place, which is the sole
// mechanism preventing a repeat claim.
type Position struct {
	Participant   string
	MarketID      uint64
	YesShares     uint64
	NoShares      uint64
	TotalInvested uint64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewPosition returns a zero-valued position for the given owner, created
// explicitly before the first stake is applied.
func NewPosition(marketID uint64, participant string, now time.Time) Position {
	return Position{
		Participant: participant,
		MarketID:    marketID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
