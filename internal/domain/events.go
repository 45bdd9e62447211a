package domain

import "time"

// Event type identifiers, used for notification filtering and as the
// "event" discriminator in published payloads.
const (
	EventMarketCreated   = "market_created"
	EventBetPlaced       = "bet_placed"
	EventMarketResolved  = "market_resolved"
	EventMarketCancelled = "market_cancelled"
	EventWinningsClaimed = "winnings_claimed"
	EventRefundClaimed   = "refund_claimed"
)

// Event is a structured settlement event. Events are fire-and-forget: the
// core never reads them back.
type Event interface {
	EventType() string
}

// MarketCreatedEvent is emitted once per successful market creation.
type MarketCreatedEvent struct {
	Type           string     `json:"event"`
	MarketID       uint64     `json:"market_id"`
	Title          string     `json:"title"`
	Category       string     `json:"category"`
	ResolutionTime time.Time  `json:"resolution_time"`
	AssetClass     AssetClass `json:"asset_class"`
}

func (e MarketCreatedEvent) EventType() string { return EventMarketCreated }

// BetPlacedEvent carries the new per-side totals so external observers can
// track pool sizes without rereading the market.
type BetPlacedEvent struct {
	Type        string     `json:"event"`
	MarketID    uint64     `json:"market_id"`
	Participant string     `json:"participant"`
	Side        BetSide    `json:"side"`
	Amount      uint64     `json:"amount"`
	Shares      uint64     `json:"shares"`
	NewYesTotal uint64     `json:"new_yes_total"`
	NewNoTotal  uint64     `json:"new_no_total"`
	AssetClass  AssetClass `json:"asset_class"`
}

func (e BetPlacedEvent) EventType() string { return EventBetPlaced }

// MarketResolvedEvent is emitted when the authority records the outcome.
type MarketResolvedEvent struct {
	Type        string     `json:"event"`
	MarketID    uint64     `json:"market_id"`
	Outcome     bool       `json:"outcome"`
	TotalVolume uint64     `json:"total_volume"`
	AssetClass  AssetClass `json:"asset_class"`
}

func (e MarketResolvedEvent) EventType() string { return EventMarketResolved }

// MarketCancelledEvent is emitted when the authority cancels the market.
type MarketCancelledEvent struct {
	Type        string     `json:"event"`
	MarketID    uint64     `json:"market_id"`
	TotalVolume uint64     `json:"total_volume"`
	AssetClass  AssetClass `json:"asset_class"`
}

func (e MarketCancelledEvent) EventType() string { return EventMarketCancelled }

// WinningsClaimedEvent is emitted after a successful payout.
type WinningsClaimedEvent struct {
	Type        string     `json:"event"`
	MarketID    uint64     `json:"market_id"`
	Participant string     `json:"participant"`
	Amount      uint64     `json:"amount"`
	AssetClass  AssetClass `json:"asset_class"`
}

func (e WinningsClaimedEvent) EventType() string { return EventWinningsClaimed }

// RefundClaimedEvent is emitted after a successful refund.
type RefundClaimedEvent struct {
	Type        string     `json:"event"`
	MarketID    uint64     `json:"market_id"`
	Participant string     `json:"participant"`
	Amount      uint64     `json:"amount"`
	AssetClass  AssetClass `json:"asset_class"`
}

func (e RefundClaimedEvent) EventType() string { return EventRefundClaimed }
