package engine

import (
	"time"

	"github.com/alanyoungcy/cryptobet/internal/domain"
)

// ClaimWinnings computes the caller's proportional share of the combined
// pool for a resolved market, zeroes the winning-side share counter on pos
// (the anti-double-claim mechanism: a second attempt always finds zero
// winning shares), and returns the payout transfer to execute.
//
// The proportional split always floors. Residual dust across claimants is
// never reconciled; it remains in market custody.
func ClaimWinnings(m *domain.Market, pos *domain.Position, participant string, handles domain.AssetHandles, now time.Time) (uint64, domain.TransferRequest, error) {
	var none domain.TransferRequest

	if m.State != domain.MarketStateResolved {
		return 0, none, domain.ErrMarketNotResolved
	}
	if pos.Participant != participant || pos.MarketID != m.MarketID {
		return 0, none, domain.ErrInvalidPosition
	}
	if m.ResolvedOutcome == nil {
		// Unreachable for a Resolved market; guard against corrupt records.
		return 0, none, domain.ErrMarketNotResolved
	}
	won := *m.ResolvedOutcome

	userShares := pos.NoShares
	totalWinningShares := m.TotalNoShares
	if won {
		userShares = pos.YesShares
		totalWinningShares = m.TotalYesShares
	}
	if userShares == 0 {
		return 0, none, domain.ErrNoWinningShares
	}
	if totalWinningShares == 0 {
		// Cannot occur while userShares > 0; kept as a defensive guard.
		return 0, none, domain.ErrNoWinningShares
	}

	pool, err := checkedAdd(m.TotalYesAmount, m.TotalNoAmount)
	if err != nil {
		return 0, none, err
	}

	winnings, err := mulDiv(userShares, pool, totalWinningShares)
	if err != nil {
		return 0, none, err
	}
	if winnings == 0 {
		return 0, none, domain.ErrNoWinningsAvailable
	}

	transfer, err := payoutTransfer(m, participant, handles, winnings)
	if err != nil {
		return 0, none, err
	}

	if won {
		pos.YesShares = 0
	} else {
		pos.NoShares = 0
	}
	pos.UpdatedAt = now

	return winnings, transfer, nil
}

// ClaimRefund returns a cancelled market's participant their entire stake
// and zeroes all position counters together, so repeat refund attempts fail
// through the same zero-balance mechanism as winnings claims.
func ClaimRefund(m *domain.Market, pos *domain.Position, participant string, handles domain.AssetHandles, now time.Time) (uint64, domain.TransferRequest, error) {
	var none domain.TransferRequest

	if m.State != domain.MarketStateCancelled {
		return 0, none, domain.ErrMarketNotCancelled
	}
	if pos.Participant != participant || pos.MarketID != m.MarketID {
		return 0, none, domain.ErrInvalidPosition
	}
	if pos.TotalInvested == 0 {
		return 0, none, domain.ErrNoRefundAvailable
	}

	refund := pos.TotalInvested

	transfer, err := payoutTransfer(m, participant, handles, refund)
	if err != nil {
		return 0, none, err
	}

	pos.YesShares = 0
	pos.NoShares = 0
	pos.TotalInvested = 0
	pos.UpdatedAt = now

	return refund, transfer, nil
}
