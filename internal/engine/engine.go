// Package engine implements the settlement core: the market lifecycle state
// machine and share-based pari-mutuel payout accounting. All operations are
// pure functions over Market and Position values; the service layer owns
// loading, locking, transfers, and persistence. An operation either applies
// every one of its mutations to the records it was handed or returns an
// error having applied none of them observably (callers discard mutated
// copies on error).
package engine

import (
	"strings"
	"time"

	"github.com/alanyoungcy/cryptobet/internal/domain"
)

// CreateParams are the caller-supplied fields for a new market.
type CreateParams struct {
	Authority      string
	MarketID       uint64
	Title          string
	Description    string
	Category       string
	ResolutionTime time.Time
	AssetClass     domain.AssetClass
	// TokenAssetID is the accepted token identity; required for token
	// markets, ignored for native markets.
	TokenAssetID string
}

// CreateMarket validates params and returns a new Active market. Uniqueness
// of the market id is enforced by the record store on insert.
func CreateMarket(p CreateParams, now time.Time) (domain.Market, error) {
	if len(p.Title) > domain.MaxTitleLen {
		return domain.Market{}, domain.ErrTitleTooLong
	}
	if len(p.Description) > domain.MaxDescriptionLen {
		return domain.Market{}, domain.ErrDescriptionTooLong
	}
	if len(p.Category) > domain.MaxCategoryLen {
		return domain.Market{}, domain.ErrCategoryTooLong
	}
	if !p.ResolutionTime.After(now) {
		return domain.Market{}, domain.ErrInvalidResolutionTime
	}

	var assetID string
	switch p.AssetClass {
	case domain.AssetClassNative:
		assetID = domain.AssetIDNative
	case domain.AssetClassToken:
		assetID = strings.TrimSpace(p.TokenAssetID)
		if assetID == "" {
			return domain.Market{}, domain.ErrInvalidTokenAsset
		}
	default:
		return domain.Market{}, domain.ErrInvalidAssetClass
	}

	return domain.Market{
		MarketID:        p.MarketID,
		Authority:       p.Authority,
		Title:           p.Title,
		Description:     p.Description,
		Category:        p.Category,
		ResolutionTime:  p.ResolutionTime,
		AssetClass:      p.AssetClass,
		AcceptedAssetID: assetID,
		State:           domain.MarketStateActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// BetRequest is one stake placement.
type BetRequest struct {
	Participant string
	Side        domain.BetSide
	Amount      uint64
	Handles     domain.AssetHandles
}

// PlaceBet validates the stake, applies all counter increments to m and pos,
// and returns the deposit transfer (participant funding -> market custody)
// that must succeed before the mutated records are persisted. The share
// ratio is fixed at 1:1 (shares issued == amount staked).
func PlaceBet(m *domain.Market, pos *domain.Position, req BetRequest, now time.Time) (domain.TransferRequest, error) {
	var none domain.TransferRequest

	if req.Amount == 0 {
		return none, domain.ErrInvalidAmount
	}
	if req.Amount < domain.MinBetAmount {
		return none, domain.ErrBetTooSmall
	}
	if req.Amount > domain.MaxBetAmount {
		return none, domain.ErrBetTooLarge
	}
	if m.State != domain.MarketStateActive {
		return none, domain.ErrMarketNotActive
	}
	if !now.Before(m.ResolutionTime) {
		return none, domain.ErrMarketExpired
	}
	if pos.Participant != req.Participant || pos.MarketID != m.MarketID {
		return none, domain.ErrInvalidPosition
	}

	transfer, err := depositTransfer(m, req.Participant, req.Handles, req.Amount)
	if err != nil {
		return none, err
	}

	shares := req.Amount // 1 unit staked = 1 share

	switch req.Side {
	case domain.BetSideYes:
		if m.TotalYesAmount, err = checkedAdd(m.TotalYesAmount, req.Amount); err != nil {
			return none, err
		}
		if m.TotalYesShares, err = checkedAdd(m.TotalYesShares, shares); err != nil {
			return none, err
		}
		if pos.YesShares, err = checkedAdd(pos.YesShares, shares); err != nil {
			return none, err
		}
	case domain.BetSideNo:
		if m.TotalNoAmount, err = checkedAdd(m.TotalNoAmount, req.Amount); err != nil {
			return none, err
		}
		if m.TotalNoShares, err = checkedAdd(m.TotalNoShares, shares); err != nil {
			return none, err
		}
		if pos.NoShares, err = checkedAdd(pos.NoShares, shares); err != nil {
			return none, err
		}
	default:
		return none, domain.ErrInvalidBetSide
	}

	if m.TotalVolume, err = checkedAdd(m.TotalVolume, req.Amount); err != nil {
		return none, err
	}
	if pos.TotalInvested, err = checkedAdd(pos.TotalInvested, req.Amount); err != nil {
		return none, err
	}

	m.UpdatedAt = now
	pos.UpdatedAt = now

	return transfer, nil
}

// Resolve records the binary outcome and moves the market to its terminal
// Resolved state. Only the market authority may resolve, only from Active,
// and only once the resolution time has passed.
func Resolve(m *domain.Market, authority string, outcome bool, now time.Time) error {
	if m.Authority != authority {
		return domain.ErrUnauthorizedResolver
	}
	if m.State != domain.MarketStateActive {
		return domain.ErrMarketNotActive
	}
	if now.Before(m.ResolutionTime) {
		return domain.ErrMarketNotExpired
	}

	m.State = domain.MarketStateResolved
	m.ResolvedOutcome = &outcome
	m.UpdatedAt = now
	return nil
}

// Cancel moves an Active market to its terminal Cancelled state. It is the
// authority's escape hatch for unresolvable markets and is permitted before
// or after the resolution deadline. No outcome is recorded; downstream claim
// logic uses its absence to select the refund path.
func Cancel(m *domain.Market, authority string, now time.Time) error {
	if m.Authority != authority {
		return domain.ErrUnauthorizedResolver
	}
	if m.State != domain.MarketStateActive {
		return domain.ErrMarketNotActive
	}

	m.State = domain.MarketStateCancelled
	m.UpdatedAt = now
	return nil
}

// depositTransfer resolves the asset handles once and builds the
// participant -> custody transfer for a stake. Token custody is always the
// market's own vault; a caller-supplied custody reference must name it.
func depositTransfer(m *domain.Market, participant string, handles domain.AssetHandles, amount uint64) (domain.TransferRequest, error) {
	var none domain.TransferRequest

	switch m.AssetClass {
	case domain.AssetClassNative:
		if _, ok := handles.(domain.NativeHandles); !ok && handles != nil {
			return none, domain.ErrAssetClassMismatch
		}
		return domain.TransferRequest{
			Class:   domain.AssetClassNative,
			AssetID: domain.AssetIDNative,
			From:    participant,
			To:      m.CustodyAccount(),
			Amount:  amount,
		}, nil

	case domain.AssetClassToken:
		th, ok := handles.(domain.TokenHandles)
		if !ok {
			return none, domain.ErrMissingTokenAccount
		}
		if th.Funding.AssetID != m.AcceptedAssetID || th.Custody.AssetID != m.AcceptedAssetID {
			return none, domain.ErrInvalidTokenAsset
		}
		if th.Custody.Address != m.VaultAccount() {
			return none, domain.ErrInvalidCustodyAccount
		}
		return domain.TransferRequest{
			Class:   domain.AssetClassToken,
			AssetID: m.AcceptedAssetID,
			From:    th.Funding.Address,
			To:      m.VaultAccount(),
			Amount:  amount,
		}, nil

	default:
		return none, domain.ErrInvalidAssetClass
	}
}

// payoutTransfer builds the custody -> participant transfer for a claim or
// refund. For token markets the market's vault authorizes the transfer
// itself; the ledger variant handles that detail.
func payoutTransfer(m *domain.Market, participant string, handles domain.AssetHandles, amount uint64) (domain.TransferRequest, error) {
	var none domain.TransferRequest

	switch m.AssetClass {
	case domain.AssetClassNative:
		if _, ok := handles.(domain.NativeHandles); !ok && handles != nil {
			return none, domain.ErrAssetClassMismatch
		}
		return domain.TransferRequest{
			Class:   domain.AssetClassNative,
			AssetID: domain.AssetIDNative,
			From:    m.CustodyAccount(),
			To:      participant,
			Amount:  amount,
		}, nil

	case domain.AssetClassToken:
		th, ok := handles.(domain.TokenHandles)
		if !ok {
			return none, domain.ErrMissingTokenAccount
		}
		if th.Funding.AssetID != m.AcceptedAssetID || th.Custody.AssetID != m.AcceptedAssetID {
			return none, domain.ErrInvalidTokenAsset
		}
		if th.Custody.Address != m.VaultAccount() {
			return none, domain.ErrInvalidCustodyAccount
		}
		return domain.TransferRequest{
			Class:   domain.AssetClassToken,
			AssetID: m.AcceptedAssetID,
			From:    m.VaultAccount(),
			To:      th.Funding.Address,
			Amount:  amount,
		}, nil

	default:
		return none, domain.ErrInvalidAssetClass
	}
}
