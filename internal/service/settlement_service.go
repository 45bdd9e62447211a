// Package service orchestrates settlement operations: per-market locking,
// record loading, the pure engine call, the ledger transfer, persistence,
// and event fan-out. Each operation is all-or-nothing: any validation or
// arithmetic failure surfaces before records or balances change, and a
// persistence failure after a transfer triggers a compensating reverse
// transfer.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/cryptobet/internal/domain"
	"github.com/alanyoungcy/cryptobet/internal/engine"
)

// settlementChannel is the signal bus channel all settlement events go to.
const settlementChannel = "settlement"

// lockTTL bounds how long a market lock may be held by one operation.
const lockTTL = 10 * time.Second

// Notifier delivers operator-facing notifications. Satisfied by
// notify.Notifier; nil disables notifications.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// SettlementService exposes the six settlement operations over the pure
// engine core.
type SettlementService struct {
	markets   domain.MarketStore
	positions domain.PositionStore
	native    domain.Ledger
	token     domain.Ledger
	locks     domain.LockManager
	bus       domain.SignalBus
	stream    domain.EventPublisher // optional durable event stream
	audit     domain.AuditStore
	cache     domain.MarketCache // invalidated after market mutations
	notifier  Notifier
	clock     domain.Clock
	logger    *slog.Logger
}

// NewSettlementService creates a SettlementService. stream, cache, and
// notifier may be nil; clock defaults to wall time when nil.
func NewSettlementService(
	markets domain.MarketStore,
	positions domain.PositionStore,
	native domain.Ledger,
	token domain.Ledger,
	locks domain.LockManager,
	bus domain.SignalBus,
	stream domain.EventPublisher,
	audit domain.AuditStore,
	cache domain.MarketCache,
	notifier Notifier,
	clock domain.Clock,
	logger *slog.Logger,
) *SettlementService {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &SettlementService{
		markets:   markets,
		positions: positions,
		native:    native,
		token:     token,
		locks:     locks,
		bus:       bus,
		stream:    stream,
		audit:     audit,
		cache:     cache,
		notifier:  notifier,
		clock:     clock,
		logger:    logger.With(slog.String("component", "settlement")),
	}
}

// CreateMarket validates and persists a new market. Uniqueness per market id
// is enforced by the store's create-fails-if-exists contract.
func (s *SettlementService) CreateMarket(ctx context.Context, params engine.CreateParams) (domain.Market, error) {
	now := s.clock()

	market, err := engine.CreateMarket(params, now)
	if err != nil {
		return domain.Market{}, err
	}

	if err := s.markets.Create(ctx, market); err != nil {
		return domain.Market{}, fmt.Errorf("settlement: create market %d: %w", params.MarketID, err)
	}

	s.publish(ctx, domain.MarketCreatedEvent{
		Type:           domain.EventMarketCreated,
		MarketID:       market.MarketID,
		Title:          market.Title,
		Category:       market.Category,
		ResolutionTime: market.ResolutionTime,
		AssetClass:     market.AssetClass,
	})
	s.auditLog(ctx, domain.EventMarketCreated, map[string]any{
		"market_id":   market.MarketID,
		"authority":   market.Authority,
		"asset_class": string(market.AssetClass),
	})

	s.logger.InfoContext(ctx, "market created",
		slog.Uint64("market_id", market.MarketID),
		slog.String("asset_class", string(market.AssetClass)),
		slog.Time("resolution_time", market.ResolutionTime),
	)
	return market, nil
}

// PlaceBet stakes an amount on one side of an active market. The deposit
// transfer happens before any record is persisted; if persistence then
// fails, the deposit is reversed.
func (s *SettlementService) PlaceBet(ctx context.Context, marketID uint64, req engine.BetRequest) (domain.Market, domain.Position, error) {
	unlock, err := s.lockMarket(ctx, marketID)
	if err != nil {
		return domain.Market{}, domain.Position{}, err
	}
	defer unlock()

	now := s.clock()

	market, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return domain.Market{}, domain.Position{}, fmt.Errorf("settlement: load market %d: %w", marketID, err)
	}

	pos, created, err := s.loadOrCreatePosition(ctx, market.MarketID, req.Participant, now)
	if err != nil {
		return domain.Market{}, domain.Position{}, err
	}

	transfer, err := engine.PlaceBet(&market, &pos, req, now)
	if err != nil {
		return domain.Market{}, domain.Position{}, err
	}

	if err := s.ledgerFor(transfer.Class).Transfer(ctx, transfer); err != nil {
		return domain.Market{}, domain.Position{}, fmt.Errorf("settlement: deposit for market %d: %w", marketID, err)
	}

	if err := s.persistBet(ctx, market, pos, created); err != nil {
		s.reverse(ctx, transfer)
		return domain.Market{}, domain.Position{}, err
	}
	s.invalidateCache(ctx, market.MarketID)

	s.publish(ctx, domain.BetPlacedEvent{
		Type:        domain.EventBetPlaced,
		MarketID:    market.MarketID,
		Participant: req.Participant,
		Side:        req.Side,
		Amount:      req.Amount,
		Shares:      req.Amount,
		NewYesTotal: market.TotalYesAmount,
		NewNoTotal:  market.TotalNoAmount,
		AssetClass:  market.AssetClass,
	})
	s.auditLog(ctx, domain.EventBetPlaced, map[string]any{
		"market_id":   market.MarketID,
		"participant": req.Participant,
		"side":        string(req.Side),
		"amount":      req.Amount,
	})

	s.logger.InfoContext(ctx, "bet placed",
		slog.Uint64("market_id", market.MarketID),
		slog.String("participant", req.Participant),
		slog.String("side", string(req.Side)),
		slog.Uint64("amount", req.Amount),
		slog.Uint64("total_volume", market.TotalVolume),
	)
	return market, pos, nil
}

// ResolveMarket records the outcome of an expired market.
func (s *SettlementService) ResolveMarket(ctx context.Context, marketID uint64, authority string, outcome bool) (domain.Market, error) {
	unlock, err := s.lockMarket(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	defer unlock()

	now := s.clock()

	market, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("settlement: load market %d: %w", marketID, err)
	}

	if err := engine.Resolve(&market, authority, outcome, now); err != nil {
		return domain.Market{}, err
	}
	if err := s.markets.Update(ctx, market); err != nil {
		return domain.Market{}, fmt.Errorf("settlement: persist resolution of market %d: %w", marketID, err)
	}
	s.invalidateCache(ctx, market.MarketID)

	s.publish(ctx, domain.MarketResolvedEvent{
		Type:        domain.EventMarketResolved,
		MarketID:    market.MarketID,
		Outcome:     outcome,
		TotalVolume: market.TotalVolume,
		AssetClass:  market.AssetClass,
	})
	s.auditLog(ctx, domain.EventMarketResolved, map[string]any{
		"market_id": market.MarketID,
		"outcome":   outcome,
	})
	s.notify(ctx, domain.EventMarketResolved,
		"Market resolved",
		fmt.Sprintf("market %d resolved outcome=%t volume=%d", market.MarketID, outcome, market.TotalVolume),
	)

	s.logger.InfoContext(ctx, "market resolved",
		slog.Uint64("market_id", market.MarketID),
		slog.Bool("outcome", outcome),
		slog.Uint64("total_volume", market.TotalVolume),
	)
	return market, nil
}

// CancelMarket cancels an active market at any time before resolution.
func (s *SettlementService) CancelMarket(ctx context.Context, marketID uint64, authority string) (domain.Market, error) {
	unlock, err := s.lockMarket(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	defer unlock()

	now := s.clock()

	market, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("settlement: load market %d: %w", marketID, err)
	}

	if err := engine.Cancel(&market, authority, now); err != nil {
		return domain.Market{}, err
	}
	if err := s.markets.Update(ctx, market); err != nil {
		return domain.Market{}, fmt.Errorf("settlement: persist cancellation of market %d: %w", marketID, err)
	}
	s.invalidateCache(ctx, market.MarketID)

	s.publish(ctx, domain.MarketCancelledEvent{
		Type:        domain.EventMarketCancelled,
		MarketID:    market.MarketID,
		TotalVolume: market.TotalVolume,
		AssetClass:  market.AssetClass,
	})
	s.auditLog(ctx, domain.EventMarketCancelled, map[string]any{
		"market_id": market.MarketID,
	})
	s.notify(ctx, domain.EventMarketCancelled,
		"Market cancelled",
		fmt.Sprintf("market %d cancelled volume=%d", market.MarketID, market.TotalVolume),
	)

	s.logger.InfoContext(ctx, "market cancelled",
		slog.Uint64("market_id", market.MarketID),
		slog.Uint64("total_volume", market.TotalVolume),
	)
	return market, nil
}

// ClaimWinnings pays out a participant's proportional share of a resolved
// market's pool.
func (s *SettlementService) ClaimWinnings(ctx context.Context, marketID uint64, participant string, handles domain.AssetHandles) (uint64, error) {
	unlock, err := s.lockMarket(ctx, marketID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	now := s.clock()

	market, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return 0, fmt.Errorf("settlement: load market %d: %w", marketID, err)
	}
	pos, err := s.positions.Get(ctx, marketID, participant)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, domain.ErrNoWinningShares
		}
		return 0, fmt.Errorf("settlement: load position %d/%s: %w", marketID, participant, err)
	}

	winnings, transfer, err := engine.ClaimWinnings(&market, &pos, participant, handles, now)
	if err != nil {
		return 0, err
	}

	if err := s.ledgerFor(transfer.Class).Transfer(ctx, transfer); err != nil {
		return 0, fmt.Errorf("settlement: payout for market %d: %w", marketID, err)
	}
	if err := s.positions.Update(ctx, pos); err != nil {
		s.reverse(ctx, transfer)
		return 0, fmt.Errorf("settlement: persist claim %d/%s: %w", marketID, participant, err)
	}

	s.publish(ctx, domain.WinningsClaimedEvent{
		Type:        domain.EventWinningsClaimed,
		MarketID:    market.MarketID,
		Participant: participant,
		Amount:      winnings,
		AssetClass:  market.AssetClass,
	})
	s.auditLog(ctx, domain.EventWinningsClaimed, map[string]any{
		"market_id":   market.MarketID,
		"participant": participant,
		"amount":      winnings,
	})
	s.notify(ctx, domain.EventWinningsClaimed,
		"Winnings claimed",
		fmt.Sprintf("market %d participant %s claimed %d", market.MarketID, participant, winnings),
	)

	s.logger.InfoContext(ctx, "winnings claimed",
		slog.Uint64("market_id", market.MarketID),
		slog.String("participant", participant),
		slog.Uint64("amount", winnings),
	)
	return winnings, nil
}

// ClaimRefund returns a participant's full stake from a cancelled market.
func (s *SettlementService) ClaimRefund(ctx context.Context, marketID uint64, participant string, handles domain.AssetHandles) (uint64, error) {
	unlock, err := s.lockMarket(ctx, marketID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	now := s.clock()

	market, err := s.markets.Get(ctx, marketID)
	if err != nil {
		return 0, fmt.Errorf("settlement: load market %d: %w", marketID, err)
	}
	pos, err := s.positions.Get(ctx, marketID, participant)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, domain.ErrNoRefundAvailable
		}
		return 0, fmt.Errorf("settlement: load position %d/%s: %w", marketID, participant, err)
	}

	refund, transfer, err := engine.ClaimRefund(&market, &pos, participant, handles, now)
	if err != nil {
		return 0, err
	}

	if err := s.ledgerFor(transfer.Class).Transfer(ctx, transfer); err != nil {
		return 0, fmt.Errorf("settlement: refund for market %d: %w", marketID, err)
	}
	if err := s.positions.Update(ctx, pos); err != nil {
		s.reverse(ctx, transfer)
		return 0, fmt.Errorf("settlement: persist refund %d/%s: %w", marketID, participant, err)
	}

	s.publish(ctx, domain.RefundClaimedEvent{
		Type:        domain.EventRefundClaimed,
		MarketID:    market.MarketID,
		Participant: participant,
		Amount:      refund,
		AssetClass:  market.AssetClass,
	})
	s.auditLog(ctx, domain.EventRefundClaimed, map[string]any{
		"market_id":   market.MarketID,
		"participant": participant,
		"amount":      refund,
	})

	s.logger.InfoContext(ctx, "refund claimed",
		slog.Uint64("market_id", market.MarketID),
		slog.String("participant", participant),
		slog.Uint64("amount", refund),
	)
	return refund, nil
}

// ---------------------------------------------------------------------------
// internals
// ---------------------------------------------------------------------------

// lockMarket serializes operations against one market record. Independent
// markets proceed fully in parallel.
func (s *SettlementService) lockMarket(ctx context.Context, marketID uint64) (func(), error) {
	unlock, err := s.locks.Acquire(ctx, fmt.Sprintf("market:%d", marketID), lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return nil, domain.ErrLockHeld
		}
		return nil, fmt.Errorf("settlement: lock market %d: %w", marketID, err)
	}
	return unlock, nil
}

// loadOrCreatePosition is the explicit creation path for a participant's
// first stake: a missing record is created zero-valued before the engine
// applies increments, rather than inferring newness from zero fields.
func (s *SettlementService) loadOrCreatePosition(ctx context.Context, marketID uint64, participant string, now time.Time) (domain.Position, bool, error) {
	pos, err := s.positions.Get(ctx, marketID, participant)
	if err == nil {
		return pos, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Position{}, false, fmt.Errorf("settlement: load position %d/%s: %w", marketID, participant, err)
	}
	return domain.NewPosition(marketID, participant, now), true, nil
}

func (s *SettlementService) persistBet(ctx context.Context, market domain.Market, pos domain.Position, created bool) error {
	if created {
		if err := s.positions.Create(ctx, pos); err != nil {
			return fmt.Errorf("settlement: create position %d/%s: %w", market.MarketID, pos.Participant, err)
		}
	} else {
		if err := s.positions.Update(ctx, pos); err != nil {
			return fmt.Errorf("settlement: update position %d/%s: %w", market.MarketID, pos.Participant, err)
		}
	}
	if err := s.markets.Update(ctx, market); err != nil {
		return fmt.Errorf("settlement: update market %d: %w", market.MarketID, err)
	}
	return nil
}

func (s *SettlementService) ledgerFor(class domain.AssetClass) domain.Ledger {
	if class == domain.AssetClassToken {
		return s.token
	}
	return s.native
}

// reverse issues a compensating transfer after a persistence failure. A
// failed reversal is logged loudly; the audit trail still carries the
// original transfer for manual reconciliation.
func (s *SettlementService) reverse(ctx context.Context, tr domain.TransferRequest) {
	rev := tr
	rev.From, rev.To = tr.To, tr.From
	if err := s.ledgerFor(rev.Class).Transfer(ctx, rev); err != nil {
		s.logger.ErrorContext(ctx, "compensating transfer failed",
			slog.String("asset", rev.AssetID),
			slog.String("from", rev.From),
			slog.String("to", rev.To),
			slog.Uint64("amount", rev.Amount),
			slog.String("error", err.Error()),
		)
	}
}

// publish fans an event out to the signal bus and, when configured, the
// durable stream. Delivery failures never fail the settlement operation.
func (s *SettlementService) publish(ctx context.Context, ev domain.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.WarnContext(ctx, "marshal event failed",
			slog.String("event", ev.EventType()),
			slog.String("error", err.Error()),
		)
		return
	}
	if s.bus != nil {
		if err := s.bus.Publish(ctx, settlementChannel, payload); err != nil {
			s.logger.WarnContext(ctx, "publish event failed",
				slog.String("event", ev.EventType()),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.stream != nil {
		if err := s.stream.PublishEvent(ctx, ev); err != nil {
			s.logger.WarnContext(ctx, "stream event failed",
				slog.String("event", ev.EventType()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *SettlementService) invalidateCache(ctx context.Context, marketID uint64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, marketID); err != nil {
		s.logger.WarnContext(ctx, "market cache invalidation failed",
			slog.Uint64("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SettlementService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SettlementService) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
