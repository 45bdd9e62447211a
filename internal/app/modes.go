package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/cryptobet/internal/domain"
	"github.com/alanyoungcy/cryptobet/internal/engine"
	"github.com/alanyoungcy/cryptobet/internal/server"
	"github.com/alanyoungcy/cryptobet/internal/server/handler"
	"github.com/alanyoungcy/cryptobet/internal/server/ws"
	"github.com/alanyoungcy/cryptobet/internal/service"
	"github.com/alanyoungcy/cryptobet/internal/store/memory"
)

// services bundles the two application services the HTTP layer consumes.
type services struct {
	settlement *service.SettlementService
	markets    *service.MarketService
}

// buildServices constructs the settlement and market services on top of the
// wired dependencies. clock may be nil, in which case wall time is used.
func (a *App) buildServices(deps *Dependencies, clock domain.Clock) *services {
	return &services{
		settlement: service.NewSettlementService(
			deps.MarketStore,
			deps.PositionStore,
			deps.NativeLedger,
			deps.TokenLedger,
			deps.LockManager,
			deps.SignalBus,
			deps.Stream,
			deps.AuditStore,
			deps.MarketCache,
			deps.Notifier,
			clock,
			a.logger,
		),
		markets: service.NewMarketService(
			deps.MarketStore,
			deps.PositionStore,
			deps.MarketCache,
			a.logger,
		),
	}
}

// ServerMode runs the HTTP + WebSocket API against PostgreSQL and Redis.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "running in SERVER mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps, nil)
	a.startHTTPServer(ctx, g, deps, svcs)
	return g.Wait()
}

// FullMode runs the HTTP + WebSocket API plus the periodic settled-market
// archiver when S3 and archiving are enabled.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "running in FULL mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps, nil)
	a.startHTTPServer(ctx, g, deps, svcs)

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		interval := a.cfg.Archive.Interval.Duration
		retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			a.logger.InfoContext(ctx, "archiver started",
				slog.Duration("interval", interval),
				slog.Int("retention_days", a.cfg.Archive.RetentionDays),
			)
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					cutoff := time.Now().UTC().Add(-retention)
					n, err := deps.Archiver.ArchiveSettled(ctx, cutoff)
					if err != nil {
						a.logger.ErrorContext(ctx, "archive run failed",
							slog.String("error", err.Error()),
						)
						continue
					}
					if n > 0 {
						a.logger.InfoContext(ctx, "archived settled markets",
							slog.Int64("markets", n),
							slog.Time("cutoff", cutoff),
						)
					}
				}
			}
		})
	}

	return g.Wait()
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Markets:   handler.NewMarketHandler(svcs.settlement, svcs.markets, a.logger),
		Bets:      handler.NewBetHandler(svcs.settlement, a.logger),
		Claims:    handler.NewClaimHandler(svcs.settlement, a.logger),
		Positions: handler.NewPositionHandler(svcs.markets, a.logger),
	}
	if deps.AuditStore != nil {
		handlers.Audit = handler.NewAuditHandler(deps.AuditStore, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// DemoMode runs a scripted settlement walkthrough entirely in memory: it
// funds a handful of accounts, runs one native market to resolution and one
// token market to cancellation, and logs the resulting balances. Useful for
// exercising the engine without PostgreSQL, Redis, or Kafka.
func (a *App) DemoMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "running in DEMO mode")

	native := memory.NewLedger(domain.AssetClassNative)
	token := memory.NewLedger(domain.AssetClassToken)
	deps.MarketStore = memory.NewMarketStore()
	deps.PositionStore = memory.NewPositionStore()
	deps.AuditStore = memory.NewAuditStore()
	deps.NativeLedger = native
	deps.TokenLedger = token
	deps.LockManager = newLocalLockManager()
	deps.SignalBus = newLocalSignalBus()

	const usdc = "usdc"
	native.Credit("alice", domain.AssetIDNative, 50_000_000)
	native.Credit("bob", domain.AssetIDNative, 50_000_000)
	token.Credit("carol-usdc", usdc, 50_000_000)
	token.Credit("dave-usdc", usdc, 50_000_000)

	// A controllable clock lets the demo jump past resolution time instead
	// of sleeping.
	now := time.Now().UTC()
	svcs := a.buildServices(deps, func() time.Time { return now })
	settle := svcs.settlement

	// --- Native market: bets, resolution, winner claim ---
	market, err := settle.CreateMarket(ctx, engine.CreateParams{
		Authority:      "demo-oracle",
		MarketID:       1,
		Title:          "Will BTC close above 100k this month?",
		Description:    "Resolves yes if the daily close exceeds 100,000 USD.",
		Category:       "crypto",
		ResolutionTime: now.Add(time.Hour),
		AssetClass:     domain.AssetClassNative,
	})
	if err != nil {
		return err
	}

	if _, _, err := settle.PlaceBet(ctx, market.MarketID, engine.BetRequest{
		Participant: "alice",
		Side:        domain.BetSideYes,
		Amount:      10_000_000,
		Handles:     domain.NativeHandles{},
	}); err != nil {
		return err
	}
	if _, _, err := settle.PlaceBet(ctx, market.MarketID, engine.BetRequest{
		Participant: "bob",
		Side:        domain.BetSideNo,
		Amount:      5_000_000,
		Handles:     domain.NativeHandles{},
	}); err != nil {
		return err
	}

	now = now.Add(2 * time.Hour)
	if _, err := settle.ResolveMarket(ctx, market.MarketID, "demo-oracle", true); err != nil {
		return err
	}
	payout, err := settle.ClaimWinnings(ctx, market.MarketID, "alice", domain.NativeHandles{})
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "native market settled",
		slog.Uint64("market_id", market.MarketID),
		slog.Uint64("alice_payout", payout),
	)

	// --- Token market: bets, cancellation, refunds ---
	tokenMarket, err := settle.CreateMarket(ctx, engine.CreateParams{
		Authority:      "demo-oracle",
		MarketID:       2,
		Title:          "Will the merge ship before the deadline?",
		Category:       "tech",
		ResolutionTime: now.Add(time.Hour),
		AssetClass:     domain.AssetClassToken,
		TokenAssetID:   usdc,
	})
	if err != nil {
		return err
	}

	tokenHandles := func(participant string) domain.TokenHandles {
		return domain.TokenHandles{
			Funding: domain.TokenAccountRef{Address: participant + "-usdc", AssetID: usdc},
			Custody: domain.TokenAccountRef{Address: tokenMarket.VaultAccount(), AssetID: usdc},
		}
	}
	for _, bet := range []engine.BetRequest{
		{Participant: "carol", Side: domain.BetSideYes, Amount: 8_000_000, Handles: tokenHandles("carol")},
		{Participant: "dave", Side: domain.BetSideNo, Amount: 6_000_000, Handles: tokenHandles("dave")},
	} {
		if _, _, err := settle.PlaceBet(ctx, tokenMarket.MarketID, bet); err != nil {
			return err
		}
	}

	if _, err := settle.CancelMarket(ctx, tokenMarket.MarketID, "demo-oracle"); err != nil {
		return err
	}
	for _, participant := range []string{"carol", "dave"} {
		refund, err := settle.ClaimRefund(ctx, tokenMarket.MarketID, participant, tokenHandles(participant))
		if err != nil {
			return err
		}
		a.logger.InfoContext(ctx, "refund claimed",
			slog.Uint64("market_id", tokenMarket.MarketID),
			slog.String("participant", participant),
			slog.Uint64("amount", refund),
		)
	}

	for _, account := range []string{"alice", "bob"} {
		balance, err := native.Balance(ctx, account, domain.AssetIDNative)
		if err != nil {
			return err
		}
		a.logger.InfoContext(ctx, "final native balance",
			slog.String("account", account),
			slog.Uint64("balance", balance),
		)
	}
	for _, account := range []string{"carol-usdc", "dave-usdc"} {
		balance, err := token.Balance(ctx, account, usdc)
		if err != nil {
			return err
		}
		a.logger.InfoContext(ctx, "final token balance",
			slog.String("account", account),
			slog.Uint64("balance", balance),
		)
	}

	a.logger.InfoContext(ctx, "demo complete")
	return nil
}
