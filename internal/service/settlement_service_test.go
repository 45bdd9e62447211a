package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/cryptobet/internal/domain"
	"github.com/alanyoungcy/cryptobet/internal/engine"
	"github.com/alanyoungcy/cryptobet/internal/store/memory"
)

// noopLocks always grants the lock; lock contention is covered by the redis
// implementation.
type noopLocks struct{}

func (noopLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}

// captureBus records published payloads for assertions.
type captureBus struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (b *captureBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, payload)
	return nil
}

func (b *captureBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

func (b *captureBus) eventTypes(t *testing.T) []string {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var types []string
	for _, p := range b.payloads {
		var head struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(p, &head); err != nil {
			t.Fatalf("unmarshal event payload: %v", err)
		}
		types = append(types, head.Event)
	}
	return types
}

type testEnv struct {
	svc       *SettlementService
	markets   *memory.MarketStore
	positions *memory.PositionStore
	native    *memory.Ledger
	token     *memory.Ledger
	audit     *memory.AuditStore
	bus       *captureBus
	now       *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	now := time.Unix(1_700_000_000, 0).UTC()
	env := &testEnv{
		markets:   memory.NewMarketStore(),
		positions: memory.NewPositionStore(),
		native:    memory.NewLedger(domain.AssetClassNative),
		token:     memory.NewLedger(domain.AssetClassToken),
		audit:     memory.NewAuditStore(),
		bus:       &captureBus{},
		now:       &now,
	}
	env.svc = NewSettlementService(
		env.markets, env.positions,
		env.native, env.token,
		noopLocks{}, env.bus, nil, env.audit, nil, nil,
		func() time.Time { return *env.now },
		slog.New(slog.DiscardHandler),
	)
	return env
}

func (env *testEnv) advance(d time.Duration) {
	*env.now = env.now.Add(d)
}

func (env *testEnv) createNativeMarket(t *testing.T, id uint64) domain.Market {
	t.Helper()
	m, err := env.svc.CreateMarket(context.Background(), engine.CreateParams{
		Authority:      "auth-1",
		MarketID:       id,
		Title:          "BTC above 100k?",
		Category:       "crypto",
		ResolutionTime: env.now.Add(100 * time.Second),
		AssetClass:     domain.AssetClassNative,
	})
	if err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}
	return m
}

func (env *testEnv) nativeBalance(t *testing.T, account string) uint64 {
	t.Helper()
	bal, err := env.native.Balance(context.Background(), account, domain.AssetIDNative)
	if err != nil {
		t.Fatalf("Balance(%s): %v", account, err)
	}
	return bal
}

func TestSettlementLifecycleNative(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.native.Credit("alice", domain.AssetIDNative, 20_000_000)
	env.native.Credit("bob", domain.AssetIDNative, 10_000_000)

	market := env.createNativeMarket(t, 1)

	// Two participants stake on opposite sides.
	if _, _, err := env.svc.PlaceBet(ctx, 1, engine.BetRequest{
		Participant: "alice", Side: domain.BetSideYes, Amount: 10_000_000, Handles: domain.NativeHandles{},
	}); err != nil {
		t.Fatalf("alice bet: %v", err)
	}
	if _, _, err := env.svc.PlaceBet(ctx, 1, engine.BetRequest{
		Participant: "bob", Side: domain.BetSideNo, Amount: 5_000_000, Handles: domain.NativeHandles{},
	}); err != nil {
		t.Fatalf("bob bet: %v", err)
	}

	if got := env.nativeBalance(t, market.CustodyAccount()); got != 15_000_000 {
		t.Errorf("custody balance = %d, want 15000000", got)
	}
	if got := env.nativeBalance(t, "alice"); got != 10_000_000 {
		t.Errorf("alice balance = %d, want 10000000", got)
	}

	// Resolution is rejected before the deadline.
	if _, err := env.svc.ResolveMarket(ctx, 1, "auth-1", true); !errors.Is(err, domain.ErrMarketNotExpired) {
		t.Fatalf("early resolve: err = %v, want ErrMarketNotExpired", err)
	}

	env.advance(101 * time.Second)
	if _, err := env.svc.ResolveMarket(ctx, 1, "auth-1", true); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// Sole yes holder takes the entire pool.
	won, err := env.svc.ClaimWinnings(ctx, 1, "alice", domain.NativeHandles{})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if won != 15_000_000 {
		t.Errorf("winnings = %d, want 15000000", won)
	}
	if got := env.nativeBalance(t, "alice"); got != 25_000_000 {
		t.Errorf("alice balance = %d, want 25000000", got)
	}
	if got := env.nativeBalance(t, market.CustodyAccount()); got != 0 {
		t.Errorf("custody balance = %d, want 0", got)
	}

	// Losing side has nothing; repeat claim is also rejected.
	if _, err := env.svc.ClaimWinnings(ctx, 1, "bob", domain.NativeHandles{}); !errors.Is(err, domain.ErrNoWinningShares) {
		t.Errorf("bob claim: err = %v, want ErrNoWinningShares", err)
	}
	if _, err := env.svc.ClaimWinnings(ctx, 1, "alice", domain.NativeHandles{}); !errors.Is(err, domain.ErrNoWinningShares) {
		t.Errorf("alice second claim: err = %v, want ErrNoWinningShares", err)
	}

	wantEvents := []string{
		domain.EventMarketCreated,
		domain.EventBetPlaced,
		domain.EventBetPlaced,
		domain.EventMarketResolved,
		domain.EventWinningsClaimed,
	}
	got := env.bus.eventTypes(t)
	if len(got) != len(wantEvents) {
		t.Fatalf("published events = %v, want %v", got, wantEvents)
	}
	for i := range wantEvents {
		if got[i] != wantEvents[i] {
			t.Errorf("event[%d] = %s, want %s", i, got[i], wantEvents[i])
		}
	}

	if entries := env.audit.Entries(); len(entries) != len(wantEvents) {
		t.Errorf("audit entries = %d, want %d", len(entries), len(wantEvents))
	}
}

func TestPlaceBetFailuresLeaveNoState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createNativeMarket(t, 1)

	t.Run("underfunded deposit aborts cleanly", func(t *testing.T) {
		_, _, err := env.svc.PlaceBet(ctx, 1, engine.BetRequest{
			Participant: "alice", Side: domain.BetSideYes, Amount: 10_000_000, Handles: domain.NativeHandles{},
		})
		if !errors.Is(err, domain.ErrInsufficientFunds) {
			t.Fatalf("err = %v, want ErrInsufficientFunds", err)
		}

		m, err := env.markets.Get(ctx, 1)
		if err != nil {
			t.Fatalf("get market: %v", err)
		}
		if m.TotalVolume != 0 {
			t.Errorf("volume = %d, want 0 after failed deposit", m.TotalVolume)
		}
		if _, err := env.positions.Get(ctx, 1, "alice"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("position err = %v, want ErrNotFound", err)
		}
	})

	t.Run("stake below minimum rejected before transfer", func(t *testing.T) {
		env.native.Credit("carol", domain.AssetIDNative, 10_000_000)

		_, _, err := env.svc.PlaceBet(ctx, 1, engine.BetRequest{
			Participant: "carol", Side: domain.BetSideYes, Amount: 500_000, Handles: domain.NativeHandles{},
		})
		if !errors.Is(err, domain.ErrBetTooSmall) {
			t.Fatalf("err = %v, want ErrBetTooSmall", err)
		}
		if got := env.nativeBalance(t, "carol"); got != 10_000_000 {
			t.Errorf("carol balance = %d, want untouched 10000000", got)
		}
	})

	t.Run("unknown market", func(t *testing.T) {
		_, _, err := env.svc.PlaceBet(ctx, 99, engine.BetRequest{
			Participant: "alice", Side: domain.BetSideYes, Amount: 10_000_000, Handles: domain.NativeHandles{},
		})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestCancelAndRefund(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.native.Credit("alice", domain.AssetIDNative, 20_000_000)
	market := env.createNativeMarket(t, 1)

	if _, _, err := env.svc.PlaceBet(ctx, 1, engine.BetRequest{
		Participant: "alice", Side: domain.BetSideYes, Amount: 10_000_000, Handles: domain.NativeHandles{},
	}); err != nil {
		t.Fatalf("bet: %v", err)
	}
	if _, _, err := env.svc.PlaceBet(ctx, 1, engine.BetRequest{
		Participant: "alice", Side: domain.BetSideNo, Amount: 4_000_000, Handles: domain.NativeHandles{},
	}); err != nil {
		t.Fatalf("bet: %v", err)
	}

	// Cancel works before the deadline, but not for strangers.
	if _, err := env.svc.CancelMarket(ctx, 1, "mallory"); !errors.Is(err, domain.ErrUnauthorizedResolver) {
		t.Fatalf("stranger cancel: err = %v, want ErrUnauthorizedResolver", err)
	}
	if _, err := env.svc.CancelMarket(ctx, 1, "auth-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	refund, err := env.svc.ClaimRefund(ctx, 1, "alice", domain.NativeHandles{})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refund != 14_000_000 {
		t.Errorf("refund = %d, want 14000000", refund)
	}
	if got := env.nativeBalance(t, "alice"); got != 20_000_000 {
		t.Errorf("alice balance = %d, want fully restored 20000000", got)
	}
	if got := env.nativeBalance(t, market.CustodyAccount()); got != 0 {
		t.Errorf("custody balance = %d, want 0", got)
	}

	if _, err := env.svc.ClaimRefund(ctx, 1, "alice", domain.NativeHandles{}); !errors.Is(err, domain.ErrNoRefundAvailable) {
		t.Errorf("second refund: err = %v, want ErrNoRefundAvailable", err)
	}
	if _, err := env.svc.ClaimRefund(ctx, 1, "nobody", domain.NativeHandles{}); !errors.Is(err, domain.ErrNoRefundAvailable) {
		t.Errorf("stranger refund: err = %v, want ErrNoRefundAvailable", err)
	}
}

func TestTokenMarketLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	market, err := env.svc.CreateMarket(ctx, engine.CreateParams{
		Authority:      "auth-1",
		MarketID:       7,
		Title:          "ETH flips BTC?",
		Category:       "crypto",
		ResolutionTime: env.now.Add(100 * time.Second),
		AssetClass:     domain.AssetClassToken,
		TokenAssetID:   "usdc",
	})
	if err != nil {
		t.Fatalf("create token market: %v", err)
	}

	env.token.Credit("alice-usdc", "usdc", 10_000_000)
	handles := domain.TokenHandles{
		Funding: domain.TokenAccountRef{Address: "alice-usdc", AssetID: "usdc"},
		Custody: domain.TokenAccountRef{Address: market.VaultAccount(), AssetID: "usdc"},
	}

	t.Run("wrong asset is rejected", func(t *testing.T) {
		bad := handles
		bad.Funding.AssetID = "usdt"
		_, _, err := env.svc.PlaceBet(ctx, 7, engine.BetRequest{
			Participant: "alice", Side: domain.BetSideYes, Amount: 5_000_000, Handles: bad,
		})
		if !errors.Is(err, domain.ErrInvalidTokenAsset) {
			t.Errorf("err = %v, want ErrInvalidTokenAsset", err)
		}
	})

	t.Run("deposit diverted from the vault is rejected", func(t *testing.T) {
		bad := handles
		bad.Custody.Address = "attacker-sink"
		_, _, err := env.svc.PlaceBet(ctx, 7, engine.BetRequest{
			Participant: "alice", Side: domain.BetSideYes, Amount: 5_000_000, Handles: bad,
		})
		if !errors.Is(err, domain.ErrInvalidCustodyAccount) {
			t.Errorf("err = %v, want ErrInvalidCustodyAccount", err)
		}
		if got, _ := env.token.Balance(ctx, "attacker-sink", "usdc"); got != 0 {
			t.Errorf("attacker-sink balance = %d, want 0", got)
		}
		if got, _ := env.token.Balance(ctx, "alice-usdc", "usdc"); got != 10_000_000 {
			t.Errorf("alice-usdc balance = %d, want 10000000", got)
		}
	})

	if _, _, err := env.svc.PlaceBet(ctx, 7, engine.BetRequest{
		Participant: "alice", Side: domain.BetSideYes, Amount: 5_000_000, Handles: handles,
	}); err != nil {
		t.Fatalf("token bet: %v", err)
	}

	vaultBal, err := env.token.Balance(ctx, market.VaultAccount(), "usdc")
	if err != nil {
		t.Fatalf("vault balance: %v", err)
	}
	if vaultBal != 5_000_000 {
		t.Errorf("vault balance = %d, want 5000000", vaultBal)
	}

	env.advance(101 * time.Second)
	if _, err := env.svc.ResolveMarket(ctx, 7, "auth-1", true); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	t.Run("claim against a foreign custody account is rejected", func(t *testing.T) {
		env.token.Credit("victim-usdc", "usdc", 9_000_000)

		bad := handles
		bad.Custody.Address = "victim-usdc"
		if _, err := env.svc.ClaimWinnings(ctx, 7, "alice", bad); !errors.Is(err, domain.ErrInvalidCustodyAccount) {
			t.Errorf("err = %v, want ErrInvalidCustodyAccount", err)
		}
		if got, _ := env.token.Balance(ctx, "victim-usdc", "usdc"); got != 9_000_000 {
			t.Errorf("victim-usdc balance = %d, want 9000000", got)
		}
		if got, _ := env.token.Balance(ctx, market.VaultAccount(), "usdc"); got != 5_000_000 {
			t.Errorf("vault balance = %d, want 5000000", got)
		}
	})

	won, err := env.svc.ClaimWinnings(ctx, 7, "alice", handles)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if won != 5_000_000 {
		t.Errorf("winnings = %d, want 5000000", won)
	}

	aliceBal, err := env.token.Balance(ctx, "alice-usdc", "usdc")
	if err != nil {
		t.Fatalf("alice balance: %v", err)
	}
	if aliceBal != 10_000_000 {
		t.Errorf("alice token balance = %d, want restored 10000000", aliceBal)
	}
}

func TestCreateMarketDuplicate(t *testing.T) {
	env := newTestEnv(t)
	env.createNativeMarket(t, 1)

	_, err := env.svc.CreateMarket(context.Background(), engine.CreateParams{
		Authority:      "auth-2",
		MarketID:       1,
		Title:          "duplicate id",
		ResolutionTime: env.now.Add(time.Hour),
		AssetClass:     domain.AssetClassNative,
	})
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestProportionalPayoutAcrossClaimants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.native.Credit("alice", domain.AssetIDNative, 10_000_000)
	env.native.Credit("bob", domain.AssetIDNative, 30_000_000)
	env.native.Credit("carol", domain.AssetIDNative, 20_000_000)
	market := env.createNativeMarket(t, 1)

	for _, bet := range []struct {
		who    string
		side   domain.BetSide
		amount uint64
	}{
		{"alice", domain.BetSideYes, 10_000_000},
		{"bob", domain.BetSideYes, 30_000_000},
		{"carol", domain.BetSideNo, 20_000_000},
	} {
		if _, _, err := env.svc.PlaceBet(ctx, 1, engine.BetRequest{
			Participant: bet.who, Side: bet.side, Amount: bet.amount, Handles: domain.NativeHandles{},
		}); err != nil {
			t.Fatalf("%s bet: %v", bet.who, err)
		}
	}

	env.advance(101 * time.Second)
	if _, err := env.svc.ResolveMarket(ctx, 1, "auth-1", true); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	wonA, err := env.svc.ClaimWinnings(ctx, 1, "alice", domain.NativeHandles{})
	if err != nil {
		t.Fatalf("alice claim: %v", err)
	}
	wonB, err := env.svc.ClaimWinnings(ctx, 1, "bob", domain.NativeHandles{})
	if err != nil {
		t.Fatalf("bob claim: %v", err)
	}

	if wonA != 15_000_000 || wonB != 45_000_000 {
		t.Errorf("payouts = %d/%d, want 15000000/45000000", wonA, wonB)
	}
	// Custody pays out exactly the pool, never more.
	if got := env.nativeBalance(t, market.CustodyAccount()); got != 0 {
		t.Errorf("custody residue = %d, want 0", got)
	}
}
