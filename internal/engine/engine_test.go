package engine

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/cryptobet/internal/domain"
)

var testNow = time.Unix(1_700_000_000, 0).UTC()

func newActiveMarket(t *testing.T) domain.Market {
	t.Helper()
	m, err := CreateMarket(CreateParams{
		Authority:      "auth-1",
		MarketID:       42,
		Title:          "BTC above 100k by March?",
		Description:    "Settles yes if BTC trades above 100k",
		Category:       "crypto",
		ResolutionTime: testNow.Add(100 * time.Second),
		AssetClass:     domain.AssetClassNative,
	}, testNow)
	if err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}
	return m
}

func newTokenMarket(t *testing.T) domain.Market {
	t.Helper()
	m, err := CreateMarket(CreateParams{
		Authority:      "auth-1",
		MarketID:       43,
		Title:          "ETH flips BTC?",
		Category:       "crypto",
		ResolutionTime: testNow.Add(100 * time.Second),
		AssetClass:     domain.AssetClassToken,
		TokenAssetID:   "usdc",
	}, testNow)
	if err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}
	return m
}

func mustBet(t *testing.T, m *domain.Market, pos *domain.Position, side domain.BetSide, amount uint64) domain.TransferRequest {
	t.Helper()
	tr, err := PlaceBet(m, pos, BetRequest{
		Participant: pos.Participant,
		Side:        side,
		Amount:      amount,
		Handles:     domain.NativeHandles{},
	}, testNow)
	if err != nil {
		t.Fatalf("PlaceBet(%s, %d): %v", side, amount, err)
	}
	return tr
}

func checkConservation(t *testing.T, m domain.Market) {
	t.Helper()
	if m.TotalVolume != m.TotalYesAmount+m.TotalNoAmount {
		t.Errorf("conservation broken: volume=%d yes=%d no=%d",
			m.TotalVolume, m.TotalYesAmount, m.TotalNoAmount)
	}
	if m.TotalYesShares != m.TotalYesAmount {
		t.Errorf("yes share parity broken: shares=%d amount=%d", m.TotalYesShares, m.TotalYesAmount)
	}
	if m.TotalNoShares != m.TotalNoAmount {
		t.Errorf("no share parity broken: shares=%d amount=%d", m.TotalNoShares, m.TotalNoAmount)
	}
}

func TestCreateMarket(t *testing.T) {
	t.Run("native market", func(t *testing.T) {
		m := newActiveMarket(t)
		if m.State != domain.MarketStateActive {
			t.Errorf("state = %s, want active", m.State)
		}
		if m.AcceptedAssetID != domain.AssetIDNative {
			t.Errorf("accepted asset = %q, want native", m.AcceptedAssetID)
		}
		if m.ResolvedOutcome != nil {
			t.Error("new market must have no resolved outcome")
		}
		if m.TotalVolume != 0 || m.TotalYesAmount != 0 || m.TotalNoAmount != 0 {
			t.Error("new market must have zero counters")
		}
	})

	t.Run("token market records accepted asset", func(t *testing.T) {
		m := newTokenMarket(t)
		if m.AcceptedAssetID != "usdc" {
			t.Errorf("accepted asset = %q, want usdc", m.AcceptedAssetID)
		}
	})

	t.Run("token market without asset id", func(t *testing.T) {
		_, err := CreateMarket(CreateParams{
			Authority:      "auth-1",
			MarketID:       1,
			Title:          "t",
			ResolutionTime: testNow.Add(time.Hour),
			AssetClass:     domain.AssetClassToken,
		}, testNow)
		if !errors.Is(err, domain.ErrInvalidTokenAsset) {
			t.Errorf("err = %v, want ErrInvalidTokenAsset", err)
		}
	})

	t.Run("title too long", func(t *testing.T) {
		_, err := CreateMarket(CreateParams{
			Title:          strings.Repeat("x", domain.MaxTitleLen+1),
			ResolutionTime: testNow.Add(time.Hour),
			AssetClass:     domain.AssetClassNative,
		}, testNow)
		if !errors.Is(err, domain.ErrTitleTooLong) {
			t.Errorf("err = %v, want ErrTitleTooLong", err)
		}
	})

	t.Run("description too long", func(t *testing.T) {
		_, err := CreateMarket(CreateParams{
			Description:    strings.Repeat("x", domain.MaxDescriptionLen+1),
			ResolutionTime: testNow.Add(time.Hour),
			AssetClass:     domain.AssetClassNative,
		}, testNow)
		if !errors.Is(err, domain.ErrDescriptionTooLong) {
			t.Errorf("err = %v, want ErrDescriptionTooLong", err)
		}
	})

	t.Run("category too long", func(t *testing.T) {
		_, err := CreateMarket(CreateParams{
			Category:       strings.Repeat("x", domain.MaxCategoryLen+1),
			ResolutionTime: testNow.Add(time.Hour),
			AssetClass:     domain.AssetClassNative,
		}, testNow)
		if !errors.Is(err, domain.ErrCategoryTooLong) {
			t.Errorf("err = %v, want ErrCategoryTooLong", err)
		}
	})

	t.Run("resolution time not in the future", func(t *testing.T) {
		for _, rt := range []time.Time{testNow, testNow.Add(-time.Second)} {
			_, err := CreateMarket(CreateParams{
				ResolutionTime: rt,
				AssetClass:     domain.AssetClassNative,
			}, testNow)
			if !errors.Is(err, domain.ErrInvalidResolutionTime) {
				t.Errorf("resolution_time=%v: err = %v, want ErrInvalidResolutionTime", rt, err)
			}
		}
	})

	t.Run("unknown asset class", func(t *testing.T) {
		_, err := CreateMarket(CreateParams{
			ResolutionTime: testNow.Add(time.Hour),
			AssetClass:     domain.AssetClass("equity"),
		}, testNow)
		if !errors.Is(err, domain.ErrInvalidAssetClass) {
			t.Errorf("err = %v, want ErrInvalidAssetClass", err)
		}
	})
}

func TestPlaceBet(t *testing.T) {
	t.Run("updates all counters and returns deposit transfer", func(t *testing.T) {
		m := newActiveMarket(t)
		pos := domain.NewPosition(m.MarketID, "alice", testNow)

		tr := mustBet(t, &m, &pos, domain.BetSideYes, 10_000_000)

		if m.TotalYesAmount != 10_000_000 || m.TotalYesShares != 10_000_000 {
			t.Errorf("yes counters = %d/%d, want 10000000", m.TotalYesAmount, m.TotalYesShares)
		}
		if m.TotalVolume != 10_000_000 {
			t.Errorf("volume = %d, want 10000000", m.TotalVolume)
		}
		if pos.YesShares != 10_000_000 || pos.TotalInvested != 10_000_000 {
			t.Errorf("position = %d/%d, want 10000000", pos.YesShares, pos.TotalInvested)
		}
		if tr.From != "alice" || tr.To != m.CustodyAccount() || tr.Amount != 10_000_000 {
			t.Errorf("transfer = %+v, want alice -> %s of 10000000", tr, m.CustodyAccount())
		}
		if tr.Class != domain.AssetClassNative {
			t.Errorf("transfer class = %s, want native", tr.Class)
		}
		checkConservation(t, m)
	})

	t.Run("conservation holds across a sequence of stakes", func(t *testing.T) {
		m := newActiveMarket(t)
		alice := domain.NewPosition(m.MarketID, "alice", testNow)
		bob := domain.NewPosition(m.MarketID, "bob", testNow)

		mustBet(t, &m, &alice, domain.BetSideYes, 10_000_000)
		checkConservation(t, m)
		mustBet(t, &m, &bob, domain.BetSideNo, 5_000_000)
		checkConservation(t, m)
		mustBet(t, &m, &alice, domain.BetSideNo, 2_000_000)
		checkConservation(t, m)
		mustBet(t, &m, &bob, domain.BetSideYes, 7_000_000)
		checkConservation(t, m)

		if m.TotalVolume != 24_000_000 {
			t.Errorf("volume = %d, want 24000000", m.TotalVolume)
		}
		if alice.TotalInvested != 12_000_000 {
			t.Errorf("alice invested = %d, want 12000000", alice.TotalInvested)
		}
	})

	t.Run("rejects stake below minimum before any mutation", func(t *testing.T) {
		m := newActiveMarket(t)
		pos := domain.NewPosition(m.MarketID, "alice", testNow)

		_, err := PlaceBet(&m, &pos, BetRequest{
			Participant: "alice",
			Side:        domain.BetSideYes,
			Amount:      500_000,
			Handles:     domain.NativeHandles{},
		}, testNow)
		if !errors.Is(err, domain.ErrBetTooSmall) {
			t.Fatalf("err = %v, want ErrBetTooSmall", err)
		}
		if m.TotalVolume != 0 || pos.TotalInvested != 0 {
			t.Error("rejected stake must not mutate counters")
		}
	})

	t.Run("rejects zero and oversized stakes", func(t *testing.T) {
		m := newActiveMarket(t)
		pos := domain.NewPosition(m.MarketID, "alice", testNow)

		if _, err := PlaceBet(&m, &pos, BetRequest{Participant: "alice", Side: domain.BetSideYes, Handles: domain.NativeHandles{}}, testNow); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("zero amount: err = %v, want ErrInvalidAmount", err)
		}
		if _, err := PlaceBet(&m, &pos, BetRequest{Participant: "alice", Side: domain.BetSideYes, Amount: domain.MaxBetAmount + 1, Handles: domain.NativeHandles{}}, testNow); !errors.Is(err, domain.ErrBetTooLarge) {
			t.Errorf("oversized: err = %v, want ErrBetTooLarge", err)
		}
	})

	t.Run("accepts stakes exactly at the bounds", func(t *testing.T) {
		m := newActiveMarket(t)
		pos := domain.NewPosition(m.MarketID, "alice", testNow)
		mustBet(t, &m, &pos, domain.BetSideYes, domain.MinBetAmount)
		mustBet(t, &m, &pos, domain.BetSideNo, domain.MaxBetAmount)
		checkConservation(t, m)
	})

	t.Run("rejects stake at or after resolution time", func(t *testing.T) {
		m := newActiveMarket(t)
		pos := domain.NewPosition(m.MarketID, "alice", testNow)

		_, err := PlaceBet(&m, &pos, BetRequest{
			Participant: "alice",
			Side:        domain.BetSideYes,
			Amount:      10_000_000,
			Handles:     domain.NativeHandles{},
		}, m.ResolutionTime)
		if !errors.Is(err, domain.ErrMarketExpired) {
			t.Errorf("err = %v, want ErrMarketExpired", err)
		}
	})

	t.Run("rejects stake on non-active market", func(t *testing.T) {
		m := newActiveMarket(t)
		pos := domain.NewPosition(m.MarketID, "alice", testNow)
		if err := Cancel(&m, "auth-1", testNow); err != nil {
			t.Fatalf("Cancel: %v", err)
		}

		_, err := PlaceBet(&m, &pos, BetRequest{
			Participant: "alice",
			Side:        domain.BetSideYes,
			Amount:      10_000_000,
			Handles:     domain.NativeHandles{},
		}, testNow)
		if !errors.Is(err, domain.ErrMarketNotActive) {
			t.Errorf("err = %v, want ErrMarketNotActive", err)
		}
	})

	t.Run("rejects foreign position", func(t *testing.T) {
		m := newActiveMarket(t)
		pos := domain.NewPosition(m.MarketID, "bob", testNow)

		_, err := PlaceBet(&m, &pos, BetRequest{
			Participant: "alice",
			Side:        domain.BetSideYes,
			Amount:      10_000_000,
			Handles:     domain.NativeHandles{},
		}, testNow)
		if !errors.Is(err, domain.ErrInvalidPosition) {
			t.Errorf("err = %v, want ErrInvalidPosition", err)
		}
	})

	t.Run("overflow aborts the operation", func(t *testing.T) {
		m := newActiveMarket(t)
		m.TotalYesAmount = math.MaxUint64 - 1
		pos := domain.NewPosition(m.MarketID, "alice", testNow)

		_, err := PlaceBet(&m, &pos, BetRequest{
			Participant: "alice",
			Side:        domain.BetSideYes,
			Amount:      10_000_000,
			Handles:     domain.NativeHandles{},
		}, testNow)
		if !errors.Is(err, domain.ErrMathOverflow) {
			t.Errorf("err = %v, want ErrMathOverflow", err)
		}
	})
}

func TestPlaceBetTokenMarket(t *testing.T) {
	handles := domain.TokenHandles{
		Funding: domain.TokenAccountRef{Address: "alice-usdc", AssetID: "usdc"},
		Custody: domain.TokenAccountRef{Address: "vault:43", AssetID: "usdc"},
	}

	t.Run("routes transfer through token accounts", func(t *testing.T) {
		m := newTokenMarket(t)
		pos := domain.NewPosition(m.MarketID, "alice", testNow)

		tr, err := PlaceBet(&m, &pos, BetRequest{
			Participant: "alice",
			Side:        domain.BetSideNo,
			Amount:      2_000_000,
			Handles:     handles,
		}, testNow)
		if err != nil {
			t.Fatalf("PlaceBet: %v", err)
		}
		if tr.Class != domain.AssetClassToken || tr.AssetID != "usdc" {
			t.Errorf("transfer = %+v, want token/usdc", tr)
		}
		if tr.From != "alice-usdc" || tr.To != "vault:43" {
			t.Errorf("transfer route = %s -> %s, want alice-usdc -> vault:43", tr.From, tr.To)
		}
	})

	t.Run("rejects missing token handles", func(t *testing.T) {
		m := newTokenMarket(t)
		pos := domain.NewPosition(m.MarketID, "alice", testNow)

		_, err := PlaceBet(&m, &pos, BetRequest{
			Participant: "alice",
			Side:        domain.BetSideYes,
			Amount:      2_000_000,
			Handles:     domain.NativeHandles{},
		}, testNow)
		if !errors.Is(err, domain.ErrMissingTokenAccount) {
			t.Errorf("err = %v, want ErrMissingTokenAccount", err)
		}
	})

	t.Run("rejects funding account with wrong asset", func(t *testing.T) {
		m := newTokenMarket(t)
		pos := domain.NewPosition(m.MarketID, "alice", testNow)

		bad := handles
		bad.Funding.AssetID = "usdt"
		_, err := PlaceBet(&m, &pos, BetRequest{
			Participant: "alice",
			Side:        domain.BetSideYes,
			Amount:      2_000_000,
			Handles:     bad,
		}, testNow)
		if !errors.Is(err, domain.ErrInvalidTokenAsset) {
			t.Errorf("err = %v, want ErrInvalidTokenAsset", err)
		}
	})

	t.Run("rejects custody account with wrong asset", func(t *testing.T) {
		m := newTokenMarket(t)
		pos := domain.NewPosition(m.MarketID, "alice", testNow)

		bad := handles
		bad.Custody.AssetID = "usdt"
		_, err := PlaceBet(&m, &pos, BetRequest{
			Participant: "alice",
			Side:        domain.BetSideYes,
			Amount:      2_000_000,
			Handles:     bad,
		}, testNow)
		if !errors.Is(err, domain.ErrInvalidTokenAsset) {
			t.Errorf("err = %v, want ErrInvalidTokenAsset", err)
		}
	})

	t.Run("rejects custody account that is not the market vault", func(t *testing.T) {
		m := newTokenMarket(t)
		pos := domain.NewPosition(m.MarketID, "alice", testNow)

		bad := handles
		bad.Custody.Address = "attacker-sink"
		_, err := PlaceBet(&m, &pos, BetRequest{
			Participant: "alice",
			Side:        domain.BetSideYes,
			Amount:      2_000_000,
			Handles:     bad,
		}, testNow)
		if !errors.Is(err, domain.ErrInvalidCustodyAccount) {
			t.Errorf("err = %v, want ErrInvalidCustodyAccount", err)
		}
		if pos.YesShares != 0 || m.TotalYesAmount != 0 {
			t.Errorf("counters mutated on rejected bet: pos=%+v market yes=%d", pos, m.TotalYesAmount)
		}
	})

	t.Run("rejects token handles on a native market", func(t *testing.T) {
		m := newActiveMarket(t)
		pos := domain.NewPosition(m.MarketID, "alice", testNow)

		_, err := PlaceBet(&m, &pos, BetRequest{
			Participant: "alice",
			Side:        domain.BetSideYes,
			Amount:      2_000_000,
			Handles:     handles,
		}, testNow)
		if !errors.Is(err, domain.ErrAssetClassMismatch) {
			t.Errorf("err = %v, want ErrAssetClassMismatch", err)
		}
	})
}

func TestResolve(t *testing.T) {
	t.Run("records outcome after expiry", func(t *testing.T) {
		m := newActiveMarket(t)
		after := m.ResolutionTime.Add(time.Second)

		if err := Resolve(&m, "auth-1", true, after); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if m.State != domain.MarketStateResolved {
			t.Errorf("state = %s, want resolved", m.State)
		}
		if m.ResolvedOutcome == nil || *m.ResolvedOutcome != true {
			t.Error("outcome not recorded")
		}
	})

	t.Run("permitted exactly at resolution time", func(t *testing.T) {
		m := newActiveMarket(t)
		if err := Resolve(&m, "auth-1", false, m.ResolutionTime); err != nil {
			t.Fatalf("Resolve at deadline: %v", err)
		}
	})

	t.Run("rejected before expiry", func(t *testing.T) {
		m := newActiveMarket(t)
		if err := Resolve(&m, "auth-1", true, testNow); !errors.Is(err, domain.ErrMarketNotExpired) {
			t.Errorf("err = %v, want ErrMarketNotExpired", err)
		}
	})

	t.Run("rejected for non-authority", func(t *testing.T) {
		m := newActiveMarket(t)
		after := m.ResolutionTime.Add(time.Second)
		if err := Resolve(&m, "mallory", true, after); !errors.Is(err, domain.ErrUnauthorizedResolver) {
			t.Errorf("err = %v, want ErrUnauthorizedResolver", err)
		}
	})

	t.Run("authority check precedes expiry check", func(t *testing.T) {
		m := newActiveMarket(t)
		if err := Resolve(&m, "mallory", true, testNow); !errors.Is(err, domain.ErrUnauthorizedResolver) {
			t.Errorf("err = %v, want ErrUnauthorizedResolver before expiry", err)
		}
	})

	t.Run("irreversible", func(t *testing.T) {
		m := newActiveMarket(t)
		after := m.ResolutionTime.Add(time.Second)
		if err := Resolve(&m, "auth-1", true, after); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if err := Resolve(&m, "auth-1", false, after); !errors.Is(err, domain.ErrMarketNotActive) {
			t.Errorf("second resolve: err = %v, want ErrMarketNotActive", err)
		}
		if err := Cancel(&m, "auth-1", after); !errors.Is(err, domain.ErrMarketNotActive) {
			t.Errorf("cancel after resolve: err = %v, want ErrMarketNotActive", err)
		}
	})
}

func TestCancel(t *testing.T) {
	t.Run("permitted before expiry", func(t *testing.T) {
		m := newActiveMarket(t)
		if err := Cancel(&m, "auth-1", testNow); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		if m.State != domain.MarketStateCancelled {
			t.Errorf("state = %s, want cancelled", m.State)
		}
		if m.ResolvedOutcome != nil {
			t.Error("cancelled market must not carry an outcome")
		}
	})

	t.Run("permitted after expiry", func(t *testing.T) {
		m := newActiveMarket(t)
		if err := Cancel(&m, "auth-1", m.ResolutionTime.Add(time.Hour)); err != nil {
			t.Fatalf("Cancel after deadline: %v", err)
		}
	})

	t.Run("rejected for non-authority", func(t *testing.T) {
		m := newActiveMarket(t)
		if err := Cancel(&m, "mallory", testNow); !errors.Is(err, domain.ErrUnauthorizedResolver) {
			t.Errorf("err = %v, want ErrUnauthorizedResolver", err)
		}
	})

	t.Run("irreversible", func(t *testing.T) {
		m := newActiveMarket(t)
		if err := Cancel(&m, "auth-1", testNow); err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		if err := Cancel(&m, "auth-1", testNow); !errors.Is(err, domain.ErrMarketNotActive) {
			t.Errorf("second cancel: err = %v, want ErrMarketNotActive", err)
		}
		if err := Resolve(&m, "auth-1", true, m.ResolutionTime.Add(time.Second)); !errors.Is(err, domain.ErrMarketNotActive) {
			t.Errorf("resolve after cancel: err = %v, want ErrMarketNotActive", err)
		}
	})
}
