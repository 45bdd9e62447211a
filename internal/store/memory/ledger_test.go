package memory

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/alanyoungcy/cryptobet/internal/domain"
)

func TestLedgerTransfer(t *testing.T) {
	ctx := context.Background()

	t.Run("moves amount between accounts", func(t *testing.T) {
		l := NewLedger(domain.AssetClassNative)
		l.Credit("alice", domain.AssetIDNative, 10_000_000)

		err := l.Transfer(ctx, domain.TransferRequest{
			Class:   domain.AssetClassNative,
			AssetID: domain.AssetIDNative,
			From:    "alice",
			To:      "market:1",
			Amount:  4_000_000,
		})
		if err != nil {
			t.Fatalf("Transfer: %v", err)
		}

		if got, _ := l.Balance(ctx, "alice", domain.AssetIDNative); got != 6_000_000 {
			t.Errorf("alice balance = %d, want 6000000", got)
		}
		if got, _ := l.Balance(ctx, "market:1", domain.AssetIDNative); got != 4_000_000 {
			t.Errorf("market:1 balance = %d, want 4000000", got)
		}
	})

	t.Run("insufficient funds leaves balances untouched", func(t *testing.T) {
		l := NewLedger(domain.AssetClassNative)
		l.Credit("alice", domain.AssetIDNative, 100)

		err := l.Transfer(ctx, domain.TransferRequest{
			Class:   domain.AssetClassNative,
			AssetID: domain.AssetIDNative,
			From:    "alice",
			To:      "bob",
			Amount:  101,
		})
		if !errors.Is(err, domain.ErrInsufficientFunds) {
			t.Fatalf("err = %v, want ErrInsufficientFunds", err)
		}

		if got, _ := l.Balance(ctx, "alice", domain.AssetIDNative); got != 100 {
			t.Errorf("alice balance = %d, want 100", got)
		}
		if got, _ := l.Balance(ctx, "bob", domain.AssetIDNative); got != 0 {
			t.Errorf("bob balance = %d, want 0", got)
		}
	})

	t.Run("rejects zero amount", func(t *testing.T) {
		l := NewLedger(domain.AssetClassNative)
		err := l.Transfer(ctx, domain.TransferRequest{
			Class:   domain.AssetClassNative,
			AssetID: domain.AssetIDNative,
			From:    "alice",
			To:      "bob",
		})
		if !errors.Is(err, domain.ErrInvalidAmount) {
			t.Fatalf("err = %v, want ErrInvalidAmount", err)
		}
	})

	t.Run("rejects wrong asset class", func(t *testing.T) {
		l := NewLedger(domain.AssetClassToken)
		err := l.Transfer(ctx, domain.TransferRequest{
			Class:   domain.AssetClassNative,
			AssetID: domain.AssetIDNative,
			From:    "alice",
			To:      "bob",
			Amount:  1,
		})
		if !errors.Is(err, domain.ErrAssetClassMismatch) {
			t.Fatalf("err = %v, want ErrAssetClassMismatch", err)
		}
	})

	t.Run("destination overflow fails whole transfer", func(t *testing.T) {
		l := NewLedger(domain.AssetClassNative)
		l.Credit("alice", domain.AssetIDNative, 10)
		l.Credit("bob", domain.AssetIDNative, math.MaxUint64)

		err := l.Transfer(ctx, domain.TransferRequest{
			Class:   domain.AssetClassNative,
			AssetID: domain.AssetIDNative,
			From:    "alice",
			To:      "bob",
			Amount:  1,
		})
		if !errors.Is(err, domain.ErrMathOverflow) {
			t.Fatalf("err = %v, want ErrMathOverflow", err)
		}
		if got, _ := l.Balance(ctx, "alice", domain.AssetIDNative); got != 10 {
			t.Errorf("alice balance mutated on failed transfer: %d", got)
		}
	})
}

func TestLedgerAssetIsolation(t *testing.T) {
	ctx := context.Background()

	l := NewLedger(domain.AssetClassToken)
	l.Credit("carol", "usdc", 500)
	l.Credit("carol", "usdt", 700)

	err := l.Transfer(ctx, domain.TransferRequest{
		Class:   domain.AssetClassToken,
		AssetID: "usdc",
		From:    "carol",
		To:      "vault:7",
		Amount:  500,
	})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	if got, _ := l.Balance(ctx, "carol", "usdc"); got != 0 {
		t.Errorf("carol usdc = %d, want 0", got)
	}
	if got, _ := l.Balance(ctx, "carol", "usdt"); got != 700 {
		t.Errorf("carol usdt = %d, want 700", got)
	}
	if got, _ := l.Balance(ctx, "vault:7", "usdc"); got != 500 {
		t.Errorf("vault:7 usdc = %d, want 500", got)
	}
}
