package memory

import (
	"context"
	"math/bits"
	"sync"

	"github.com/alanyoungcy/cryptobet/internal/domain"
)

// Ledger implements domain.Ledger in memory for one asset class. Transfers
// are all-or-nothing: a debit that would underflow fails before any balance
// is touched.
type Ledger struct {
	class    domain.AssetClass
	mu       sync.Mutex
	balances map[string]uint64 // key: account + "/" + assetID
}

// NewLedger creates an empty in-memory ledger for the given asset class.
func NewLedger(class domain.AssetClass) *Ledger {
	return &Ledger{
		class:    class,
		balances: make(map[string]uint64),
	}
}

func balanceKey(account, assetID string) string {
	return account + "/" + assetID
}

// Credit mints balance into an account, used to fund demo and test accounts.
func (l *Ledger) Credit(account, assetID string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[balanceKey(account, assetID)] += amount
}

// Transfer atomically moves amount from one account to another.
func (l *Ledger) Transfer(_ context.Context, req domain.TransferRequest) error {
	if req.Class != l.class {
		return domain.ErrAssetClassMismatch
	}
	if req.Amount == 0 {
		return domain.ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fromKey := balanceKey(req.From, req.AssetID)
	toKey := balanceKey(req.To, req.AssetID)

	if l.balances[fromKey] < req.Amount {
		return domain.ErrInsufficientFunds
	}
	next, carry := bits.Add64(l.balances[toKey], req.Amount, 0)
	if carry != 0 {
		return domain.ErrMathOverflow
	}

	l.balances[fromKey] -= req.Amount
	l.balances[toKey] = next
	return nil
}

// Balance reports an account's balance for the given asset.
func (l *Ledger) Balance(_ context.Context, account, assetID string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[balanceKey(account, assetID)], nil
}

var _ domain.Ledger = (*Ledger)(nil)
