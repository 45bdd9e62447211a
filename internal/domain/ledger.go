package domain

import "context"

// TransferRequest describes a single value movement between two ledger
// accounts. Amount is in base units of the named asset.
type TransferRequest struct {
	Class   AssetClass
	AssetID string
	From    string
	To      string
	Amount  uint64
}

// Ledger moves value between accounts for one asset class. Implementations
// must guarantee the amount is fully moved or the call fails with no partial
// effect; a failed transfer leaves both balances untouched.
type Ledger interface {
	Transfer(ctx context.Context, req TransferRequest) error
	Balance(ctx context.Context, account, assetID string) (uint64, error)
}
