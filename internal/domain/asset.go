package domain

// AssetClass selects which transfer mechanism a market settles in. Both
// classes share one accounting core; only the ledger variant differs.
type AssetClass string

const (
	// AssetClassNative is the directly transferable value unit.
	AssetClassNative AssetClass = "native"
	// AssetClassToken is an externally minted, ledger-tracked fungible token.
	AssetClassToken AssetClass = "token"
)

// AssetIDNative is the accepted-asset identifier recorded on native markets.
const AssetIDNative = "native"

// ParseAssetClass converts a wire string into an AssetClass.
func ParseAssetClass(s string) (AssetClass, error) {
	switch AssetClass(s) {
	case AssetClassNative, AssetClassToken:
		return AssetClass(s), nil
	default:
		return "", ErrInvalidAssetClass
	}
}

// TokenAccountRef names a token account together with the asset it holds.
type TokenAccountRef struct {
	Address string
	AssetID string
}

// AssetHandles carries the per-class account references an operation needs.
// It is an explicit sum type, resolved once at the top of each operation,
// instead of nullable fields checked at every use site.
type AssetHandles interface {
	Class() AssetClass
}

// NativeHandles is the native-unit variant. The participant's own account is
// the funding source, so no extra references are required.
type NativeHandles struct{}

// Class implements AssetHandles.
func (NativeHandles) Class() AssetClass { return AssetClassNative }

// TokenHandles is the fungible-token variant: the participant's funding
// token account and the market's custody vault.
type TokenHandles struct {
	Funding TokenAccountRef
	Custody TokenAccountRef
}

// Class implements AssetHandles.
func (TokenHandles) Class() AssetClass { return AssetClassToken }
