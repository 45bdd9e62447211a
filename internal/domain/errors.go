package domain

import "errors"

// Validation failures. Always caller-correctable; the engine never retries.
var (
	ErrTitleTooLong          = errors.New("title too long")
	ErrDescriptionTooLong    = errors.New("description too long")
	ErrCategoryTooLong       = errors.New("category too long")
	ErrInvalidResolutionTime = errors.New("resolution time must be in the future")
	ErrInvalidAmount         = errors.New("invalid bet amount")
	ErrBetTooSmall           = errors.New("bet amount below minimum")
	ErrBetTooLarge           = errors.New("bet amount above maximum")
	ErrInvalidBetSide        = errors.New("invalid bet side")
	ErrInvalidAssetClass     = errors.New("invalid asset class")
	ErrAssetClassMismatch    = errors.New("asset handles do not match market asset class")
	ErrMissingTokenAccount   = errors.New("missing token account")
	ErrInvalidTokenAsset     = errors.New("token account asset does not match market")
	ErrInvalidCustodyAccount = errors.New("custody account is not the market vault")
)

// State-machine failures. The caller must reread state before retrying.
var (
	ErrMarketNotActive      = errors.New("market is not active")
	ErrMarketExpired        = errors.New("market has expired")
	ErrMarketNotExpired     = errors.New("market has not expired yet")
	ErrMarketNotResolved    = errors.New("market is not resolved")
	ErrMarketNotCancelled   = errors.New("market is not cancelled")
	ErrUnauthorizedResolver = errors.New("unauthorized resolver")
	ErrInvalidPosition      = errors.New("position does not belong to caller")
)

// Arithmetic failures. A counter has reached an unsafe magnitude or there is
// a logic defect; never saturated or truncated.
var (
	ErrMathOverflow   = errors.New("math overflow")
	ErrDivisionByZero = errors.New("division by zero")
)

// Settlement failures. Terminal for that claim attempt.
var (
	ErrNoWinningShares     = errors.New("no winning shares")
	ErrNoWinningsAvailable = errors.New("no winnings available")
	ErrNoRefundAvailable   = errors.New("no refund available")
	ErrInsufficientFunds   = errors.New("insufficient custody funds")
	ErrTransferFailed      = errors.New("transfer failed")
)

// Storage and infrastructure failures.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")
)
