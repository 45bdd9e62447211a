package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/cryptobet/internal/domain"
)

// Ledger implements domain.Ledger for one asset class on top of a shared
// ledger_balances table. Transfers debit and credit inside a single
// transaction, so a failed credit never leaves the debit behind.
type Ledger struct {
	pool  *pgxpool.Pool
	class domain.AssetClass
}

var _ domain.Ledger = (*Ledger)(nil)

// NewLedger creates a ledger view over the given asset class.
func NewLedger(pool *pgxpool.Pool, class domain.AssetClass) *Ledger {
	return &Ledger{pool: pool, class: class}
}

// Transfer atomically moves amount between two accounts. The debit is
// conditional on sufficient balance; an underfunded source account fails
// with domain.ErrInsufficientFunds and no row is changed.
func (l *Ledger) Transfer(ctx context.Context, req domain.TransferRequest) error {
	if req.Class != l.class {
		return domain.ErrAssetClassMismatch
	}
	if req.Amount == 0 {
		return domain.ErrInvalidAmount
	}

	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("postgres: begin transfer: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const debit = `
		UPDATE ledger_balances
		SET balance = balance - $4, updated_at = NOW()
		WHERE asset_class = $1 AND account = $2 AND asset_id = $3 AND balance >= $4`
	tag, err := tx.Exec(ctx, debit,
		string(l.class), req.From, req.AssetID, int64(req.Amount))
	if err != nil {
		return fmt.Errorf("postgres: debit %s: %w", req.From, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}

	const credit = `
		INSERT INTO ledger_balances (asset_class, account, asset_id, balance)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (asset_class, account, asset_id)
		DO UPDATE SET balance = ledger_balances.balance + EXCLUDED.balance, updated_at = NOW()`
	if _, err := tx.Exec(ctx, credit,
		string(l.class), req.To, req.AssetID, int64(req.Amount)); err != nil {
		return fmt.Errorf("postgres: credit %s: %w", req.To, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit transfer: %w", err)
	}
	return nil
}

// Balance returns the current balance of an account, zero if the account
// has never been credited.
func (l *Ledger) Balance(ctx context.Context, account, assetID string) (uint64, error) {
	var balance int64
	err := l.pool.QueryRow(ctx,
		`SELECT balance FROM ledger_balances
		 WHERE asset_class = $1 AND account = $2 AND asset_id = $3`,
		string(l.class), account, assetID,
	).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: balance %s: %w", account, err)
	}
	return uint64(balance), nil
}

// Credit mints balance into an account. Used to fund demo accounts and by
// deposit tooling; settlement itself only moves existing balance.
func (l *Ledger) Credit(ctx context.Context, account, assetID string, amount uint64) error {
	const query = `
		INSERT INTO ledger_balances (asset_class, account, asset_id, balance)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (asset_class, account, asset_id)
		DO UPDATE SET balance = ledger_balances.balance + EXCLUDED.balance, updated_at = NOW()`
	if _, err := l.pool.Exec(ctx, query,
		string(l.class), account, assetID, int64(amount)); err != nil {
		return fmt.Errorf("postgres: credit %s: %w", account, err)
	}
	return nil
}
