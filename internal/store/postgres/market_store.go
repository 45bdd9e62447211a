package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/cryptobet/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

var _ domain.MarketStore = (*MarketStore)(nil)

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `market_id, authority, title, description, category,
	resolution_time, asset_class, accepted_asset_id, state,
	total_yes_amount, total_no_amount, total_yes_shares, total_no_shares,
	total_volume, resolved_outcome, created_at, updated_at`

// Create inserts a new market row. A duplicate market id fails with
// domain.ErrAlreadyExists.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (` + marketCols + `) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16, $17
		)`

	_, err := s.pool.Exec(ctx, query,
		int64(m.MarketID), m.Authority, m.Title, m.Description, m.Category,
		m.ResolutionTime, string(m.AssetClass), m.AcceptedAssetID, string(m.State),
		int64(m.TotalYesAmount), int64(m.TotalNoAmount),
		int64(m.TotalYesShares), int64(m.TotalNoShares),
		int64(m.TotalVolume), m.ResolvedOutcome, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create market %d: %w", m.MarketID, err)
	}
	return nil
}

// Get retrieves a market by its id.
func (s *MarketStore) Get(ctx context.Context, marketID uint64) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE market_id = $1`, int64(marketID))
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %d: %w", marketID, err)
	}
	return m, nil
}

// Update overwrites an existing market row.
func (s *MarketStore) Update(ctx context.Context, m domain.Market) error {
	const query = `
		UPDATE markets SET
			authority         = $2,
			title             = $3,
			description       = $4,
			category          = $5,
			resolution_time   = $6,
			asset_class       = $7,
			accepted_asset_id = $8,
			state             = $9,
			total_yes_amount  = $10,
			total_no_amount   = $11,
			total_yes_shares  = $12,
			total_no_shares   = $13,
			total_volume      = $14,
			resolved_outcome  = $15,
			updated_at        = $16
		WHERE market_id = $1`

	tag, err := s.pool.Exec(ctx, query,
		int64(m.MarketID), m.Authority, m.Title, m.Description, m.Category,
		m.ResolutionTime, string(m.AssetClass), m.AcceptedAssetID, string(m.State),
		int64(m.TotalYesAmount), int64(m.TotalNoAmount),
		int64(m.TotalYesShares), int64(m.TotalNoShares),
		int64(m.TotalVolume), m.ResolvedOutcome, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %d: %w", m.MarketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListActive returns markets still accepting bets, newest first.
func (s *MarketStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE state = 'active' ORDER BY created_at DESC`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	defer rows.Close()

	markets, err := scanMarkets(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	return markets, nil
}

// ListSettledBefore returns resolved and cancelled markets last touched
// before the given time, oldest first. Used by the archiver.
func (s *MarketStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM markets
		 WHERE state IN ('resolved', 'cancelled') AND updated_at < $1
		 ORDER BY updated_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled markets: %w", err)
	}
	defer rows.Close()

	markets, err := scanMarkets(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled markets: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets in the database.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m          domain.Market
		marketID   int64
		assetClass string
		state      string
		yesAmt     int64
		noAmt      int64
		yesShares  int64
		noShares   int64
		volume     int64
	)
	err := row.Scan(
		&marketID, &m.Authority, &m.Title, &m.Description, &m.Category,
		&m.ResolutionTime, &assetClass, &m.AcceptedAssetID, &state,
		&yesAmt, &noAmt, &yesShares, &noShares,
		&volume, &m.ResolvedOutcome, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.MarketID = uint64(marketID)
	m.AssetClass = domain.AssetClass(assetClass)
	m.State = domain.MarketState(state)
	m.TotalYesAmount = uint64(yesAmt)
	m.TotalNoAmount = uint64(noAmt)
	m.TotalYesShares = uint64(yesShares)
	m.TotalNoShares = uint64(noShares)
	m.TotalVolume = uint64(volume)
	return m, nil
}

func scanMarkets(rows pgx.Rows) ([]domain.Market, error) {
	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return markets, nil
}
