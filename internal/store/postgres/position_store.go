package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/cryptobet/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

var _ domain.PositionStore = (*PositionStore)(nil)

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionCols = `market_id, participant, yes_shares, no_shares,
	total_invested, created_at, updated_at`

// Create inserts a new position row. A duplicate (market, participant) pair
// fails with domain.ErrAlreadyExists.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (` + positionCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		int64(p.MarketID), p.Participant,
		int64(p.YesShares), int64(p.NoShares), int64(p.TotalInvested),
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create position %d/%s: %w", p.MarketID, p.Participant, err)
	}
	return nil
}

// Get retrieves the position of one participant in one market.
func (s *PositionStore) Get(ctx context.Context, marketID uint64, participant string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions WHERE market_id = $1 AND participant = $2`,
		int64(marketID), participant)
	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %d/%s: %w", marketID, participant, err)
	}
	return p, nil
}

// Update overwrites an existing position row.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			yes_shares     = $3,
			no_shares      = $4,
			total_invested = $5,
			updated_at     = $6
		WHERE market_id = $1 AND participant = $2`

	tag, err := s.pool.Exec(ctx, query,
		int64(p.MarketID), p.Participant,
		int64(p.YesShares), int64(p.NoShares), int64(p.TotalInvested),
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %d/%s: %w", p.MarketID, p.Participant, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByMarket returns all positions for a market ordered by participant.
func (s *PositionStore) ListByMarket(ctx context.Context, marketID uint64) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionCols+` FROM positions WHERE market_id = $1 ORDER BY participant`,
		int64(marketID))
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for market %d: %w", marketID, err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions rows: %w", err)
	}
	return positions, nil
}

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p        domain.Position
		marketID int64
		yes      int64
		no       int64
		invested int64
	)
	err := row.Scan(
		&marketID, &p.Participant, &yes, &no,
		&invested, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.MarketID = uint64(marketID)
	p.YesShares = uint64(yes)
	p.NoShares = uint64(no)
	p.TotalInvested = uint64(invested)
	return p, nil
}
