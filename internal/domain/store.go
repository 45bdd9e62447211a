package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// MarketStore persists market records. Create fails with ErrAlreadyExists if
// a record already exists for the market id; Get returns ErrNotFound when the
// record is absent.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	Get(ctx context.Context, marketID uint64) (Market, error)
	Update(ctx context.Context, m Market) error
	ListActive(ctx context.Context, opts ListOpts) ([]Market, error)
	ListSettledBefore(ctx context.Context, before time.Time) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// PositionStore persists participant positions, keyed by (market, participant).
type PositionStore interface {
	Create(ctx context.Context, p Position) error
	Get(ctx context.Context, marketID uint64, participant string) (Position, error)
	Update(ctx context.Context, p Position) error
	ListByMarket(ctx context.Context, marketID uint64) ([]Position, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        string
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of settlement operations.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
