package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/cryptobet/internal/domain"
)

// Narrow store interfaces required by the archiver. The Postgres stores
// satisfy these implicitly; the archiver never needs write access.

// MarketArchiveStore provides read access to settled markets.
type MarketArchiveStore interface {
	// ListSettledBefore returns resolved and cancelled markets last updated
	// strictly before the given cutoff time.
	ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Market, error)
}

// PositionArchiveStore provides read access to the positions of one market.
type PositionArchiveStore interface {
	ListByMarket(ctx context.Context, marketID uint64) ([]domain.Position, error)
}

// Archiver exports settled markets and their positions to JSONL files in
// blob storage. Deletion of archived records from the primary store is
// intentionally NOT performed here; that is a separate, explicit step to be
// executed after the archive has been verified.
type Archiver struct {
	writer    domain.BlobWriter
	markets   MarketArchiveStore
	positions PositionArchiveStore
	audit     domain.AuditStore
}

// NewArchiver creates an Archiver. audit may be nil.
func NewArchiver(
	writer domain.BlobWriter,
	markets MarketArchiveStore,
	positions PositionArchiveStore,
	audit domain.AuditStore,
) *Archiver {
	return &Archiver{
		writer:    writer,
		markets:   markets,
		positions: positions,
		audit:     audit,
	}
}

// ArchiveSettled queries markets settled before the cutoff, serializes them
// and their positions to JSONL, and uploads the files at
// archive/markets/YYYY-MM.jsonl and archive/positions/YYYY-MM.jsonl. It
// returns the number of markets archived.
func (a *Archiver) ArchiveSettled(ctx context.Context, before time.Time) (int64, error) {
	markets, err := a.markets.ListSettledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settled query: %w", err)
	}
	if len(markets) == 0 {
		return 0, nil
	}

	var positions []domain.Position
	for _, m := range markets {
		ps, err := a.positions.ListByMarket(ctx, m.MarketID)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive positions for market %d: %w", m.MarketID, err)
		}
		positions = append(positions, ps...)
	}

	marketsBuf, err := marshalJSONL(markets)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settled marshal markets: %w", err)
	}
	positionsBuf, err := marshalJSONL(positions)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settled marshal positions: %w", err)
	}

	marketsPath := archivePath("markets", before)
	if err := a.writer.Put(ctx, marketsPath, bytes.NewReader(marketsBuf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive settled upload markets: %w", err)
	}
	positionsPath := archivePath("positions", before)
	if err := a.writer.Put(ctx, positionsPath, bytes.NewReader(positionsBuf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive settled upload positions: %w", err)
	}

	count := int64(len(markets))

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.settled", map[string]any{
			"markets_path":   marketsPath,
			"positions_path": positionsPath,
			"markets":        count,
			"positions":      len(positions),
			"before":         before.Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive settled audit log: %w", err)
		}
	}

	return count, nil
}

// archivePath builds the blob key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/markets/2026-08.jsonl
//	archive/positions/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
