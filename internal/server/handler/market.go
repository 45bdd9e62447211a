package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/cryptobet/internal/domain"
	"github.com/alanyoungcy/cryptobet/internal/engine"
)

// SettlementService defines the mutation operations the handlers require
// from the service layer. It is declared locally so the handler package does
// not depend on the concrete service implementation.
type SettlementService interface {
	CreateMarket(ctx context.Context, params engine.CreateParams) (domain.Market, error)
	PlaceBet(ctx context.Context, marketID uint64, req engine.BetRequest) (domain.Market, domain.Position, error)
	ResolveMarket(ctx context.Context, marketID uint64, authority string, outcome bool) (domain.Market, error)
	CancelMarket(ctx context.Context, marketID uint64, authority string) (domain.Market, error)
	ClaimWinnings(ctx context.Context, marketID uint64, participant string, handles domain.AssetHandles) (uint64, error)
	ClaimRefund(ctx context.Context, marketID uint64, participant string, handles domain.AssetHandles) (uint64, error)
}

// MarketReadService defines the read operations the handlers require.
type MarketReadService interface {
	GetMarket(ctx context.Context, marketID uint64) (domain.Market, error)
	ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	Count(ctx context.Context) (int64, error)
	GetPosition(ctx context.Context, marketID uint64, participant string) (domain.Position, error)
}

// MarketHandler serves market lifecycle and read endpoints.
type MarketHandler struct {
	settlement SettlementService
	reads      MarketReadService
	logger     *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(settlement SettlementService, reads MarketReadService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		settlement: settlement,
		reads:      reads,
		logger:     logger,
	}
}

// tokenAccounts carries the token account references a caller supplies when
// operating on a token market. Absent for native markets.
type tokenAccounts struct {
	FundingAccount string `json:"funding_account"`
	CustodyAccount string `json:"custody_account"`
	AssetID        string `json:"asset_id"`
}

// handles converts the optional token block into domain asset handles.
func (t *tokenAccounts) handles() domain.AssetHandles {
	if t == nil {
		return domain.NativeHandles{}
	}
	return domain.TokenHandles{
		Funding: domain.TokenAccountRef{Address: t.FundingAccount, AssetID: t.AssetID},
		Custody: domain.TokenAccountRef{Address: t.CustodyAccount, AssetID: t.AssetID},
	}
}

type createMarketRequest struct {
	MarketID       uint64    `json:"market_id"`
	Authority      string    `json:"authority"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Category       string    `json:"category"`
	ResolutionTime time.Time `json:"resolution_time"`
	AssetClass     string    `json:"asset_class"`
	TokenAssetID   string    `json:"token_asset_id"`
}

// CreateMarket creates a new binary market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Authority == "" {
		writeError(w, http.StatusBadRequest, "missing authority")
		return
	}

	class, err := domain.ParseAssetClass(req.AssetClass)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	market, err := h.settlement.CreateMarket(r.Context(), engine.CreateParams{
		Authority:      req.Authority,
		MarketID:       req.MarketID,
		Title:          req.Title,
		Description:    req.Description,
		Category:       req.Category,
		ResolutionTime: req.ResolutionTime,
		AssetClass:     class,
		TokenAssetID:   req.TokenAssetID,
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: create market failed",
			slog.Uint64("market_id", req.MarketID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, market)
}

type resolveMarketRequest struct {
	Authority string `json:"authority"`
	Outcome   *bool  `json:"outcome"`
}

// ResolveMarket records the outcome of an expired market.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req resolveMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Authority == "" || req.Outcome == nil {
		writeError(w, http.StatusBadRequest, "missing authority or outcome")
		return
	}

	market, err := h.settlement.ResolveMarket(r.Context(), id, req.Authority, *req.Outcome)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: resolve market failed",
			slog.Uint64("market_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, market)
}

type cancelMarketRequest struct {
	Authority string `json:"authority"`
}

// CancelMarket voids an active market.
// POST /api/markets/{id}/cancel
func (h *MarketHandler) CancelMarket(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req cancelMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Authority == "" {
		writeError(w, http.StatusBadRequest, "missing authority")
		return
	}

	market, err := h.settlement.CancelMarket(r.Context(), id, req.Authority)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: cancel market failed",
			slog.Uint64("market_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, market)
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns active markets with pagination.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.reads.ListActive(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	total, err := h.reads.Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count markets")
		return
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its id.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	market, err := h.reads.GetMarket(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, market)
}
