package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/cryptobet/internal/domain"
	"github.com/alanyoungcy/cryptobet/internal/engine"
)

// BetHandler serves the bet placement endpoint.
type BetHandler struct {
	settlement SettlementService
	logger     *slog.Logger
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(settlement SettlementService, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		settlement: settlement,
		logger:     logger,
	}
}

type placeBetRequest struct {
	Participant string         `json:"participant"`
	Side        string         `json:"side"`
	Amount      uint64         `json:"amount"`
	Token       *tokenAccounts `json:"token,omitempty"`
}

type placeBetResponse struct {
	Market   domain.Market   `json:"market"`
	Position domain.Position `json:"position"`
}

// PlaceBet stakes an amount on one side of an active market.
// POST /api/markets/{id}/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req placeBetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Participant == "" {
		writeError(w, http.StatusBadRequest, "missing participant")
		return
	}

	side, err := domain.ParseBetSide(req.Side)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	market, pos, err := h.settlement.PlaceBet(r.Context(), id, engine.BetRequest{
		Participant: req.Participant,
		Side:        side,
		Amount:      req.Amount,
		Handles:     req.Token.handles(),
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: place bet failed",
			slog.Uint64("market_id", id),
			slog.String("participant", req.Participant),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, placeBetResponse{
		Market:   market,
		Position: pos,
	})
}
