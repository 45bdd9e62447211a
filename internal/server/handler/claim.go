package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/cryptobet/internal/domain"
)

// ClaimHandler serves the payout endpoints.
type ClaimHandler struct {
	settlement SettlementService
	logger     *slog.Logger
}

// NewClaimHandler creates a ClaimHandler.
func NewClaimHandler(settlement SettlementService, logger *slog.Logger) *ClaimHandler {
	return &ClaimHandler{
		settlement: settlement,
		logger:     logger,
	}
}

type claimRequest struct {
	Participant string         `json:"participant"`
	Token       *tokenAccounts `json:"token,omitempty"`
}

type claimResponse struct {
	MarketID    uint64 `json:"market_id"`
	Participant string `json:"participant"`
	Amount      uint64 `json:"amount"`
}

// claimOp is either ClaimWinnings or ClaimRefund on the settlement service.
type claimOp = func(ctx context.Context, marketID uint64, participant string, handles domain.AssetHandles) (uint64, error)

// ClaimWinnings pays out a participant's share of a resolved market's pool.
// POST /api/markets/{id}/claims/winnings
func (h *ClaimHandler) ClaimWinnings(w http.ResponseWriter, r *http.Request) {
	h.claim(w, r, h.settlement.ClaimWinnings, "claim winnings")
}

// ClaimRefund returns a participant's full stake from a cancelled market.
// POST /api/markets/{id}/claims/refund
func (h *ClaimHandler) ClaimRefund(w http.ResponseWriter, r *http.Request) {
	h.claim(w, r, h.settlement.ClaimRefund, "claim refund")
}

// claim runs one of the two payout operations with shared request parsing.
func (h *ClaimHandler) claim(w http.ResponseWriter, r *http.Request, op claimOp, name string) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req claimRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Participant == "" {
		writeError(w, http.StatusBadRequest, "missing participant")
		return
	}

	amount, err := op(r.Context(), id, req.Participant, req.Token.handles())
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: "+name+" failed",
			slog.Uint64("market_id", id),
			slog.String("participant", req.Participant),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, claimResponse{
		MarketID:    id,
		Participant: req.Participant,
		Amount:      amount,
	})
}
