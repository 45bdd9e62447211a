package handler

import (
	"log/slog"
	"net/http"
)

// PositionHandler serves position read endpoints.
type PositionHandler struct {
	reads  MarketReadService
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(reads MarketReadService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		reads:  reads,
		logger: logger,
	}
}

// GetPosition returns one participant's position in a market.
// GET /api/markets/{id}/positions/{participant}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	participant := r.PathValue("participant")
	if participant == "" {
		writeError(w, http.StatusBadRequest, "missing participant")
		return
	}

	pos, err := h.reads.GetPosition(r.Context(), id, participant)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pos)
}
