package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/cryptobet/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a settlement error to an HTTP status and writes it.
// Unknown errors become a generic 500 so internal detail never leaks.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnauthorizedResolver),
		errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrTitleTooLong),
		errors.Is(err, domain.ErrDescriptionTooLong),
		errors.Is(err, domain.ErrCategoryTooLong),
		errors.Is(err, domain.ErrInvalidResolutionTime),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrBetTooSmall),
		errors.Is(err, domain.ErrBetTooLarge),
		errors.Is(err, domain.ErrInvalidBetSide),
		errors.Is(err, domain.ErrInvalidAssetClass),
		errors.Is(err, domain.ErrAssetClassMismatch),
		errors.Is(err, domain.ErrMissingTokenAccount),
		errors.Is(err, domain.ErrInvalidTokenAsset),
		errors.Is(err, domain.ErrInvalidCustodyAccount),
		errors.Is(err, domain.ErrInvalidPosition):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrMarketNotActive),
		errors.Is(err, domain.ErrMarketExpired),
		errors.Is(err, domain.ErrMarketNotExpired),
		errors.Is(err, domain.ErrMarketNotResolved),
		errors.Is(err, domain.ErrMarketNotCancelled),
		errors.Is(err, domain.ErrNoWinningShares),
		errors.Is(err, domain.ErrNoWinningsAvailable),
		errors.Is(err, domain.ErrNoRefundAvailable),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrMathOverflow),
		errors.Is(err, domain.ErrDivisionByZero):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// marketIDParam extracts and parses the {id} path parameter.
func marketIDParam(r *http.Request) (uint64, error) {
	return strconv.ParseUint(r.PathValue("id"), 10, 64)
}

// decodeBody decodes the JSON request body into dst, rejecting unknown
// fields.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
