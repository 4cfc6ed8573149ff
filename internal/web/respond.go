package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"staycal/internal/booking"
	"staycal/internal/calsync"
	"staycal/internal/ics"
	appLog "staycal/internal/log"
	"staycal/internal/session"
	"staycal/internal/store"
)

const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// writeErr maps a service error to its HTTP status. Unknown errors are
// logged and reported without detail.
func writeErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		appLog.Error("request failed", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNoIdentity):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrInvalidStay), errors.Is(err, calsync.ErrInvalidEntry):
		return http.StatusBadRequest
	case errors.Is(err, booking.ErrDatesUnavailable), errors.Is(err, calsync.ErrInactive):
		return http.StatusConflict
	case errors.Is(err, booking.ErrPayment),
		errors.Is(err, ics.ErrFeedNotFound),
		errors.Is(err, ics.ErrFeedUnreadable),
		errors.Is(err, ics.ErrFeedMalformed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
