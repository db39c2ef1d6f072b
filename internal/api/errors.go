package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/carebook/booking-engine/internal/booking"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeKindError maps a domain error kind onto an HTTP status and a
// machine-readable code.
func writeKindError(w http.ResponseWriter, err error) {
	kind := booking.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case booking.KindInvalidArgument:
		status = http.StatusBadRequest
	case booking.KindNotFound:
		status = http.StatusNotFound
	case booking.KindConflict, booking.KindExpired:
		status = http.StatusConflict
	case booking.KindFailedPrecondition:
		status = http.StatusPreconditionFailed
	case booking.KindPermissionDenied:
		status = http.StatusForbidden
	case booking.KindResourceExhausted:
		status = http.StatusTooManyRequests
	}

	details := err.Error()
	var e *booking.Error
	if errors.As(err, &e) {
		details = e.Message
	}

	writeError(w, status, string(kind), details)
}
