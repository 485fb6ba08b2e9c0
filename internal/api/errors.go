package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/awqp/ubidots-export/internal/directory"
	"github.com/awqp/ubidots-export/internal/reshape"
	"github.com/awqp/ubidots-export/internal/ubidots"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeUpstream     = "upstream_error"
	ErrCodeUnavailable  = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writePipelineError maps a pipeline failure onto a response. Upstream
// failures are reported as 502 so callers can tell them apart from their
// own mistakes.
func writePipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ubidots.ErrMissingToken):
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "an X-Auth-Token header is required")
	case errors.Is(err, ubidots.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "token rejected by Ubidots")
	case errors.Is(err, directory.ErrEmptyDeviceType):
		writeBadRequest(w, "device type is required")
	case errors.Is(err, reshape.ErrDuplicatePair):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, ubidots.ErrRetriesExhausted),
		errors.Is(err, ubidots.ErrTransport),
		errors.Is(err, ubidots.ErrNotFound),
		errors.Is(err, ubidots.ErrMalformedPage),
		errors.Is(err, ubidots.ErrPaginationCycle):
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, err.Error())
	default:
		writeInternalError(w, "export failed")
	}
}
