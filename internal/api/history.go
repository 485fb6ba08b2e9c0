package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/awqp/ubidots-export/internal/history"
)

// handleListExports returns recorded export runs, newest first.
func (s *Server) handleListExports(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "export history is not configured")
		return
	}

	q := r.URL.Query()
	filter := history.Filter{DeviceType: q.Get("type")}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	result, err := s.history.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing exports failed", "error", err)
		writeInternalError(w, "listing exports failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetExport returns one export run including its rows.
func (s *Server) handleGetExport(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "export history is not configured")
		return
	}

	id := chi.URLParam(r, "id")
	run, err := s.history.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeNotFound(w, "export run not found")
			return
		}
		s.logger.Error("reading export failed", "id", id, "error", err)
		writeInternalError(w, "reading export failed")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// intParam parses an optional non-negative integer query value.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
