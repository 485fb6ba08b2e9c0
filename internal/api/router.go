package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/devices", s.handleListDevices)
		r.Get("/export.csv", s.handleExportCSV)

		r.Route("/exports", func(r chi.Router) {
			r.Get("/", s.handleListExports)
			r.Get("/{id}", s.handleGetExport)
		})

		r.Get("/events", s.handleEvents)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     s.version,
		"device_type": s.deviceType,
		"cached":      s.cache.Len(),
		"clients":     s.hub.ClientCount(),
		"history":     s.history != nil,
	})
}
