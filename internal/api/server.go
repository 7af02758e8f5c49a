// Package api exposes the reconciliation service over HTTP: report
// retrieval, manual run triggers, attribution summaries, and a per-visitor
// debug view of recomputed session boundaries.
package api

import (
	"context"
	"net/http"
	"time"
)

// Server wraps the HTTP server around the route tree.
type Server struct {
	handler http.Handler
	server  *http.Server
}

// NewServer creates the API server.
func NewServer(h *Handlers, allowedOrigins []string) *Server {
	return &Server{handler: SetupRoutes(h, allowedOrigins)}
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// Manual runs recompute the whole window before responding.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}
