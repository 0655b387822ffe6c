// Package server wires the HTTP routes for the import service.
package server

import (
	"net/http"

	"github.com/rumor-ml/commons.systems/ofximport/internal/config"
	"github.com/rumor-ml/commons.systems/ofximport/internal/handlers"
	"github.com/rumor-ml/commons.systems/ofximport/internal/middleware"
)

// Server is the statement import HTTP server.
type Server struct {
	mux *http.ServeMux
}

// New creates a server on the given service. verifier may be nil for
// header-based tenancy.
func New(svc handlers.ImportService, verifier middleware.TokenVerifier, cfg config.Config) *Server {
	s := &Server{mux: http.NewServeMux()}

	h := handlers.New(svc, cfg)
	tenant := middleware.NewTenantMiddleware(verifier)

	s.mux.HandleFunc("GET /health", handlers.HealthCheck)
	s.mux.Handle("POST /api/import", tenant.RequireTenant(http.HandlerFunc(h.Upload)))
	s.mux.Handle("GET /api/review", tenant.RequireTenant(http.HandlerFunc(h.GetPending)))
	s.mux.Handle("POST /api/review/complete", tenant.RequireTenant(http.HandlerFunc(h.CompleteReview)))
	s.mux.Handle("DELETE /api/review", tenant.RequireTenant(http.HandlerFunc(h.DeleteAllPending)))

	return s
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	return http.ListenAndServe(addr, s.mux)
}
