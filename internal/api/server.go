package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
)

// Server wraps the single inbound HTTP server: admin routes plus the
// visitor gateway as the catch-all.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
}

// ServerConfig wires the routes.
type ServerConfig struct {
	ListenAddress   string
	Port            int
	AdminToken      string // empty disables every /api/ route
	APIMaxBodyBytes int64

	Status           StatusDeps
	GeoIPLookup      http.Handler
	BlacklistRebuild http.Handler
	RegeneratePage   http.Handler
	Gateway          http.Handler
}

// NewServer builds the mux. The gateway handler owns every path not claimed
// by /healthz or /api/.
func NewServer(cfg ServerConfig) *Server {
	mux := http.NewServeMux()

	// Public (no auth)
	mux.Handle("GET /healthz", HandleHealthz())

	// Authenticated routes
	authed := http.NewServeMux()
	authed.Handle("GET /api/v1/status", HandleStatus(cfg.Status))
	if cfg.GeoIPLookup != nil {
		authed.Handle("GET /api/v1/geoip/lookup", cfg.GeoIPLookup)
	}
	if cfg.BlacklistRebuild != nil {
		authed.Handle("POST /api/v1/blacklist/actions/rebuild-cache", cfg.BlacklistRebuild)
	}
	if cfg.RegeneratePage != nil {
		authed.Handle("POST /api/v1/pages/{id}/actions/regenerate", cfg.RegeneratePage)
	}

	limitedAuthed := RequestBodyLimitMiddleware(cfg.APIMaxBodyBytes, authed)
	mux.Handle("/api/", AuthMiddleware(cfg.AdminToken, limitedAuthed))

	if cfg.Gateway != nil {
		mux.Handle("/", cfg.Gateway)
	}

	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.ListenAddress, strconv.Itoa(cfg.Port)),
		Handler: mux,
	}
	return &Server{httpServer: srv, mux: mux}
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}
