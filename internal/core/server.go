// Package core provides the HTTP chassis for the geodash API: a chi router
// with the cross-cutting concerns (request IDs, logging, panic recovery,
// CORS) applied before requests reach the domain handlers, plus the shared
// JSON response and decoding utilities those handlers use.
package core

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"geodash/internal/config"
)

// Server bundles the router and its cross-cutting dependencies. Routes are
// mounted by the caller after construction, so tests can register only what
// they exercise.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	router *chi.Mux
}

// NewServer builds a Server with the base middleware chain installed:
// recovery outermost, then request IDs, security headers, CORS and request
// logging.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	s := &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		router:    chi.NewRouter(),
	}

	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(SecurityHeadersMiddleware)
	s.router.Use(NewCORSMiddleware(cfg.Server.AllowedOrigins))
	s.router.Use(RequestLogger(logger))

	return s, nil
}

// Handler returns the router as an http.Handler for http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}
