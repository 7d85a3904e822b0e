// Package core provides the API chassis for the Wayfarer billing service.
// It creates a chi router and enforces cross-cutting concerns -- security,
// logging, observability, and error handling -- before requests reach the
// domain-specific handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"wayfarer/internal/config"
)

// Server encapsulates the chassis dependencies for the Wayfarer API, allowing
// for easy injection during testing and distinct configuration for different
// environments.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	// Tokens resolves bearer tokens to Actors; injected for testability.
	// When nil, AuthMiddleware passes requests through unauthenticated.
	Tokens TokenVerifier

	// HealthProbes are the subsystem checks executed by GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars are populated by the application entry point before
	// MountRoutes is called. This indirection avoids import cycles between
	// core and handler packages.
	V1RouteRegistrars []func(chi.Router)

	// WebhookRegistrars mount provider callback routes outside the /v1
	// namespace; these paths bypass bearer authentication.
	WebhookRegistrars []func(chi.Router)

	router  *chi.Mux
	closers []func()
}

// NewServer initializes dependencies, sets up the router, and prepares the
// server for route mounting. It performs a fail-fast check on critical
// configuration.
//
// The caller is responsible for mounting routes (via MountRoutes) after
// construction; this separation allows tests to customize route registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// RegisterCloser records a resource teardown function (e.g. the database
// pool) to be run during Shutdown, in reverse registration order.
func (s *Server) RegisterCloser(fn func()) {
	s.closers = append(s.closers, fn)
}

// Shutdown performs a graceful termination of server resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
