// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

/*
Package api wires together the HTTP router, middleware chain, and all
domain handlers into a runnable [http.Server].

Architecture:

  - This package is the topmost Presentation layer boundary.
  - It acts as the central composition root for the HTTP transport framework (chi router).
  - Only this package and cmd/api are allowed to import net/http server primitives.
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/leozheng-Miao/leomall-sub001/internal/platform/config"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/constants"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/metrics"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/middleware"
	"github.com/leozheng-Miao/leomall-sub001/internal/users/auth"
)

// # Server Definitions

// Server wraps the chi router and the [http.Server].
//
// It is constructed once in main.go with all dependencies injected.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *slog.Logger
}

// # Handler Registry

// Handlers groups all domain-specific HTTP handler sets.
type Handlers struct {
	// Liveness is the /health handler, always 200 if the process is alive.
	Liveness http.HandlerFunc

	// Readiness is the /ready handler, 200 when all deps are healthy.
	Readiness http.HandlerFunc

	// Metrics serves the Prometheus exposition format. Optional.
	Metrics http.Handler

	// Auth handles the session routes (login, refresh, logout, me, revocations).
	Auth *auth.Handler

	// Routes registers additional route groups under /api/v1. Optional.
	Routes func(api chi.Router)
}

// # Server Initialization

// NewServer constructs the chi router with the full middleware chain and
// registers all route groups.
//
// # Identity Order
//
// Scope wraps the logger so the final log line still sees the tenant and the
// principal; tenant resolution runs before authentication, and both run
// before any route-level authz declaration.
func NewServer(ctx context.Context, cfg *config.Config, log *slog.Logger, verifier middleware.TokenVerifier, policy middleware.RoutePolicy, h Handlers) *Server {
	r := chi.NewRouter()

	// # Middleware Chain
	r.Use(middleware.RequestID())
	r.Use(middleware.Scope)
	r.Use(middleware.StructuredLogger(log))
	r.Use(metrics.Middleware)
	r.Use(chimw.Timeout(constants.GlobalRequestTimeout))
	r.Use(middleware.RateLimit(ctx))
	r.Use(middleware.PanicRecovery(log))
	r.Use(middleware.CORS(cfg))
	r.Use(chimw.CleanPath)
	r.Use(middleware.ResolveTenant(middleware.TenantOptions{
		Header:  cfg.TenantHeader,
		Default: cfg.DefaultTenant(),
	}))
	r.Use(middleware.Authenticate(verifier, policy))

	// # Infrastructure Endpoints
	r.Get("/health", h.Liveness)
	r.Get("/ready", h.Readiness)
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics)
	}

	// # Application API
	r.Route("/api/v1", func(api chi.Router) {
		api.Mount("/auth", h.Auth.Routes())
		if h.Routes != nil {
			h.Routes(api)
		}
	})

	return &Server{
		router: r,
		log:    log,
		httpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           r,
			ReadTimeout:       constants.DefaultReadTimeout,
			WriteTimeout:      constants.DefaultWriteTimeout,
			IdleTimeout:       constants.DefaultIdleTimeout,
			ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		},
	}
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// # Server Lifecycle

// ListenAndServe starts the HTTP server.
//
// It blocks until the server is closed or an error occurs.
func (s *Server) ListenAndServe() error {
	s.log.Info("server starting", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
