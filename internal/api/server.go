// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

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
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taibuivan/historyatlas/internal/core/ingest"
	"github.com/taibuivan/historyatlas/internal/core/ordering"
	"github.com/taibuivan/historyatlas/internal/core/story"
	"github.com/taibuivan/historyatlas/internal/platform/config"
	"github.com/taibuivan/historyatlas/internal/platform/constants"
	"github.com/taibuivan/historyatlas/internal/platform/middleware"
	"github.com/taibuivan/historyatlas/internal/platform/sec"
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
	// Liveness is the /health handler. It returns 200 while the process is alive.
	Liveness http.HandlerFunc

	// Readiness is the /ready handler. It returns 200 when all deps are healthy.
	Readiness http.HandlerFunc

	// Story serves the public query surface.
	Story *story.Handler

	// Ingest accepts write-model events.
	Ingest *ingest.HTTPHandler

	// Ordering triggers bulk story order repair.
	Ordering *ordering.Handler
}

// errVerificationDisabled rejects every bearer token when no public key is configured.
var errVerificationDisabled = errors.New("token verification is not configured")

type disabledVerifier struct{}

func (disabledVerifier) VerifyToken(string) (*sec.AuthClaims, error) {
	return nil, errVerificationDisabled
}

// # Server Initialization

// NewServer constructs the chi router with the full middleware chain and
// registers all route groups. A nil verifier leaves every request anonymous,
// which closes the ingestion and admin routes.
func NewServer(context context.Context, cfg *config.Config, log *slog.Logger, verifier middleware.TokenVerifier, h Handlers) *Server {
	if verifier == nil {
		verifier = disabledVerifier{}
	}

	r := chi.NewRouter()

	// # Middleware Chain
	// Global middleware applied in order of execution.
	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(log))
	r.Use(middleware.PanicRecovery(log))
	r.Use(middleware.NewRateLimiter(context).Handler)
	r.Use(middleware.CORS(cfg))
	r.Use(chimw.CleanPath)

	// # Infrastructure Endpoints
	// Unauthenticated probes for container orchestration and scraping.
	r.Get("/health", h.Liveness)
	r.Get("/ready", h.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// # Application API
	// Domain-specific route groups mounted under versioned prefix.
	r.Route("/api/v1", func(api chi.Router) {
		api.Use(chimw.Timeout(constants.GlobalRequestTimeout))
		api.Use(middleware.Authenticate(verifier))

		h.Story.RegisterRoutes(api)
		if h.Ingest != nil {
			h.Ingest.RegisterRoutes(api)
		}
		if h.Ordering != nil {
			h.Ordering.RegisterRoutes(api)
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

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// # Server Lifecycle

// ListenAndServe starts the HTTP server.
//
// It blocks until the server is closed or an error occurs.
func (s *Server) ListenAndServe() error {
	s.log.Info("server_starting", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	context, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(context)
}
