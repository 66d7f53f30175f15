// Package api exposes the daemon's operations over HTTP: request
// submission and inspection, campaign management, target imports, session
// registration, and a live event stream.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mproulx/herald/internal/audit"
	"github.com/mproulx/herald/internal/campaign"
	"github.com/mproulx/herald/internal/catalog"
	"github.com/mproulx/herald/internal/events"
	"github.com/mproulx/herald/internal/request"
	"github.com/mproulx/herald/internal/session"
	"github.com/mproulx/herald/internal/target"
)

// Invoker runs one queued request to completion. POST .../invoke uses it
// for synchronous execution.
type Invoker interface {
	Invoke(ctx context.Context, id string) error
}

// Ticker forces a scheduling pass outside the regular interval.
type Ticker interface {
	ForceTick(ctx context.Context)
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey is the single bearer token protecting the /v1 surface.
	APIKey string
}

// Server represents the HTTP API server.
type Server struct {
	config    Config
	requests  *request.Store
	audit     *audit.Logger
	campaigns *campaign.Store
	targets   *target.Loader
	sessions  *session.Store
	catalog   *catalog.Store
	invoker   Invoker
	ticker    Ticker
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// Deps bundles the stores and services the server fronts.
type Deps struct {
	Requests  *request.Store
	Audit     *audit.Logger
	Campaigns *campaign.Store
	Targets   *target.Loader
	Sessions  *session.Store
	Catalog   *catalog.Store
	Invoker   Invoker
	Ticker    Ticker
	Events    *events.Hub
}

// New creates a new API server instance.
func New(config Config, deps Deps, logger *slog.Logger) *Server {
	hub := deps.Events
	if hub == nil {
		hub = events.NewHub(256)
	}
	return &Server{
		config:    config,
		requests:  deps.Requests,
		audit:     deps.Audit,
		campaigns: deps.Campaigns,
		targets:   deps.Targets,
		sessions:  deps.Sessions,
		catalog:   deps.Catalog,
		invoker:   deps.Invoker,
		ticker:    deps.Ticker,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // synchronous invokes run handler timeouts
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	// Protected API.
	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/requests", s.handleEnqueueRequest)
		r.Get("/requests/{requestID}", s.handleGetRequest)
		r.Post("/requests/{requestID}/invoke", s.handleInvokeRequest)
		r.Get("/requests/{requestID}/audit", s.handleGetAudit)

		r.Post("/campaigns", s.handleCreateCampaign)
		r.Get("/campaigns/{campaignID}", s.handleGetCampaign)
		r.Post("/campaigns/{campaignID}/schedule", s.handleScheduleCampaign)

		r.Post("/targets", s.handleImportTargets)
		r.Get("/targets/{targetListID}", s.handleGetTargetList)
		r.Post("/sessions", s.handleRegisterSession)
		r.Post("/sessions/{sessionID}/status", s.handleSetSessionStatus)

		r.Get("/functions", s.handleListFunctions)
		r.Post("/functions", s.handleUpsertFunction)
		r.Post("/scheduler/tick", s.handleForceTick)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
