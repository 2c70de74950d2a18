// Package server provides the HTTP server implementation.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/guardrail/guardrail/internal/config"
	"github.com/guardrail/guardrail/internal/handlers"
	"github.com/guardrail/guardrail/internal/metrics"
	"github.com/guardrail/guardrail/internal/middleware"
	"github.com/guardrail/guardrail/internal/ratelimit"
	"github.com/guardrail/guardrail/pkg/logger"
)

// Server represents the HTTP server.
type Server struct {
	cfg           *config.Config
	log           *logger.Logger
	httpServer    *http.Server
	healthHandler *handlers.HealthHandler
	redactHandler *handlers.RedactHandler
	uiHandler     *handlers.UIHandler
	rateLimiter   ratelimit.Limiter
	listener      net.Listener
	running       bool
	mu            sync.RWMutex
}

// New creates a new Server instance.
func New(cfg *config.Config, log *logger.Logger, redactHandler *handlers.RedactHandler, uiHandler *handlers.UIHandler) *Server {
	s := &Server{
		cfg:           cfg,
		log:           log,
		healthHandler: handlers.NewHealthHandler(),
		redactHandler: redactHandler,
		uiHandler:     uiHandler,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	handler := s.buildMiddlewareChain(mux)

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}

	return s
}

// buildMiddlewareChain creates the middleware chain for the server.
func (s *Server) buildMiddlewareChain(handler http.Handler) http.Handler {
	// Metrics and request ID middleware are always enabled
	chain := middleware.New(
		middleware.Metrics(),
		middleware.RequestID(),
		middleware.ClientIP(s.cfg.HTTPRate.TrustProxy, nil),
	)

	// Add inbound rate limiting if enabled
	if s.cfg.HTTPRate.Enabled {
		s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.Config{
			Requests: s.cfg.HTTPRate.Requests,
			Window:   s.cfg.HTTPRate.Window.Std(),
		})

		chain = chain.Append(middleware.RateLimit(s.rateLimiter, middleware.RateLimitConfig{
			TrustProxy:   s.cfg.HTTPRate.TrustProxy,
			APIKeyHeader: s.cfg.HTTPRate.APIKeyHeader,
		}))

		s.log.Info("inbound rate limiting enabled",
			"requests", s.cfg.HTTPRate.Requests,
			"window", s.cfg.HTTPRate.Window.Std().String(),
		)
	}

	return chain.Then(handler)
}

// registerRoutes sets up the HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Health check routes (GET only)
	mux.HandleFunc("GET /health", s.healthHandler.Health)
	mux.HandleFunc("GET /ready", s.healthHandler.Ready)

	// Metrics endpoint for Prometheus
	mux.Handle("GET /metrics", metrics.Handler())

	// API v1 routes - redaction pipeline
	mux.HandleFunc("POST /api/v1/redact", s.handleRedact)
	mux.HandleFunc("POST /api/v1/process", s.handleProcess)
	mux.HandleFunc("GET /api/v1/categories", s.handleCategories)
	mux.HandleFunc("PUT /api/v1/config/apikey", s.handleUpdateAPIKey)
	mux.HandleFunc("GET /api/v1/history", s.handleHistory)

	// Browser interface
	mux.HandleFunc("GET /", s.handleIndex)
}

// handleRedact routes to the redact handler for detection runs.
func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	if s.redactHandler == nil {
		http.Error(w, "redaction service not configured", http.StatusServiceUnavailable)
		return
	}
	s.redactHandler.Redact(w, r)
}

// handleProcess routes to the redact handler for processing runs.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if s.redactHandler == nil {
		http.Error(w, "redaction service not configured", http.StatusServiceUnavailable)
		return
	}
	s.redactHandler.Process(w, r)
}

// handleCategories routes to the redact handler for the category list.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if s.redactHandler == nil {
		http.Error(w, "redaction service not configured", http.StatusServiceUnavailable)
		return
	}
	s.redactHandler.Categories(w, r)
}

// handleUpdateAPIKey routes to the redact handler for credential updates.
func (s *Server) handleUpdateAPIKey(w http.ResponseWriter, r *http.Request) {
	if s.redactHandler == nil {
		http.Error(w, "redaction service not configured", http.StatusServiceUnavailable)
		return
	}
	s.redactHandler.UpdateAPIKey(w, r)
}

// handleHistory routes to the redact handler for the audit list.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.redactHandler == nil {
		http.Error(w, "redaction service not configured", http.StatusServiceUnavailable)
		return
	}
	s.redactHandler.History(w, r)
}

// handleIndex routes to the UI handler for the interface page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.uiHandler == nil {
		http.Error(w, "interface not configured", http.StatusServiceUnavailable)
		return
	}
	s.uiHandler.Index(w, r)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := s.cfg.Server.Address()

	// Create listener first to get the actual address (important when port is 0)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	actualAddr := listener.Addr().String()
	s.log.Info("server starting", "address", actualAddr)

	err = s.httpServer.Serve(listener)
	if err != nil && err != http.ErrServerClosed {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("server shutting down")

	// Mark as not ready during shutdown
	s.healthHandler.SetReady(false)

	err := s.httpServer.Shutdown(ctx)

	if s.rateLimiter != nil {
		if closeErr := s.rateLimiter.Close(); closeErr != nil {
			s.log.Error("failed to close rate limiter", "error", closeErr.Error())
		}
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	if err != nil {
		s.log.Error("shutdown error", "error", err.Error())
		return err
	}

	s.log.Info("server stopped")
	return nil
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's address.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// HealthHandler returns the health handler.
func (s *Server) HealthHandler() *handlers.HealthHandler {
	return s.healthHandler
}
