package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/custodia-labs/mailsync-core/internal/core/ports/driven"
	"github.com/custodia-labs/mailsync-core/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes the sync engine over HTTP
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger

	// Services
	orchestrator driving.SyncOrchestrator
	failures     driving.FailureQuery
	conflicts    driving.ConflictManager
	accounts     driven.AccountStore

	// Infrastructure health checks; lock and bus may be nil
	store Pinger
	lock  Pinger
	bus   Pinger
}

// Config holds server configuration
type Config struct {
	Host    string
	Port    int
	Version string

	// JWTSecret signs API bearer tokens
	JWTSecret string

	// RateLimitRPS and RateLimitBurst bound per-client request rates
	RateLimitRPS   float64
	RateLimitBurst int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:           "127.0.0.1",
		Port:           8080,
		Version:        "dev",
		RateLimitRPS:   10,
		RateLimitBurst: 20,
	}
}

// ServerDeps bundles the services and health probes the server needs
type ServerDeps struct {
	Orchestrator driving.SyncOrchestrator
	Failures     driving.FailureQuery
	Conflicts    driving.ConflictManager
	Accounts     driven.AccountStore

	Store  Pinger
	Lock   Pinger // optional
	Bus    Pinger // optional
	Logger *slog.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:       http.NewServeMux(),
		version:      cfg.Version,
		logger:       logger,
		orchestrator: deps.Orchestrator,
		failures:     deps.Failures,
		conflicts:    deps.Conflicts,
		accounts:     deps.Accounts,
		store:        deps.Store,
		lock:         deps.Lock,
		bus:          deps.Bus,
	}

	s.setupRoutes(cfg)

	var handler http.Handler = s.router
	handler = NewRateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst).Handler(handler)
	handler = NewLoggingMiddleware(logger).Handler(handler)
	handler = NewRecoveryMiddleware(logger).Handler(handler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config) {
	auth := NewAuthMiddleware(cfg.JWTSecret)

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /healthz", s.handleHealth)
	s.router.HandleFunc("GET /version", s.handleVersion)

	protected := func(h http.HandlerFunc) http.Handler {
		return auth.Authenticate(h)
	}

	// Account endpoints
	s.router.Handle("GET /api/v1/accounts", protected(s.handleListAccounts))
	s.router.Handle("POST /api/v1/accounts/{id}/sync", protected(s.handleTriggerSync))
	s.router.Handle("POST /api/v1/accounts/{id}/switch", protected(s.handleSwitchAccount))
	s.router.Handle("GET /api/v1/accounts/{id}/progress", protected(s.handleGetProgress))

	// Failure endpoints
	s.router.Handle("GET /api/v1/accounts/{id}/failures", protected(s.handleListFailures))
	s.router.Handle("GET /api/v1/accounts/{id}/failures/stats", protected(s.handleFailureStats))
	s.router.Handle("POST /api/v1/accounts/{id}/failures/retry-all", protected(s.handleRetryAllFailures))
	s.router.Handle("POST /api/v1/failures/{id}/dismiss", protected(s.handleDismissFailure))

	// Conflict endpoints
	s.router.Handle("GET /api/v1/conflicts", protected(s.handleListConflicts))
	s.router.Handle("POST /api/v1/conflicts/{id}/resolve", protected(s.handleResolveConflict))
	s.router.Handle("PUT /api/v1/accounts/{id}/conflict-preference", protected(s.handleSetConflictPreference))
}

// Start runs the server until the context is canceled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

// Stop shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the configured handler, used by tests
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
