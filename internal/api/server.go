// Package api provides the control-plane HTTP server for terascout scouts.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/navincodesalot/terascout/internal/api/middleware"
	"github.com/navincodesalot/terascout/internal/config"
	"github.com/navincodesalot/terascout/internal/engine"
	"github.com/navincodesalot/terascout/internal/storage"
)

// Server represents the HTTP control-plane server. Per spec.md §4.3 it
// is a stateless request handler: create/get/delete scouts, nothing else.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	config     *ServerConfig
	startTime  time.Time

	store     storage.Store
	registry  *engine.Registry
	llm       engine.Analyzer
	engineCfg *config.EngineConfig
	locks     *storage.ScoutLocks
}

// NewServer creates a new HTTP server instance with structured logging and
// middleware stack.
//
// Dependencies are injected explicitly rather than folded into ServerConfig:
// store, registry, llm, and locks are REQUIRED (panics if nil) since there
// is no degraded mode for the control plane without them. registry already
// composes the engine's other collaborators (fetcher, email sender) for
// the per-scout polling loop — the server only needs to Start/Stop engine
// instances by ID. llm is injected separately because scout creation
// itself makes one source-discovery model call (spec.md §4.2's "Source
// discovery... run by the control plane"), which happens before any
// engine goroutine exists. locks is the SAME *storage.ScoutLocks instance
// given to engine.NewRegistry — per internal/storage/locks.go, the engine
// goroutine and a control-plane request touching the same scoutID must
// serialize through the same mutex, so create/delete take it too.
func NewServer(
	cfg *ServerConfig,
	store storage.Store,
	registry *engine.Registry,
	llmClient engine.Analyzer,
	engineCfg *config.EngineConfig,
	locks *storage.ScoutLocks,
) *Server {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	if store == nil || registry == nil || llmClient == nil || locks == nil {
		logger.Error("store, engine registry, llm client, and scout locks are required - cannot start server without core functionality")
		panic("api: store, registry, llm, and locks cannot be nil - this indicates a configuration error")
	}

	mux := http.NewServeMux()

	server := &Server{
		logger:    logger,
		config:    cfg,
		store:     store,
		registry:  registry,
		llm:       llmClient,
		engineCfg: engineCfg,
		locks:     locks,
	}

	server.setupRoutes(mux)

	if cfg.RateLimiter != nil {
		logger.Info("Rate limiting middleware enabled")
	} else {
		logger.Warn("RateLimiter not configured - rate limiting middleware disabled")
	}

	// Middleware executes in the order listed (top-to-bottom):
	//   1. CorrelationID - generate correlation ID for all responses
	//   2. Recovery - catch panics in all downstream middleware
	//   3. RateLimit - block requests before expensive operations (optional)
	//   4. RequestLogger - log only legitimate requests (not rate-limited spam)
	//   5. CORS - lightweight header manipulation
	handler := middleware.Apply(mux,
		middleware.WithCorrelationID(),
		middleware.WithRecovery(logger),
		middleware.WithRateLimit(cfg.RateLimiter, logger),
		middleware.WithRequestLogger(logger),
		middleware.WithCORS(cfg.ToCORSConfig()),
	)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	server.httpServer = httpServer

	return server
}

// Start starts the HTTP server and blocks until shutdown.
// It handles graceful shutdown on SIGINT and SIGTERM signals.
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	s.startTime = time.Now()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("Starting terascout control-plane server",
			slog.String("address", s.config.Address()),
			slog.Duration("read_timeout", s.config.ReadTimeout),
			slog.Duration("write_timeout", s.config.WriteTimeout),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server failed to start",
				slog.String("address", s.config.Address()),
				slog.String("error", err.Error()),
			)

			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case sig := <-stop:
		s.logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

		return s.shutdown()
	}
}

// shutdown gracefully shuts down the server.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Initiating server shutdown", slog.Duration("shutdown_timeout", s.config.ShutdownTimeout))

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown failed",
			slog.String("error", err.Error()),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.closeDependency("rate limiter", s.config.RateLimiter)
	s.closeDependency("store", s.store)

	s.logger.Info("Server shutdown completed successfully")

	return nil
}

// closeDependency attempts to close a server dependency that implements io.Closer.
// Logs the operation and its result. Errors are logged but don't stop shutdown (best-effort).
func (s *Server) closeDependency(name string, dep interface{}) {
	if dep == nil {
		return
	}

	closer, ok := dep.(io.Closer)
	if !ok {
		return
	}

	s.logger.Info("Closing " + name)

	if err := closer.Close(); err != nil {
		s.logger.Error("Failed to close "+name, slog.String("error", err.Error()))

		return
	}

	s.logger.Info(name + " closed successfully")
}
