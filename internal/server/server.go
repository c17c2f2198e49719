// Package server is the operations HTTP API: health, engine status,
// Prometheus metrics and the live fill stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/depthbot/internal/server/handler"
	"github.com/alanyoungcy/depthbot/internal/server/middleware"
	"github.com/alanyoungcy/depthbot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Addr   string
	APIKey string // empty disables authentication
}

// Routes are the optional parts of the API. Nil members are not mounted.
type Routes struct {
	Metrics http.Handler
	Status  handler.StatusSource
	Hub     *ws.Hub
}

// Server serves the operations API until its context is cancelled.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New registers every route and wraps them in auth and logging middleware.
// The health check is never authenticated.
func New(cfg Config, routes Routes, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http_server"))

	api := http.NewServeMux()
	api.HandleFunc("GET /api/status", handler.NewStatusHandler(routes.Status).GetStatus)
	if routes.Metrics != nil {
		api.Handle("GET /metrics", routes.Metrics)
	}
	if routes.Hub != nil {
		api.HandleFunc("GET /ws", routes.Hub.HandleWS)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handler.NewHealthHandler().HealthCheck)
	mux.Handle("/", middleware.Auth(cfg.APIKey)(api))

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           middleware.Logging(logger)(mux),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run listens until ctx is cancelled, then shuts down gracefully and returns
// ctx.Err(). A listen failure is returned immediately.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", s.httpServer.Addr))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen %s: %w", s.httpServer.Addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http server shutdown failed", slog.String("error", err.Error()))
		}
		return ctx.Err()
	}
}
