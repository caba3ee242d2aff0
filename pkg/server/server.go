// Package server exposes the coordinator over a WebSocket, one session per
// connection, plus health and metrics endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/slate-agents/slate/pkg/coordinator"
	"github.com/slate-agents/slate/pkg/observability"
)

// Config holds the listen address.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// SetDefaults applies the standard listen address.
func (c *Config) SetDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 8000
	}
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CoordinatorFactory builds a coordinator bound to a connection's IO
// handler. Each WebSocket connection gets its own coordinator and session.
type CoordinatorFactory func(io coordinator.IOHandler) *coordinator.Coordinator

// Server is the HTTP surface.
type Server struct {
	config  Config
	factory CoordinatorFactory
	metrics *observability.Metrics
}

// New creates a server. metrics may be nil.
func New(config Config, factory CoordinatorFactory, metrics *observability.Metrics) *Server {
	config.SetDefaults()
	return &Server{config: config, factory: factory, metrics: metrics}
}

// Router builds the route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	r.Get("/ws", s.handleWS)
	return r
}

// ListenAndServe runs until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("server listening", "addr", s.config.Addr())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
