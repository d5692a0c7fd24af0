// Package core provides the HTTP chassis for circlemap: a chi router with the
// shared middleware chain, the JSON response envelope, request validation and
// the health endpoint. Domain handlers mount themselves under /v1 through
// V1RouteRegistrars.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"circlemap/internal/config"
)

// MetricsCollector records API telemetry. route is the chi route pattern,
// not the raw path, to keep label cardinality bounded.
type MetricsCollector interface {
	RecordRequest(method, route, status string, duration time.Duration)
}

// ShutdownFunc releases a resource owned by the server.
type ShutdownFunc func(ctx context.Context) error

// Server holds the router and its cross-cutting dependencies.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   MetricsCollector

	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler
	HealthProbes   []HealthProbe

	// V1RouteRegistrars mount domain handlers under /v1. They are populated by
	// the entry point to avoid an import cycle between core and handlers.
	V1RouteRegistrars []func(r chi.Router)

	shutdownFuncs []ShutdownFunc
	router        *chi.Mux
}

// NewServer creates a Server. Routes are mounted separately via MountRoutes
// so tests can adjust dependencies first.
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

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// OnShutdown registers fn to run during Shutdown. Functions run in reverse
// registration order.
func (s *Server) OnShutdown(fn ShutdownFunc) {
	s.shutdownFuncs = append(s.shutdownFuncs, fn)
}

// Shutdown releases registered resources (database pool, cache client). All
// functions run; their errors are joined.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var errs []error
	for i := len(s.shutdownFuncs) - 1; i >= 0; i-- {
		if err := s.shutdownFuncs[i](ctx); err != nil {
			s.Logger.Error("error releasing resource", "error", err)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
