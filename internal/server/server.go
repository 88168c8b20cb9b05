package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/greater-social/greater/internal/config"
	apperrors "github.com/greater-social/greater/internal/errors"
	"github.com/greater-social/greater/internal/observability"
	"github.com/greater-social/greater/internal/server/handlers"
	servermw "github.com/greater-social/greater/internal/server/middleware"
)

// Deps are the components the gateway routes to. Any of them may be nil;
// the matching routes then answer 503 or 404.
type Deps struct {
	Composer *handlers.Composer
	Health   *handlers.HealthManager
	Metrics  *observability.Metrics
	// AdminToken enables POST /admin/signal when set.
	AdminToken string
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	cfg    config.ServerConfig
	deps   Deps
}

// New creates a new HTTP server instance
func New(cfg config.ServerConfig, deps Deps) *Server {
	if deps.Health == nil {
		deps.Health = handlers.NewHealthManager(handlers.AppVersion)
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)

	// RequestID first so every later layer can correlate; Recovery sits
	// inside metrics so recovered panics are still counted as 500s.
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics(deps.Metrics))
	r.Use(servermw.Recovery(deps.Metrics))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	s := &Server{
		router: r,
		cfg:    cfg,
		deps:   deps,
	}

	s.registerRoutes()

	return s
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	if logger := observability.ServerLogger; logger != nil {
		logger.Info("Starting HTTP server",
			zap.String("host", s.cfg.Host),
			zap.Int("port", s.cfg.Port),
			zap.String("addr", s.server.Addr))
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if logger := observability.ServerLogger; logger != nil {
		logger.Info("Shutting down HTTP server")
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured port
func (s *Server) Port() int {
	return s.cfg.Port
}
