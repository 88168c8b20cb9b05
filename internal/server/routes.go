package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"go.uber.org/zap"

	"github.com/greater-social/greater/internal/observability"
	"github.com/greater-social/greater/internal/server/handlers"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	hm := s.deps.Health
	s.router.Get("/health", hm.HealthHandler)
	s.router.Get("/health/live", hm.LivenessHandler)
	s.router.Get("/health/ready", hm.ReadinessHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", s.metricsHandler)

	if c := s.deps.Composer; c != nil {
		s.router.Post("/api/v1/statuses", c.CreateStatus)
		s.router.Get("/queue", c.ListQueue)
		s.router.Post("/queue/sync", c.SyncQueue)
		s.router.Delete("/queue/{id}", c.DeleteQueued)
	}

	s.registerAdminEndpoint()
}

// registerAdminEndpoint exposes gofulmen's signal endpoint behind a bearer
// token. Without a token the route does not exist.
func (s *Server) registerAdminEndpoint() {
	logger := observability.ServerLogger
	if s.deps.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no admin token set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.deps.AdminToken,
		RateLimit: 10,
		RateBurst: 5,
		Manager:   nil,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("rate_limit", "10/min, burst 5"))
	}
}
