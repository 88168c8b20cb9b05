package server

import (
	"net/http"

	apperrors "github.com/greater-social/greater/internal/errors"
)

// metricsHandler serves the Prometheus registry, or 404 when metrics are
// disabled.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Metrics == nil {
		apperrors.RespondWithError(w, r, apperrors.NewNotFoundError("metrics are disabled"))
		return
	}
	s.deps.Metrics.Handler().ServeHTTP(w, r)
}
