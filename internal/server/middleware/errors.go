package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/greater-social/greater/internal/observability"
)

// Recovery turns a handler panic into a 500 envelope. The stack trace goes
// to the log, never to the caller.
func Recovery(m *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				panicErr := errors.NewErrorEnvelope("INTERNAL_ERROR", "internal server error").
					WithCorrelationID(GetRequestID(r.Context()))
				panicErr, _ = panicErr.WithSeverity(errors.SeverityCritical)

				m.GatewayPanic()
				if logger := observability.ServerLogger; logger != nil {
					logger.Error("panic recovered",
						zap.String("panic", fmt.Sprint(rec)),
						zap.String("path", r.URL.Path),
						zap.String("request_id", panicErr.CorrelationID),
						zap.String("stack_trace", string(debug.Stack())))
				}

				writeErrorResponse(w, panicErr, http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// ErrorResponse structure per API standards
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// writeErrorResponse writes the envelope without going through the errors
// package, which imports this one.
func writeErrorResponse(w http.ResponseWriter, envelope *errors.ErrorEnvelope, statusCode int) {
	response := ErrorResponse{
		Error: ErrorDetail{
			Code:      envelope.Code,
			Message:   envelope.Message,
			Details:   envelope.Context,
			RequestID: envelope.CorrelationID,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}
