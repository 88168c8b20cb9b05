package observability_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/greater-social/greater/internal/observability"
)

func TestLoggers(t *testing.T) {
	t.Run("CLI logger creation", func(t *testing.T) {
		require.NoError(t, observability.InitCLILogger("greater-test", true))
		require.NotNil(t, observability.CLILogger)
		observability.CLILogger.Debug("verbose cli logger", zap.String("test", "value"))
	})

	t.Run("Structured logger creation", func(t *testing.T) {
		require.NoError(t, observability.InitServerLogger(observability.ServerLoggerOptions{
			Service:  "greater-test",
			Level:    "debug",
			Instance: "social.example",
		}))
		require.NotNil(t, observability.ServerLogger)
		require.Same(t, observability.ServerLogger, observability.Logger())
		observability.ServerLogger.Info("structured log message",
			zap.String("component", "test"),
			zap.Int("attempt", 1))
	})

	t.Run("Simple profile", func(t *testing.T) {
		require.NoError(t, observability.InitServerLogger(observability.ServerLoggerOptions{
			Service: "greater-test",
			Level:   "warn",
			Profile: "simple",
		}))
		require.NotNil(t, observability.ServerLogger)
		_ = observability.Sync()
	})
}

func TestMetricsHandler(t *testing.T) {
	m := observability.NewMetrics()
	m.ObserveRequest("GET", "200", 15*time.Millisecond)
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.RateLimited("local")
	m.SetOfflineQueue(2, 1)
	m.StreamReconnect("websocket")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close() // nolint:errcheck // test cleanup
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	require.Contains(t, text, `greater_api_request_counts{method="GET",status="200"} 1`)
	require.Contains(t, text, `greater_cache_lookups{result="hit"} 1`)
	require.Contains(t, text, `greater_rate_limited_counts{source="local"} 1`)
	require.Contains(t, text, `greater_offline_queue_length{state="pending"} 2`)
	require.Contains(t, text, `greater_stream_reconnect_counts{transport="websocket"} 1`)
}

func TestNilMetrics(t *testing.T) {
	var m *observability.Metrics
	m.ObserveRequest("GET", "200", time.Second)
	m.CacheLookup(true)
	m.GatewayPanic()
	require.Nil(t, m.Registry())
}
