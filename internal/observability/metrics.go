package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for the request pipeline, the offline queue,
// and streaming. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requestCount     *prometheus.CounterVec
	requestDuration  *prometheus.SummaryVec
	cacheLookups     *prometheus.CounterVec
	rateLimited      *prometheus.CounterVec
	offlineQueue     *prometheus.GaugeVec
	offlineSynced    *prometheus.CounterVec
	streamReconnects *prometheus.CounterVec
	streamEvents     *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.SummaryVec
	errorsTotal      *prometheus.CounterVec
	panicsTotal      prometheus.Counter
	startTime        prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "greater_api_request_counts",
			Help: "Remote API requests by method and status.",
		}, []string{"method", "status"}),
		requestDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       "greater_api_request_duration_seconds",
			Help:       "Remote API request durations in seconds.",
			Objectives: map[float64]float64{0.5: 0.05, 0.99: 0.001},
		}, []string{"method"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "greater_cache_lookups",
			Help: "Response cache lookups by result.",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "greater_rate_limited_counts",
			Help: "Requests refused by the limiter or the remote server.",
		}, []string{"source"}),
		offlineQueue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "greater_offline_queue_length",
			Help: "Posts waiting in the offline queue.",
		}, []string{"state"}),
		offlineSynced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "greater_offline_sync_counts",
			Help: "Offline post delivery attempts by outcome.",
		}, []string{"outcome"}),
		streamReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "greater_stream_reconnect_counts",
			Help: "Scheduled stream reconnects by transport.",
		}, []string{"transport"}),
		streamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "greater_stream_event_counts",
			Help: "Stream events received by event type.",
		}, []string{"event"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "greater_http_request_counts",
			Help: "Gateway HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       "greater_http_request_duration_seconds",
			Help:       "Gateway HTTP request durations in seconds.",
			Objectives: map[float64]float64{0.5: 0.05, 0.99: 0.001},
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "greater_gateway_errors_total",
			Help: "Gateway error responses by code and HTTP status.",
		}, []string{"error_code", "http_status"}),
		panicsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "greater_gateway_panics_total",
			Help: "Recovered gateway panics.",
		}),
		startTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "greater_start_time_seconds",
			Help: "Process start time in unix seconds.",
		}),
	}

	m.registry.MustRegister(
		m.requestCount,
		m.requestDuration,
		m.cacheLookups,
		m.rateLimited,
		m.offlineQueue,
		m.offlineSynced,
		m.streamReconnects,
		m.streamEvents,
		m.httpRequests,
		m.httpDuration,
		m.errorsTotal,
		m.panicsTotal,
		m.startTime,
	)
	m.startTime.Set(float64(time.Now().Unix()))
	return m
}

// DefaultMetrics returns the process-wide collectors.
func DefaultMetrics() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.InstrumentMetricHandler(
		m.registry, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}),
	)
}

func (m *Metrics) ObserveRequest(method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestCount.With(prometheus.Labels{"method": method, "status": status}).Inc()
	m.requestDuration.With(prometheus.Labels{"method": method}).Observe(d.Seconds())
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.With(prometheus.Labels{"result": result}).Inc()
}

// RateLimited counts a refusal; source is "local" or "remote".
func (m *Metrics) RateLimited(source string) {
	if m == nil {
		return
	}
	m.rateLimited.With(prometheus.Labels{"source": source}).Inc()
}

func (m *Metrics) SetOfflineQueue(pending, failed int) {
	if m == nil {
		return
	}
	m.offlineQueue.With(prometheus.Labels{"state": "pending"}).Set(float64(pending))
	m.offlineQueue.With(prometheus.Labels{"state": "failed"}).Set(float64(failed))
}

func (m *Metrics) OfflineSync(outcome string) {
	if m == nil {
		return
	}
	m.offlineSynced.With(prometheus.Labels{"outcome": outcome}).Inc()
}

func (m *Metrics) StreamReconnect(transport string) {
	if m == nil {
		return
	}
	m.streamReconnects.With(prometheus.Labels{"transport": transport}).Inc()
}

func (m *Metrics) StreamEvent(event string) {
	if m == nil {
		return
	}
	m.streamEvents.With(prometheus.Labels{"event": event}).Inc()
}

// ObserveHTTP records one gateway request. route is the chi route pattern,
// never the raw path.
func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.With(prometheus.Labels{"method": method, "route": route, "status": status}).Inc()
	m.httpDuration.With(prometheus.Labels{"method": method, "route": route}).Observe(d.Seconds())
}

func (m *Metrics) GatewayError(code, httpStatus string) {
	if m == nil {
		return
	}
	m.errorsTotal.With(prometheus.Labels{"error_code": code, "http_status": httpStatus}).Inc()
}

func (m *Metrics) GatewayPanic() {
	if m == nil {
		return
	}
	m.panicsTotal.Inc()
}
