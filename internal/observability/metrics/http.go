package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics contains Prometheus metrics for the HTTP API.
type HTTPMetrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	sseActiveConnections  prometheus.Gauge
	sseTotalConnections   *prometheus.CounterVec
	sseConnectionDuration *prometheus.HistogramVec
	sseMessagesSent       *prometheus.CounterVec
}

// NewHTTPMetrics creates and registers HTTP metrics.
func NewHTTPMetrics(registry *prometheus.Registry) (*HTTPMetrics, error) {
	m := &HTTPMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *HTTPMetrics) initMetrics() {
	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"}, // path is the route pattern, not the raw URL
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Time taken for HTTP requests",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.sseActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "sse_active_connections",
		Help:      "Number of open SSE streams",
	})

	m.sseTotalConnections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sse_connections_total",
			Help:      "SSE connections by lifecycle event",
		},
		[]string{"endpoint", "status"},
	)

	m.sseConnectionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "sse_connection_duration_seconds",
			Help:      "Lifetime of SSE connections",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"endpoint"},
	)

	m.sseMessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sse_messages_sent_total",
			Help:      "SSE messages sent by type",
		},
		[]string{"endpoint", "message_type"},
	)
}

func (m *HTTPMetrics) getCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.sseActiveConnections,
		m.sseTotalConnections,
		m.sseConnectionDuration,
		m.sseMessagesSent,
	}
}

// Describe implements the Collector interface
func (m *HTTPMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.getCollectors() {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *HTTPMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.getCollectors() {
		collector.Collect(ch)
	}
}

// RecordHTTPRequest records an HTTP request
func (m *HTTPMetrics) RecordHTTPRequest(method, path string, statusCode int, duration float64) {
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// SSE connection close reasons. Unknown reasons are recorded as error.
const (
	SSECloseReasonClosed   = "closed"
	SSECloseReasonCanceled = "canceled"
	SSECloseReasonError    = "error"
)

// SSEConnectionStarted increments active connections and total connections counter
func (m *HTTPMetrics) SSEConnectionStarted(endpoint string) {
	m.sseActiveConnections.Inc()
	m.sseTotalConnections.WithLabelValues(endpoint, "established").Inc()
}

// SSEConnectionClosed decrements active connections and records duration.
func (m *HTTPMetrics) SSEConnectionClosed(endpoint string, duration float64, reason string) {
	switch reason {
	case SSECloseReasonClosed, SSECloseReasonCanceled, SSECloseReasonError:
	default:
		reason = SSECloseReasonError
	}

	m.sseActiveConnections.Dec()
	m.sseTotalConnections.WithLabelValues(endpoint, reason).Inc()
	m.sseConnectionDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordSSEMessageSent records an SSE message sent
func (m *HTTPMetrics) RecordSSEMessageSent(endpoint, messageType string) {
	m.sseMessagesSent.WithLabelValues(endpoint, messageType).Inc()
}

// GetActiveSSEConnections returns the current number of active SSE connections
func (m *HTTPMetrics) GetActiveSSEConnections() float64 {
	return gaugeValue(m.sseActiveConnections)
}
