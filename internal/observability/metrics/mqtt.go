package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MQTTMetrics contains all Prometheus metrics related to MQTT operations.
type MQTTMetrics struct {
	ConnectionStatus  prometheus.Gauge
	MessagesDelivered prometheus.Counter
	Errors            prometheus.Counter
	ReconnectAttempts prometheus.Counter
	LastConnectTime   prometheus.Gauge
	MessageSize       prometheus.Histogram
	PublishLatency    prometheus.Histogram
	registry          *prometheus.Registry
}

// NewMQTTMetrics creates a new instance of MQTTMetrics.
// It requires a Prometheus registry to register the metrics.
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
	}
	return m, nil
}

func (m *MQTTMetrics) initMetrics() {
	m.ConnectionStatus = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "mqtt_connection_status",
		Help:      "Current MQTT connection status (1 for connected, 0 for disconnected)",
	})

	m.MessagesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "mqtt_messages_delivered_total",
		Help:      "Total number of MQTT messages successfully delivered",
	})

	m.Errors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "mqtt_errors_total",
		Help:      "Total number of MQTT errors encountered",
	})

	m.ReconnectAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "mqtt_reconnect_attempts_total",
		Help:      "Total number of MQTT reconnection attempts",
	})

	m.LastConnectTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "mqtt_last_connect_time_seconds",
		Help:      "Timestamp of the last successful MQTT connection",
	})

	m.MessageSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "mqtt_message_size_bytes",
		Help:      "Size of MQTT messages in bytes",
		Buckets:   prometheus.ExponentialBuckets(64, 2, 8),
	})

	m.PublishLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "mqtt_publish_latency_seconds",
		Help:      "Latency of MQTT publish operations in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
	})
}

// UpdateConnectionStatus updates the connection gauge and, when connected,
// the last connect time.
func (m *MQTTMetrics) UpdateConnectionStatus(connected bool) {
	if connected {
		m.ConnectionStatus.Set(1)
		m.LastConnectTime.SetToCurrentTime()
	} else {
		m.ConnectionStatus.Set(0)
	}
}

func (m *MQTTMetrics) IncrementMessagesDelivered() { m.MessagesDelivered.Inc() }

func (m *MQTTMetrics) IncrementErrors() { m.Errors.Inc() }

func (m *MQTTMetrics) IncrementReconnectAttempts() { m.ReconnectAttempts.Inc() }

// ObserveMessageSize records the size of a published payload.
func (m *MQTTMetrics) ObserveMessageSize(sizeBytes float64) {
	m.MessageSize.Observe(sizeBytes)
}

// StartPublishTimer starts a timer for measuring publish latency.
func (m *MQTTMetrics) StartPublishTimer() *PublishTimer {
	return &PublishTimer{startTime: time.Now(), metrics: m}
}

// PublishTimer measures publish latency.
type PublishTimer struct {
	startTime time.Time
	metrics   *MQTTMetrics
}

// ObserveDuration stops the timer and records the duration.
func (pt *PublishTimer) ObserveDuration() {
	pt.metrics.PublishLatency.Observe(time.Since(pt.startTime).Seconds())
}

// Describe implements the prometheus.Collector interface.
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.ConnectionStatus.Describe(ch)
	m.MessagesDelivered.Describe(ch)
	m.Errors.Describe(ch)
	m.ReconnectAttempts.Describe(ch)
	m.LastConnectTime.Describe(ch)
	m.MessageSize.Describe(ch)
	m.PublishLatency.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.ConnectionStatus
	ch <- m.MessagesDelivered
	ch <- m.Errors
	ch <- m.ReconnectAttempts
	ch <- m.LastConnectTime
	ch <- m.MessageSize
	ch <- m.PublishLatency
}

// Connected returns the connection gauge value.
func (m *MQTTMetrics) Connected() bool {
	return gaugeValue(m.ConnectionStatus) == 1
}
