package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// TunerMetrics contains Prometheus metrics for the tuning pipeline.
type TunerMetrics struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	errors     *prometheus.CounterVec

	listening prometheus.Gauge
	frequency prometheus.Gauge
	detune    prometheus.Gauge

	registry *prometheus.Registry
}

// NewTunerMetrics creates and registers the tuner metrics.
func NewTunerMetrics(registry *prometheus.Registry) (*TunerMetrics, error) {
	m := &TunerMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register tuner metrics: %w", err)
	}
	return m, nil
}

func (m *TunerMetrics) initMetrics() {
	m.operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tuner_operations_total",
			Help:      "Total number of tuner operations by outcome",
		},
		[]string{"operation", "status"}, // operation: tick, estimate, open; status: success, pitch, no_pitch
	)

	m.durations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "tuner_operation_duration_seconds",
			Help:      "Time taken by tuner operations",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
		},
		[]string{"operation"},
	)

	m.errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tuner_errors_total",
			Help:      "Total number of tuner errors by type",
		},
		[]string{"operation", "error_type"},
	)

	m.listening = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "tuner_listening",
		Help:      "1 while the tuner is listening, 0 otherwise",
	})

	m.frequency = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "tuner_frequency_hz",
		Help:      "Most recent detected frequency, 0 when no pitch",
	})

	m.detune = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "tuner_detune_cents",
		Help:      "Cents deviation of the most recent note",
	})
}

func (m *TunerMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.operations,
		m.durations,
		m.errors,
		m.listening,
		m.frequency,
		m.detune,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *TunerMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *TunerMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// RecordOperation implements Recorder.
func (m *TunerMetrics) RecordOperation(operation, status string) {
	m.operations.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *TunerMetrics) RecordDuration(operation string, seconds float64) {
	m.durations.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *TunerMetrics) RecordError(operation, errorType string) {
	m.errors.WithLabelValues(operation, errorType).Inc()
}

// SetListening updates the listening gauge.
func (m *TunerMetrics) SetListening(listening bool) {
	if listening {
		m.listening.Set(1)
		return
	}
	m.listening.Set(0)
	m.frequency.Set(0)
	m.detune.Set(0)
}

// ObserveNote records the latest estimate. A zero frequency means no pitch.
func (m *TunerMetrics) ObserveNote(frequency, detune float64) {
	m.frequency.Set(frequency)
	m.detune.Set(detune)
}

// OperationCount returns the counter value for operation and status.
func (m *TunerMetrics) OperationCount(operation, status string) float64 {
	metric := &dto.Metric{}
	if err := m.operations.WithLabelValues(operation, status).Write(metric); err != nil {
		return 0
	}
	if metric.Counter != nil && metric.Counter.Value != nil {
		return *metric.Counter.Value
	}
	return 0
}

// Listening returns the listening gauge value.
func (m *TunerMetrics) Listening() float64 {
	return gaugeValue(m.listening)
}

func gaugeValue(g prometheus.Gauge) float64 {
	metric := &dto.Metric{}
	if err := g.Write(metric); err != nil {
		return 0
	}
	if metric.Gauge != nil && metric.Gauge.Value != nil {
		return *metric.Gauge.Value
	}
	return 0
}
