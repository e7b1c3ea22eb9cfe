// Package metrics provides detection worker metrics for observability
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics contains Prometheus metrics for the detection worker loop.
type EngineMetrics struct {
	registry *prometheus.Registry

	ticksTotal             prometheus.Counter
	tickDuration           prometheus.Histogram
	subtasksTotal          *prometheus.CounterVec
	subtaskDuration        prometheus.Histogram
	activeCameras          prometheus.Gauge
	deterrenceSkippedTotal *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewEngineMetrics creates a new instance of EngineMetrics.
func NewEngineMetrics(registry *prometheus.Registry) (*EngineMetrics, error) {
	m := &EngineMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize engine metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register engine metrics: %w", err)
	}
	return m, nil
}

func (m *EngineMetrics) initMetrics() error {
	m.ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engine_ticks_total",
		Help: "Total number of detection ticks executed",
	})

	m.tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "engine_tick_duration_seconds",
		Help:    "Wall-clock duration of one detection tick including all camera subtasks",
		Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount15),
	})

	m.subtasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_camera_subtasks_total",
			Help: "Total number of per-camera subtasks by outcome",
		},
		[]string{"status"}, // status: ok, no_detection, error, panic
	)

	m.subtaskDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "engine_camera_subtask_duration_seconds",
		Help:    "Duration of one per-camera subtask",
		Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount15),
	})

	m.activeCameras = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "engine_active_cameras",
		Help: "Number of active cameras seen by the last tick",
	})

	m.deterrenceSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_deterrence_skipped_total",
			Help: "Total number of detections where deterrence was skipped",
		},
		[]string{"reason"}, // reason: disabled, quiet_hours, no_sounds, unknown_foe
	)

	m.collectors = []prometheus.Collector{
		m.ticksTotal,
		m.tickDuration,
		m.subtasksTotal,
		m.subtaskDuration,
		m.activeCameras,
		m.deterrenceSkippedTotal,
	}

	return nil
}

// Describe implements the Collector interface
func (m *EngineMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *EngineMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// IncrementTicks increments the tick counter.
func (m *EngineMetrics) IncrementTicks() {
	m.ticksTotal.Inc()
}

// ObserveTickDuration records the duration of one tick in seconds.
func (m *EngineMetrics) ObserveTickDuration(seconds float64) {
	m.tickDuration.Observe(seconds)
}

// RecordSubtask records the outcome of one per-camera subtask.
func (m *EngineMetrics) RecordSubtask(status string, seconds float64) {
	m.subtasksTotal.WithLabelValues(status).Inc()
	m.subtaskDuration.Observe(seconds)
}

// SetActiveCameras updates the active-camera gauge.
func (m *EngineMetrics) SetActiveCameras(count int) {
	m.activeCameras.Set(float64(count))
}

// RecordDeterrenceSkipped counts a skipped deterrence flow by reason.
func (m *EngineMetrics) RecordDeterrenceSkipped(reason string) {
	m.deterrenceSkippedTotal.WithLabelValues(reason).Inc()
}
