// Package metrics provides effectiveness tracking metrics for observability
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// EffectivenessMetrics contains Prometheus metrics for deterrence outcome measurements.
type EffectivenessMetrics struct {
	registry *prometheus.Registry

	outcomesTotal  *prometheus.CounterVec
	scores         prometheus.Histogram
	recordDuration prometheus.Histogram

	collectors []prometheus.Collector
}

// NewEffectivenessMetrics creates a new instance of EffectivenessMetrics.
func NewEffectivenessMetrics(registry *prometheus.Registry) (*EffectivenessMetrics, error) {
	m := &EffectivenessMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize effectiveness metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register effectiveness metrics: %w", err)
	}
	return m, nil
}

func (m *EffectivenessMetrics) initMetrics() error {
	m.outcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "effectiveness_outcomes_total",
			Help: "Total number of recorded deterrence outcomes by pest and result",
		},
		[]string{"pest", "result"}, // result: SUCCESS, PARTIAL, FAILURE
	)

	m.scores = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "effectiveness_score",
		Help:    "Distribution of effectiveness scores",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})

	m.recordDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "effectiveness_record_duration_seconds",
		Help:    "Time taken to record one outcome including aggregate updates",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount10),
	})

	m.collectors = []prometheus.Collector{
		m.outcomesTotal,
		m.scores,
		m.recordDuration,
	}

	return nil
}

// Describe implements the Collector interface
func (m *EffectivenessMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *EffectivenessMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordOutcome records one measured deterrence outcome.
func (m *EffectivenessMetrics) RecordOutcome(pest, result string, score float64) {
	m.outcomesTotal.WithLabelValues(pest, result).Inc()
	m.scores.Observe(score)
}

// ObserveRecordDuration records the time spent persisting one outcome.
func (m *EffectivenessMetrics) ObserveRecordDuration(seconds float64) {
	m.recordDuration.Observe(seconds)
}
