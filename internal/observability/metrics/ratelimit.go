// Package metrics provides rate limiter metrics for observability
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// RateLimitMetrics contains Prometheus metrics for the per-resource token buckets.
type RateLimitMetrics struct {
	registry *prometheus.Registry

	acquiresTotal *prometheus.CounterVec
	waitDuration  prometheus.Histogram
	resourceCount prometheus.Gauge

	collectors []prometheus.Collector
}

// NewRateLimitMetrics creates a new instance of RateLimitMetrics.
func NewRateLimitMetrics(registry *prometheus.Registry) (*RateLimitMetrics, error) {
	m := &RateLimitMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize ratelimit metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register ratelimit metrics: %w", err)
	}
	return m, nil
}

func (m *RateLimitMetrics) initMetrics() error {
	m.acquiresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_acquires_total",
			Help: "Total number of token acquisitions by outcome",
		},
		[]string{"status"}, // status: immediate, delayed, cancelled
	)

	m.waitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ratelimit_wait_duration_seconds",
		Help:    "Time spent waiting for a token",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15),
	})

	m.resourceCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ratelimit_resources",
		Help: "Number of resources with an allocated token bucket",
	})

	m.collectors = []prometheus.Collector{
		m.acquiresTotal,
		m.waitDuration,
		m.resourceCount,
	}

	return nil
}

// Describe implements the Collector interface
func (m *RateLimitMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *RateLimitMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordAcquire records one token acquisition and its wait time.
func (m *RateLimitMetrics) RecordAcquire(status string, waitSeconds float64) {
	m.acquiresTotal.WithLabelValues(status).Inc()
	m.waitDuration.Observe(waitSeconds)
}

// SetResourceCount updates the allocated bucket gauge.
func (m *RateLimitMetrics) SetResourceCount(count int) {
	m.resourceCount.Set(float64(count))
}
