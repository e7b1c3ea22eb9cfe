// Package metrics provides camera registry metrics for observability
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// CameraMetrics contains Prometheus metrics for camera snapshot and playback operations.
type CameraMetrics struct {
	registry *prometheus.Registry

	snapshotsTotal   *prometheus.CounterVec
	snapshotLatency  prometheus.Histogram
	snapshotBytes    prometheus.Histogram
	playbackTotal    *prometheus.CounterVec
	healthyCameras   prometheus.Gauge
	unhealthyCameras prometheus.Gauge

	collectors []prometheus.Collector
}

// NewCameraMetrics creates a new instance of CameraMetrics.
func NewCameraMetrics(registry *prometheus.Registry) (*CameraMetrics, error) {
	m := &CameraMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize camera metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register camera metrics: %w", err)
	}
	return m, nil
}

func (m *CameraMetrics) initMetrics() error {
	m.snapshotsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camera_snapshots_total",
			Help: "Total number of snapshot fetches by integration and outcome",
		},
		[]string{"integration", "status"}, // status: success, error, rate_limited
	)

	m.snapshotLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "camera_snapshot_latency_seconds",
		Help:    "Latency of snapshot fetches including retries",
		Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount15),
	})

	m.snapshotBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "camera_snapshot_size_bytes",
		Help:    "Size of fetched snapshots in bytes",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
	})

	m.playbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "camera_playback_total",
			Help: "Total number of on-camera sound playback attempts",
		},
		[]string{"status"}, // status: success, error, unsupported
	)

	m.healthyCameras = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "camera_healthy_count",
		Help: "Number of cameras with no recent errors",
	})

	m.unhealthyCameras = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "camera_unhealthy_count",
		Help: "Number of cameras with recent errors",
	})

	m.collectors = []prometheus.Collector{
		m.snapshotsTotal,
		m.snapshotLatency,
		m.snapshotBytes,
		m.playbackTotal,
		m.healthyCameras,
		m.unhealthyCameras,
	}

	return nil
}

// Describe implements the Collector interface
func (m *CameraMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *CameraMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordSnapshot records one snapshot fetch attempt.
func (m *CameraMetrics) RecordSnapshot(integration, status string, latencySeconds float64) {
	m.snapshotsTotal.WithLabelValues(integration, status).Inc()
	m.snapshotLatency.Observe(latencySeconds)
}

// ObserveSnapshotSize records the size of a fetched snapshot.
func (m *CameraMetrics) ObserveSnapshotSize(sizeBytes float64) {
	m.snapshotBytes.Observe(sizeBytes)
}

// RecordPlayback records one on-camera playback attempt.
func (m *CameraMetrics) RecordPlayback(status string) {
	m.playbackTotal.WithLabelValues(status).Inc()
}

// UpdateHealthCounts updates the camera health gauges from a diagnostics rollup.
func (m *CameraMetrics) UpdateHealthCounts(healthy, unhealthy int) {
	m.healthyCameras.Set(float64(healthy))
	m.unhealthyCameras.Set(float64(unhealthy))
}
