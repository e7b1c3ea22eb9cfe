// Package metrics provides media capture and retention metrics for observability
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// MediaMetrics contains Prometheus metrics for video capture and media retention.
type MediaMetrics struct {
	registry *prometheus.Registry

	capturesTotal    *prometheus.CounterVec
	captureDuration  prometheus.Histogram
	sweeperDeletes   *prometheus.CounterVec
	diskUsagePercent prometheus.Gauge

	collectors []prometheus.Collector
}

// NewMediaMetrics creates a new instance of MediaMetrics.
func NewMediaMetrics(registry *prometheus.Registry) (*MediaMetrics, error) {
	m := &MediaMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize media metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register media metrics: %w", err)
	}
	return m, nil
}

func (m *MediaMetrics) initMetrics() error {
	m.capturesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_video_captures_total",
			Help: "Total number of RTSP video capture attempts",
		},
		[]string{"status"}, // status: success, timeout, error, skipped
	)

	m.captureDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "media_video_capture_duration_seconds",
		Help:    "Wall-clock duration of video capture subprocesses",
		Buckets: prometheus.LinearBuckets(5, 5, 10),
	})

	m.sweeperDeletes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_sweeper_deletes_total",
			Help: "Total number of media files removed by the retention sweeper",
		},
		[]string{"kind"}, // kind: snapshot, video
	)

	m.diskUsagePercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "media_disk_usage_percent",
		Help: "Disk usage of the media filesystem as observed by the sweeper",
	})

	m.collectors = []prometheus.Collector{
		m.capturesTotal,
		m.captureDuration,
		m.sweeperDeletes,
		m.diskUsagePercent,
	}

	return nil
}

// Describe implements the Collector interface
func (m *MediaMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *MediaMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordCapture records one video capture attempt.
func (m *MediaMetrics) RecordCapture(status string, seconds float64) {
	m.capturesTotal.WithLabelValues(status).Inc()
	if seconds > 0 {
		m.captureDuration.Observe(seconds)
	}
}

// RecordSweeperDelete counts one file removed by the retention sweeper.
func (m *MediaMetrics) RecordSweeperDelete(kind string) {
	m.sweeperDeletes.WithLabelValues(kind).Inc()
}

// SetDiskUsage updates the media filesystem usage gauge.
func (m *MediaMetrics) SetDiskUsage(percent float64) {
	m.diskUsagePercent.Set(percent)
}
