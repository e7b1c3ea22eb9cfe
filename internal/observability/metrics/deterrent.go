// Package metrics provides deterrent selection and playback metrics for observability
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// DeterrentMetrics contains Prometheus metrics for sound selection and playback.
type DeterrentMetrics struct {
	registry *prometheus.Registry

	playsTotal      *prometheus.CounterVec
	selectionsTotal *prometheus.CounterVec
	soundInventory  *prometheus.GaugeVec

	collectors []prometheus.Collector
}

// NewDeterrentMetrics creates a new instance of DeterrentMetrics.
func NewDeterrentMetrics(registry *prometheus.Registry) (*DeterrentMetrics, error) {
	m := &DeterrentMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize deterrent metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register deterrent metrics: %w", err)
	}
	return m, nil
}

func (m *DeterrentMetrics) initMetrics() error {
	m.playsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deterrent_plays_total",
			Help: "Total number of deterrent sound playbacks by method and outcome",
		},
		[]string{"method", "status"}, // method: camera, local; status: success, error
	)

	m.selectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deterrent_selections_total",
			Help: "Total number of sound selections by strategy",
		},
		[]string{"strategy"}, // strategy: exploit, explore, random
	)

	m.soundInventory = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "deterrent_sound_inventory",
			Help: "Number of available sound files per pest kind",
		},
		[]string{"pest"},
	)

	m.collectors = []prometheus.Collector{
		m.playsTotal,
		m.selectionsTotal,
		m.soundInventory,
	}

	return nil
}

// Describe implements the Collector interface
func (m *DeterrentMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *DeterrentMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordPlay records one playback attempt.
func (m *DeterrentMetrics) RecordPlay(method, status string) {
	m.playsTotal.WithLabelValues(method, status).Inc()
}

// RecordSelection records which strategy picked the sound.
func (m *DeterrentMetrics) RecordSelection(strategy string) {
	m.selectionsTotal.WithLabelValues(strategy).Inc()
}

// SetSoundInventory updates the per-pest sound inventory gauge.
func (m *DeterrentMetrics) SetSoundInventory(pest string, count int) {
	m.soundInventory.WithLabelValues(pest).Set(float64(count))
}
