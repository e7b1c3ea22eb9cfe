// Package observability provides metrics and monitoring capabilities for the PestGuard engine.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tphakala/pestguard-go/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry      *prometheus.Registry
	Engine        *metrics.EngineMetrics
	Camera        *metrics.CameraMetrics
	Media         *metrics.MediaMetrics
	Deterrent     *metrics.DeterrentMetrics
	Effectiveness *metrics.EffectivenessMetrics
	Datastore     *metrics.DatastoreMetrics
	RateLimit     *metrics.RateLimitMetrics
	MQTT          *metrics.MQTTMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric collectors.
// It returns an error if any metric collector fails to initialize.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	engineMetrics, err := metrics.NewEngineMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine metrics: %w", err)
	}

	cameraMetrics, err := metrics.NewCameraMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create camera metrics: %w", err)
	}

	mediaMetrics, err := metrics.NewMediaMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create media metrics: %w", err)
	}

	deterrentMetrics, err := metrics.NewDeterrentMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create deterrent metrics: %w", err)
	}

	effectivenessMetrics, err := metrics.NewEffectivenessMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create effectiveness metrics: %w", err)
	}

	datastoreMetrics, err := metrics.NewDatastoreMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create datastore metrics: %w", err)
	}

	rateLimitMetrics, err := metrics.NewRateLimitMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit metrics: %w", err)
	}

	mqttMetrics, err := metrics.NewMQTTMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}

	m := &Metrics{
		registry:      registry,
		Engine:        engineMetrics,
		Camera:        cameraMetrics,
		Media:         mediaMetrics,
		Deterrent:     deterrentMetrics,
		Effectiveness: effectivenessMetrics,
		Datastore:     datastoreMetrics,
		RateLimit:     rateLimitMetrics,
		MQTT:          mqttMetrics,
	}

	return m, nil
}

// Handler returns the HTTP handler serving the metrics registry.
// The ops server mounts it at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.ContinueOnError,
	})
}
