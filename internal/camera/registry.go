package camera

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tphakala/pestguard-go/internal/conf"
	"github.com/tphakala/pestguard-go/internal/datastore"
	"github.com/tphakala/pestguard-go/internal/diagnostics"
	"github.com/tphakala/pestguard-go/internal/errors"
	"github.com/tphakala/pestguard-go/internal/logging"
	"github.com/tphakala/pestguard-go/internal/observability/metrics"
)

var logger *slog.Logger

func init() {
	logger = logging.ForService("camera")
}

// handlerEntry is one cached adapter with its active user count.
type handlerEntry struct {
	handler Handler
	refs    int
}

// Registry owns the provider adapters and the camera inventory. Adapters are
// created lazily per integration, cached, and reference-counted so concurrent
// subtasks share one pooled HTTP client per provider.
type Registry struct {
	ds        datastore.Interface
	tracker   *diagnostics.Tracker
	factories map[string]HandlerFactory

	mu      sync.Mutex
	entries map[uint]*handlerEntry
	metrics *metrics.CameraMetrics
}

// NewRegistry creates a registry over the given datastore. The factories map
// binds integration kind tags to their adapter constructors.
func NewRegistry(ds datastore.Interface, tracker *diagnostics.Tracker, factories map[string]HandlerFactory) *Registry {
	return &Registry{
		ds:        ds,
		tracker:   tracker,
		factories: factories,
		entries:   make(map[uint]*handlerEntry),
	}
}

// SetMetrics wires the camera metrics collector.
func (r *Registry) SetMetrics(m *metrics.CameraMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = m
}

func (r *Registry) cameraMetrics() *metrics.CameraMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics
}

// acquire returns the cached adapter for an integration, creating it on first
// use, and bumps its reference count.
func (r *Registry) acquire(integration *datastore.Integration) (Handler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[integration.ID]; ok {
		entry.refs++
		return entry.handler, nil
	}

	factory, ok := r.factories[integration.Kind]
	if !ok {
		return nil, errors.Newf("no adapter registered for integration kind %q", integration.Kind).
			Component("camera").
			Category(errors.CategoryIntegration).
			Context("integration", integration.Name).
			Build()
	}

	entry := &handlerEntry{handler: factory(integration.Host, integration.APIKey), refs: 1}
	r.entries[integration.ID] = entry
	logger.Debug("Created integration adapter", "integration", integration.Name, "kind", integration.Kind)
	return entry.handler, nil
}

// release drops one reference. Idle adapters stay cached until Cleanup.
func (r *Registry) release(integrationID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[integrationID]; ok && entry.refs > 0 {
		entry.refs--
	}
}

// Cleanup closes and drops every cached adapter. Called on engine shutdown.
func (r *Registry) Cleanup() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[uint]*handlerEntry)
	r.mu.Unlock()

	for id, entry := range entries {
		if closer, ok := entry.handler.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				logger.Warn("Failed to close integration adapter", "integration_id", id, "error", err)
			}
		}
	}
}

// SyncIntegrations reconciles the configured integrations into the datastore:
// it upserts the integration rows, probes each enabled provider, and syncs the
// provider's device list into the cameras table. Errors on one integration do
// not stop the others.
func (r *Registry) SyncIntegrations(ctx context.Context, configs []conf.IntegrationConfig) error {
	var lastErr error

	for i := range configs {
		cfg := &configs[i]
		if cfg.Name == "" {
			continue
		}
		if err := r.syncIntegration(ctx, cfg); err != nil {
			logger.Error("Integration sync failed", "integration", cfg.Name, "error", err)
			lastErr = err
		}
	}
	return lastErr
}

func (r *Registry) syncIntegration(ctx context.Context, cfg *conf.IntegrationConfig) error {
	integration, err := r.ds.GetIntegrationByName(cfg.Name)
	if err != nil && !datastore.IsNotFound(err) {
		return err
	}

	integration.Name = cfg.Name
	integration.Kind = cfg.Kind
	integration.Host = cfg.Host
	integration.APIKey = cfg.APIKey
	integration.Enabled = cfg.Enabled
	if err := r.ds.SaveIntegration(&integration); err != nil {
		return err
	}

	if !cfg.Enabled {
		return r.ds.UpdateIntegrationStatus(integration.ID, "disconnected")
	}

	handler, err := r.acquire(&integration)
	if err != nil {
		return err
	}
	defer r.release(integration.ID)

	if err := handler.TestConnection(ctx); err != nil {
		if statusErr := r.ds.UpdateIntegrationStatus(integration.ID, "error"); statusErr != nil {
			logger.Error("Failed to record integration status", "integration", cfg.Name, "error", statusErr)
		}
		return err
	}

	devices, err := handler.ListDevices(ctx)
	if err != nil {
		if statusErr := r.ds.UpdateIntegrationStatus(integration.ID, "error"); statusErr != nil {
			logger.Error("Failed to record integration status", "integration", cfg.Name, "error", statusErr)
		}
		return err
	}

	cams := make([]datastore.Camera, 0, len(devices))
	for _, d := range devices {
		status := "offline"
		if d.Online {
			status = "online"
		}
		cams = append(cams, datastore.Camera{
			IntegrationID: integration.ID,
			Name:          d.Name,
			ProviderID:    d.ProviderID,
			Model:         d.Model,
			Status:        status,
			HasSpeaker:    d.HasSpeaker,
			RTSPURL:       d.RTSPURL,
			Enabled:       true,
		})
	}
	if err := r.ds.SyncCameras(integration.ID, cams); err != nil {
		return err
	}

	logger.Info("Integration synced", "integration", cfg.Name, "devices", len(cams))
	return r.ds.UpdateIntegrationStatus(integration.ID, "connected")
}

// ActiveCameras returns the enabled, non-deleted cameras across all
// integrations.
func (r *Registry) ActiveCameras() ([]datastore.Camera, error) {
	return r.ds.ActiveCameras()
}

// CaptureSnapshot fetches a still image from one camera. Failures are
// recorded in the diagnostics tracker under the camera's name.
func (r *Registry) CaptureSnapshot(ctx context.Context, cam *datastore.Camera) ([]byte, error) {
	integration, err := r.ds.GetIntegration(cam.IntegrationID)
	if err != nil {
		return nil, err
	}

	handler, err := r.acquire(&integration)
	if err != nil {
		return nil, err
	}
	defer r.release(integration.ID)

	device, err := handler.Device(cam.ProviderID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := device.Snapshot(ctx)
	elapsed := time.Since(start).Seconds()

	if m := r.cameraMetrics(); m != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		m.RecordSnapshot(integration.Name, status, elapsed)
		if err == nil {
			m.ObserveSnapshotSize(float64(len(data)))
		}
	}

	if err != nil {
		if r.tracker != nil {
			r.tracker.Record(cam.Name, errorKind(err), err.Error())
		}
		return nil, err
	}
	return data, nil
}

// PlaySoundOnCamera plays an audio file through the camera speaker. The
// device must advertise a speaker and its adapter must support playback.
func (r *Registry) PlaySoundOnCamera(ctx context.Context, cam *datastore.Camera, path string, maxDuration time.Duration) error {
	if !cam.HasSpeaker {
		return errors.Newf("camera %s has no speaker", cam.Name).
			Component("camera").
			Category(errors.CategoryValidation).
			CameraContext(cam.ID, cam.Name).
			Build()
	}

	integration, err := r.ds.GetIntegration(cam.IntegrationID)
	if err != nil {
		return err
	}

	handler, err := r.acquire(&integration)
	if err != nil {
		return err
	}
	defer r.release(integration.ID)

	device, err := handler.Device(cam.ProviderID)
	if err != nil {
		return err
	}

	player, ok := device.(SoundPlayer)
	if !ok {
		return errors.Newf("integration %s cannot play sounds on devices", integration.Name).
			Component("camera").
			Category(errors.CategoryDeterrent).
			CameraContext(cam.ID, cam.Name).
			Build()
	}

	err = player.PlaySound(ctx, path, maxDuration)
	if m := r.cameraMetrics(); m != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		m.RecordPlayback(status)
	}
	if err != nil && r.tracker != nil {
		r.tracker.Record(cam.Name, errorKind(err), err.Error())
	}
	return err
}

// ErrorKind classifies an adapter error into the short kind tags the
// diagnostics rules match on.
func ErrorKind(err error) string {
	return errorKind(err)
}

func errorKind(err error) string {
	var enhanced *errors.EnhancedError
	if errors.As(err, &enhanced) {
		if code, ok := enhanced.Context["status_code"]; ok {
			return fmt.Sprintf("HTTP %v", code)
		}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(msg, "context canceled"):
		return "cancelled"
	default:
		return "network"
	}
}
