// Package camera abstracts the camera platform integrations behind a small
// handler/device interface pair and a registry that caches adapter instances
// per integration. The engine only ever talks to the registry; provider
// specifics live in the adapter subpackages.
package camera

import (
	"context"
	"time"
)

// DeviceInfo describes one camera as reported by an integration provider.
type DeviceInfo struct {
	ProviderID string
	Name       string
	Model      string
	Online     bool
	HasSpeaker bool
	RTSPURL    string
}

// Handler is the provider-level adapter for one configured integration.
type Handler interface {
	// TestConnection verifies the provider is reachable and the credentials
	// are accepted.
	TestConnection(ctx context.Context) error
	// ListDevices enumerates the cameras the provider knows about.
	ListDevices(ctx context.Context) ([]DeviceInfo, error)
	// Device returns the device-level operations for one camera.
	Device(providerID string) (Device, error)
}

// Device exposes the operations every camera supports.
type Device interface {
	Snapshot(ctx context.Context) ([]byte, error)
}

// SoundPlayer is implemented by devices that can play audio through a
// built-in speaker. Checked by interface assertion on Device.
type SoundPlayer interface {
	PlaySound(ctx context.Context, path string, maxDuration time.Duration) error
}

// TalkbackTester is implemented by devices that can verify their audio
// channel without playing a sound.
type TalkbackTester interface {
	TestTalkback(ctx context.Context) error
}

// HandlerFactory builds a provider adapter from connection settings. The
// registry holds one factory per integration kind.
type HandlerFactory func(host, apiKey string) Handler
