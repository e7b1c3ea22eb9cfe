// Package media owns snapshot acquisition, RTSP video capture and the
// retention sweeper. Snapshot fetches go through the shared rate limiter so
// one misbehaving camera cannot starve an integration; video capture shells
// out to ffmpeg with a hard deadline.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tphakala/pestguard-go/internal/datastore"
	"github.com/tphakala/pestguard-go/internal/errors"
	"github.com/tphakala/pestguard-go/internal/logging"
	"github.com/tphakala/pestguard-go/internal/ratelimit"
	"github.com/tphakala/pestguard-go/internal/settings"
)

var logger *slog.Logger

func init() {
	logger = logging.ForService("media")
}

// snapshotSource is the camera-side capture operation the fetcher wraps.
// Satisfied by *camera.Registry.
type snapshotSource interface {
	CaptureSnapshot(ctx context.Context, cam *datastore.Camera) ([]byte, error)
}

const (
	// throttledAttempts is the attempt cap when the provider answers 429.
	throttledAttempts = 3
	// linearRetryDelay is the single retry delay for non-throttle failures.
	linearRetryDelay = 2 * time.Second
)

// SnapshotFetcher acquires snapshots through the rate limiter with
// throttle-aware retries and enforces the configured image size cap.
type SnapshotFetcher struct {
	source  snapshotSource
	limiter *ratelimit.Limiter
	store   *settings.Store
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewSnapshotFetcher wires the fetcher over a capture source.
func NewSnapshotFetcher(source snapshotSource, limiter *ratelimit.Limiter, store *settings.Store) *SnapshotFetcher {
	return &SnapshotFetcher{
		source:  source,
		limiter: limiter,
		store:   store,
		sleep:   sleepCtx,
	}
}

// Fetch grabs one snapshot from the camera. HTTP 429 responses back off
// exponentially for up to three attempts; any other failure gets a single
// linear retry. Images above the configured size cap are rejected.
func (f *SnapshotFetcher) Fetch(ctx context.Context, cam *datastore.Camera) ([]byte, error) {
	resource := fmt.Sprintf("integration/%d", cam.IntegrationID)

	var lastErr error
	for attempt := range throttledAttempts {
		if err := f.limiter.Acquire(ctx, resource); err != nil {
			return nil, err
		}

		data, err := f.source.CaptureSnapshot(ctx, cam)
		if err == nil {
			maxBytes := f.store.MaxImageSizeMB() * 1024 * 1024
			if len(data) > maxBytes {
				return nil, errors.Newf("snapshot of %d bytes exceeds the %d MB cap", len(data), f.store.MaxImageSizeMB()).
					Component("media").
					Category(errors.CategoryLimit).
					CameraContext(cam.ID, cam.Name).
					Build()
			}
			return data, nil
		}
		lastErr = err

		if httpStatus(err) == 429 {
			if attempt == throttledAttempts-1 {
				break
			}
			delay := time.Duration(2<<attempt) * time.Second
			logger.Debug("Provider throttled snapshot, backing off",
				"camera", cam.Name, "attempt", attempt+1, "delay", delay)
			if err := f.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		// Transient failures get exactly one linear retry.
		if attempt == 0 {
			logger.Debug("Snapshot failed, retrying once", "camera", cam.Name, "error", err)
			if err := f.sleep(ctx, linearRetryDelay); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	return nil, lastErr
}

// httpStatus extracts the HTTP status code carried by an adapter error, or 0.
func httpStatus(err error) int {
	var enhanced *errors.EnhancedError
	if !errors.As(err, &enhanced) {
		return 0
	}
	if code, ok := enhanced.Context["status_code"].(int); ok {
		return code
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
