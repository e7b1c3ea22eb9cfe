// Package diagnostics tracks per-camera errors in bounded ring buffers and
// rolls them up into a health status. The engine records every final failure
// here; the ops API and the diag command read the rings back for
// troubleshooting.
package diagnostics

import (
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tphakala/pestguard-go/internal/logging"
)

// Package-level logger specific to camera diagnostics
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "diagnostics.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "diagnostics", serviceLevelVar.Level())
	if err != nil {
		log.Printf("Failed to initialize diagnostics file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "diagnostics")
		closeLogger = func() error { return nil }
	}
}

const (
	// ringCapacity bounds the per-camera error history.
	ringCapacity = 100
	// recentWindow is the lookback for the health rollup.
	recentWindow = 5 * time.Minute
	// fixLookback is how many records SuggestFixes inspects.
	fixLookback = 10
)

// ErrorRecord is one recorded camera failure.
type ErrorRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"` // e.g. "HTTP 500", "timeout", "rtsp"
	Detail    string    `json:"detail"`
}

// CameraHealth is the rollup for one camera.
type CameraHealth struct {
	CameraName   string    `json:"camera_name"`
	RecentErrors int       `json:"recent_errors"`
	Healthy      bool      `json:"healthy"`
	LastError    time.Time `json:"last_error,omitzero"`
}

// TransitionFunc is invoked when a camera crosses the healthy/unhealthy
// boundary. Used to feed notifications and health gauges.
type TransitionFunc func(cameraName string, healthy bool)

// ring is a fixed-capacity append-only buffer of error records.
type ring struct {
	records [ringCapacity]ErrorRecord
	next    int
	size    int
}

func (r *ring) append(rec ErrorRecord) {
	r.records[r.next] = rec
	r.next = (r.next + 1) % ringCapacity
	if r.size < ringCapacity {
		r.size++
	}
}

// newestFirst returns up to n records, most recent first.
func (r *ring) newestFirst(n int) []ErrorRecord {
	if n > r.size {
		n = r.size
	}
	out := make([]ErrorRecord, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, r.records[(r.next-i+ringCapacity)%ringCapacity])
	}
	return out
}

// Tracker holds the per-camera error rings.
type Tracker struct {
	mu           sync.Mutex
	rings        map[string]*ring
	wasHealthy   map[string]bool
	onTransition TransitionFunc
	now          func() time.Time // injectable clock for tests
}

// NewTracker creates an empty diagnostics tracker.
func NewTracker() *Tracker {
	return &Tracker{
		rings:      make(map[string]*ring),
		wasHealthy: make(map[string]bool),
		now:        time.Now,
	}
}

// OnTransition registers the health-transition callback.
func (t *Tracker) OnTransition(fn TransitionFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTransition = fn
}

// Record appends one error for a camera and fires the transition callback if
// the camera just became unhealthy.
func (t *Tracker) Record(cameraName, kind, detail string) {
	t.mu.Lock()

	r, ok := t.rings[cameraName]
	if !ok {
		r = &ring{}
		t.rings[cameraName] = r
		t.wasHealthy[cameraName] = true
	}
	r.append(ErrorRecord{Timestamp: t.now(), Kind: kind, Detail: detail})

	transitioned := t.wasHealthy[cameraName]
	t.wasHealthy[cameraName] = false
	fn := t.onTransition
	t.mu.Unlock()

	logger.Warn("Camera error recorded", "camera", cameraName, "kind", kind, "detail", detail)

	if transitioned && fn != nil {
		fn(cameraName, false)
	}
}

// RecentErrors returns up to limit records for one camera, newest first.
func (t *Tracker) RecentErrors(cameraName string, limit int) []ErrorRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.rings[cameraName]
	if !ok {
		return nil
	}
	return r.newestFirst(limit)
}

// HealthStatus rolls up error counts over the recent window for every camera
// the tracker has seen. A camera is healthy iff it has zero recent errors.
// Cameras that recovered since the last rollup fire the transition callback.
func (t *Tracker) HealthStatus() []CameraHealth {
	t.mu.Lock()

	cutoff := t.now().Add(-recentWindow)
	statuses := make([]CameraHealth, 0, len(t.rings))
	var recovered []string

	for name, r := range t.rings {
		status := CameraHealth{CameraName: name}
		for _, rec := range r.newestFirst(r.size) {
			if rec.Timestamp.After(cutoff) {
				status.RecentErrors++
				if rec.Timestamp.After(status.LastError) {
					status.LastError = rec.Timestamp
				}
			}
		}
		status.Healthy = status.RecentErrors == 0

		if status.Healthy && !t.wasHealthy[name] {
			t.wasHealthy[name] = true
			recovered = append(recovered, name)
		}
		statuses = append(statuses, status)
	}
	fn := t.onTransition
	t.mu.Unlock()

	if fn != nil {
		for _, name := range recovered {
			fn(name, true)
		}
	}
	return statuses
}

// SuggestFixes matches rules over the last ten records for a camera and
// returns operator advice. An empty slice means nothing stood out.
func (t *Tracker) SuggestFixes(cameraName string) []string {
	records := t.RecentErrors(cameraName, fixLookback)
	if len(records) == 0 {
		return nil
	}

	var fixes []string

	// Three consecutive HTTP 500 responses usually mean the device is down.
	consecutive500 := 0
	for _, rec := range records {
		if rec.Kind == "HTTP 500" {
			consecutive500++
			if consecutive500 == 3 {
				fixes = append(fixes, "Camera appears to be offline: three HTTP 500 responses in a row. Check power and the integration controller.")
				break
			}
		} else {
			consecutive500 = 0
		}
	}

	for _, rec := range records {
		if strings.Contains(rec.Detail, "timeout") || strings.Contains(rec.Kind, "timeout") {
			fixes = append(fixes, "Requests are timing out. Check the network path between this node and the camera.")
			break
		}
	}

	for _, rec := range records {
		if rec.Kind == "HTTP 401" || rec.Kind == "HTTP 403" {
			fixes = append(fixes, "The integration is no longer authorized. Re-authenticate and update the API key.")
			break
		}
	}

	return fixes
}
