// Package notification sends push notifications for camera health
// transitions and deterrent success streaks through shoutrrr service URLs.
package notification

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"slices"
	"sync"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/pestguard-go/internal/conf"
	"github.com/tphakala/pestguard-go/internal/errors"
	"github.com/tphakala/pestguard-go/internal/logging"
)

// Kind identifies a notification event class. Rate limiting applies per kind
// so a flapping camera cannot drown out deterrent updates.
type Kind string

const (
	KindCameraUnhealthy Kind = "camera-unhealthy"
	KindCameraRecovered Kind = "camera-recovered"
	KindSuccessStreak   Kind = "success-streak"
)

var logger *slog.Logger

func init() {
	logger = logging.ForService("notification")
}

// Notifier delivers notifications to the configured shoutrrr URLs. A nil or
// disabled Notifier accepts events and drops them.
type Notifier struct {
	enabled     bool
	sender      *router.ServiceRouter
	minInterval time.Duration

	mu       sync.Mutex
	lastSent map[Kind]time.Time
	now      func() time.Time
}

// New builds a notifier from the configuration. With notifications disabled
// or no URLs configured the returned notifier is inert but still usable.
func New(cfg *conf.NotificationSettings) (*Notifier, error) {
	n := &Notifier{
		minInterval: time.Duration(cfg.MinIntervalSeconds) * time.Second,
		lastSent:    make(map[Kind]time.Time),
		now:         time.Now,
	}
	if !cfg.Enabled || len(cfg.URLs) == 0 {
		return n, nil
	}

	sender, err := shoutrrr.CreateSender(slices.Clone(cfg.URLs)...)
	if err != nil {
		return nil, errors.New(err).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}
	sender.SetLogger(log.New(io.Discard, "", 0))

	n.enabled = true
	n.sender = sender
	return n, nil
}

// Send delivers one notification, subject to the per-kind rate limit.
// Suppressed and failed deliveries are logged, never fatal.
func (n *Notifier) Send(kind Kind, title, message string) {
	if n == nil || !n.enabled {
		return
	}
	if !n.allow(kind) {
		logger.Debug("Notification suppressed by rate limit", "kind", string(kind))
		return
	}

	params := stypes.Params{}
	params.SetTitle(title)
	for _, err := range n.sender.Send(message, &params) {
		if err != nil {
			logger.Warn("Notification delivery failed", "kind", string(kind), "error", err)
			return
		}
	}
	logger.Info("Notification sent", "kind", string(kind), "title", title)
}

// allow enforces the minimum interval between notifications of one kind.
func (n *Notifier) allow(kind Kind) bool {
	if n.minInterval <= 0 {
		return true
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	if last, ok := n.lastSent[kind]; ok && now.Sub(last) < n.minInterval {
		return false
	}
	n.lastSent[kind] = now
	return true
}

// CameraTransition is a diagnostics health-transition callback. Register it
// with the camera error tracker to announce unhealthy cameras and recoveries.
func (n *Notifier) CameraTransition(cameraName string, healthy bool) {
	if healthy {
		n.Send(KindCameraRecovered, "Camera recovered",
			cameraName+" is responding again")
		return
	}
	n.Send(KindCameraUnhealthy, "Camera unhealthy",
		cameraName+" has repeated capture failures")
}

// SuccessStreak announces a run of consecutive successful deterrences for
// one pest and sound combination.
func (n *Notifier) SuccessStreak(pest, sound string, streak int) {
	n.Send(KindSuccessStreak, "Deterrent working",
		fmt.Sprintf("%s drove off %s %d times in a row", sound, pest, streak))
}
