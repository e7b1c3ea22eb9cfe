package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pestguard-go/internal/conf"
)

func TestNewDisabledNotifier(t *testing.T) {
	t.Parallel()

	n, err := New(&conf.NotificationSettings{Enabled: false})
	require.NoError(t, err)
	assert.False(t, n.enabled)

	// Disabled notifiers drop events without touching a sender.
	n.Send(KindCameraUnhealthy, "title", "message")
	n.CameraTransition("Pond Camera", false)
	n.SuccessStreak("CROWS", "hawk_cry.wav", 3)
}

func TestNewEnabledWithoutURLsIsInert(t *testing.T) {
	t.Parallel()

	n, err := New(&conf.NotificationSettings{Enabled: true})
	require.NoError(t, err)
	assert.False(t, n.enabled)
}

func TestNewRejectsMalformedURL(t *testing.T) {
	t.Parallel()

	_, err := New(&conf.NotificationSettings{
		Enabled: true,
		URLs:    []string{"not-a-service-url"},
	})
	require.Error(t, err)
}

func TestNewBuildsSenderFromLoggerURL(t *testing.T) {
	t.Parallel()

	n, err := New(&conf.NotificationSettings{
		Enabled: true,
		URLs:    []string{"logger://"},
	})
	require.NoError(t, err)
	assert.True(t, n.enabled)
	require.NotNil(t, n.sender)

	n.Send(KindSuccessStreak, "Deterrent working", "hawk_cry.wav drove off CROWS 3 times in a row")
}

func TestRateLimitPerKind(t *testing.T) {
	t.Parallel()

	n := &Notifier{
		minInterval: time.Minute,
		lastSent:    make(map[Kind]time.Time),
	}
	current := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return current }

	assert.True(t, n.allow(KindCameraUnhealthy))
	assert.False(t, n.allow(KindCameraUnhealthy), "second event inside the interval is suppressed")
	assert.True(t, n.allow(KindSuccessStreak), "kinds are limited independently")

	current = current.Add(61 * time.Second)
	assert.True(t, n.allow(KindCameraUnhealthy))
}

func TestRateLimitDisabledWhenIntervalZero(t *testing.T) {
	t.Parallel()

	n := &Notifier{lastSent: make(map[Kind]time.Time), now: time.Now}
	assert.True(t, n.allow(KindCameraUnhealthy))
	assert.True(t, n.allow(KindCameraUnhealthy))
}

func TestNilNotifierIsSafe(t *testing.T) {
	t.Parallel()

	var n *Notifier
	n.Send(KindCameraRecovered, "title", "message")
}
