package diagnostics

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trackerAt(now time.Time) *Tracker {
	t := NewTracker()
	t.now = func() time.Time { return now }
	return t
}

func TestRecordAndRecentErrors(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.Record("garden", "HTTP 500", "internal error")
	tr.Record("garden", "timeout", "read timeout after 30s")

	records := tr.RecentErrors("garden", 10)
	require.Len(t, records, 2)
	assert.Equal(t, "timeout", records[0].Kind, "newest record first")
	assert.Equal(t, "HTTP 500", records[1].Kind)

	assert.Nil(t, tr.RecentErrors("unknown", 10))
}

func TestRingBufferIsBounded(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	for i := range 150 {
		tr.Record("garden", "HTTP 500", fmt.Sprintf("error %d", i))
	}

	records := tr.RecentErrors("garden", 200)
	require.Len(t, records, 100)
	assert.Equal(t, "error 149", records[0].Detail)
	assert.Equal(t, "error 50", records[99].Detail, "oldest entries evicted")
}

func TestHealthStatusCountsRecentWindow(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tr := trackerAt(now.Add(-10 * time.Minute))
	tr.Record("garden", "HTTP 500", "stale error")

	tr.now = func() time.Time { return now }
	tr.Record("pond", "timeout", "fresh error")

	statuses := tr.HealthStatus()
	byName := make(map[string]CameraHealth)
	for _, s := range statuses {
		byName[s.CameraName] = s
	}

	assert.True(t, byName["garden"].Healthy, "errors older than five minutes do not count")
	assert.Equal(t, 0, byName["garden"].RecentErrors)
	assert.False(t, byName["pond"].Healthy)
	assert.Equal(t, 1, byName["pond"].RecentErrors)
}

func TestHealthTransitions(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tr := trackerAt(now)

	type transition struct {
		camera  string
		healthy bool
	}
	var transitions []transition
	tr.OnTransition(func(cameraName string, healthy bool) {
		transitions = append(transitions, transition{cameraName, healthy})
	})

	tr.Record("garden", "HTTP 500", "boom")
	tr.Record("garden", "HTTP 500", "boom again")
	require.Equal(t, []transition{{"garden", false}}, transitions, "only the first error transitions to unhealthy")

	// Move past the window; the next rollup reports recovery.
	tr.now = func() time.Time { return now.Add(6 * time.Minute) }
	tr.HealthStatus()
	require.Equal(t, []transition{{"garden", false}, {"garden", true}}, transitions)
}

func TestSuggestFixesOfflineRule(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	for range 3 {
		tr.Record("garden", "HTTP 500", "internal server error")
	}

	fixes := tr.SuggestFixes("garden")
	require.NotEmpty(t, fixes)
	assert.Contains(t, fixes[0], "offline")
}

func TestSuggestFixesTimeoutAndAuthRules(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.Record("garden", "network", "connect timeout")
	tr.Record("garden", "HTTP 401", "unauthorized")

	fixes := tr.SuggestFixes("garden")
	require.Len(t, fixes, 2)
	assert.Contains(t, fixes[0], "network path")
	assert.Contains(t, fixes[1], "Re-authenticate")
}

func TestSuggestFixesOnlyInspectsLastTen(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.Record("garden", "HTTP 401", "old auth failure")
	for i := range 10 {
		tr.Record("garden", "other", fmt.Sprintf("noise %d", i))
	}

	assert.Empty(t, tr.SuggestFixes("garden"), "records beyond the last ten are ignored")
}

func TestSuggestFixesNoRecords(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	assert.Nil(t, tr.SuggestFixes("unknown"))
}
