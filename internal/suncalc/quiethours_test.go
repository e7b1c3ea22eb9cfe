package suncalc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/pestguard-go/internal/conf"
)

func TestQuietHoursDisabled(t *testing.T) {
	t.Parallel()

	q := NewQuietHours(conf.QuietHoursSettings{Enabled: false})
	assert.False(t, q.Active(time.Now()))
}

func TestQuietHoursFixedWindow(t *testing.T) {
	t.Parallel()

	q := NewQuietHours(conf.QuietHoursSettings{
		Enabled: true,
		Mode:    "fixed",
		Start:   "22:00",
		End:     "06:30",
	})

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

	assert.True(t, q.Active(at(23, 0)), "inside the wrap-around window")
	assert.True(t, q.Active(at(3, 0)))
	assert.True(t, q.Active(at(22, 0)), "window start is inclusive")
	assert.False(t, q.Active(at(6, 30)), "window end is exclusive")
	assert.False(t, q.Active(at(12, 0)))
}

func TestQuietHoursFixedWindowSameDay(t *testing.T) {
	t.Parallel()

	q := NewQuietHours(conf.QuietHoursSettings{
		Enabled: true,
		Mode:    "fixed",
		Start:   "12:00",
		End:     "14:00",
	})

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	assert.True(t, q.Active(day.Add(13*time.Hour)))
	assert.False(t, q.Active(day.Add(15*time.Hour)))
}

func TestQuietHoursFixedMalformedClock(t *testing.T) {
	t.Parallel()

	q := NewQuietHours(conf.QuietHoursSettings{
		Enabled: true,
		Mode:    "fixed",
		Start:   "not-a-clock",
		End:     "06:00",
	})
	assert.False(t, q.Active(time.Now()), "malformed windows fail open")
}

func TestQuietHoursSunMode(t *testing.T) {
	t.Parallel()

	// Helsinki in mid March: dawn well after 04:00, dusk well before 23:00.
	q := NewQuietHours(conf.QuietHoursSettings{
		Enabled:   true,
		Mode:      "sun",
		Latitude:  60.17,
		Longitude: 24.94,
	})

	noon := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	night := time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)
	earlyMorning := time.Date(2026, 3, 14, 2, 0, 0, 0, time.UTC)

	assert.False(t, q.Active(noon), "daylight is never quiet")
	assert.True(t, q.Active(night), "after dusk is quiet")
	assert.True(t, q.Active(earlyMorning), "before dawn is quiet")
}

func TestSunEventTimesAreCachedPerDate(t *testing.T) {
	t.Parallel()

	calc := NewSunCalc(60.17, 24.94)
	date := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	first, err := calc.GetSunEventTimes(date)
	require.NoError(t, err)
	second, err := calc.GetSunEventTimes(date)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.True(t, first.Sunrise.Before(first.Sunset))
}
