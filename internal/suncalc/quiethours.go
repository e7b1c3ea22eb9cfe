package suncalc

import (
	"log/slog"
	"time"

	"github.com/tphakala/pestguard-go/internal/conf"
	"github.com/tphakala/pestguard-go/internal/logging"
)

var logger *slog.Logger

func init() {
	logger = logging.ForService("suncalc")
}

// QuietHours decides whether deterrent playback is currently suppressed.
// Sun mode keeps the night quiet between civil dusk and the next civil
// dawn; fixed mode uses a HH:MM window, possibly wrapping midnight.
type QuietHours struct {
	cfg  conf.QuietHoursSettings
	calc *SunCalc
}

// NewQuietHours builds the quiet-hours evaluator. The sun calculator is
// created only when the sun mode is configured.
func NewQuietHours(cfg conf.QuietHoursSettings) *QuietHours {
	q := &QuietHours{cfg: cfg}
	if cfg.Enabled && cfg.Mode == "sun" {
		q.calc = NewSunCalc(cfg.Latitude, cfg.Longitude)
	}
	return q
}

// Active reports whether playback is suppressed at the given time. Errors
// from the sun calculation fail open so a misconfigured location never
// silences the deterrents permanently.
func (q *QuietHours) Active(now time.Time) bool {
	if !q.cfg.Enabled {
		return false
	}
	switch q.cfg.Mode {
	case "sun":
		return q.sunActive(now)
	case "fixed":
		return q.fixedActive(now)
	default:
		return false
	}
}

// sunActive suppresses playback between civil dusk and the following civil
// dawn.
func (q *QuietHours) sunActive(now time.Time) bool {
	today, err := q.calc.GetSunEventTimes(now)
	if err != nil {
		logger.Warn("Sun calculation failed, quiet hours inactive", "error", err)
		return false
	}

	// After dusk: quiet for the rest of the day.
	if now.After(today.CivilDusk) {
		return true
	}
	// Before dawn: still in last night's quiet window.
	if now.Before(today.CivilDawn) {
		return true
	}
	return false
}

// fixedActive evaluates the HH:MM window, wrapping midnight when the start
// is after the end.
func (q *QuietHours) fixedActive(now time.Time) bool {
	start, err := conf.ParseClock(q.cfg.Start)
	if err != nil {
		return false
	}
	end, err := conf.ParseClock(q.cfg.End)
	if err != nil {
		return false
	}

	minutes := now.Hour()*60 + now.Minute()
	if start <= end {
		return minutes >= start && minutes < end
	}
	return minutes >= start || minutes < end
}
