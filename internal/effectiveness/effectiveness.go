// Package effectiveness measures whether a deterrent playback actually
// drove the pests away, persists the outcome and answers the learning
// queries the deterrent selector runs on: best sound per pest and hour,
// least tested sound, summary and time patterns.
package effectiveness

import (
	"context"
	"log/slog"
	"time"

	"github.com/tphakala/pestguard-go/internal/datastore"
	"github.com/tphakala/pestguard-go/internal/logging"
	"github.com/tphakala/pestguard-go/internal/observability/metrics"
)

var logger *slog.Logger

func init() {
	logger = logging.ForService("effectiveness")
}

// Outcome classifications.
const (
	ResultSuccess = "SUCCESS"
	ResultPartial = "PARTIAL"
	ResultFailure = "FAILURE"
	ResultUnknown = "UNKNOWN"
)

// timezoneSource yields the operator timezone for hour-of-day aggregation.
type timezoneSource interface {
	Timezone() *time.Location
}

// Tracker records deterrence outcomes and serves the learned statistics.
type Tracker struct {
	ds      datastore.Interface
	metrics *metrics.EffectivenessMetrics
	tz      timezoneSource
	now     func() time.Time
}

// New builds a tracker over the datastore.
func New(ds datastore.Interface) *Tracker {
	return &Tracker{ds: ds, now: time.Now}
}

// SetMetrics wires the effectiveness metrics collector.
func (t *Tracker) SetMetrics(m *metrics.EffectivenessMetrics) {
	t.metrics = m
}

// SetTimezone wires the timezone setting into hour-of-day aggregation.
// Without it, hours bucket in server-local time.
func (t *Tracker) SetTimezone(tz timezoneSource) {
	t.tz = tz
}

// hourOf buckets a timestamp into the configured timezone's hour of day.
func (t *Tracker) hourOf(ts time.Time) int {
	if t.tz != nil {
		return ts.In(t.tz.Timezone()).Hour()
	}
	return ts.Hour()
}

// ComputeResult classifies an outcome from the before/after foe counts.
// All pests gone is a success, fewer pests a partial, anything else a
// failure. UNKNOWN is reserved for missing follow-ups and never computed.
func ComputeResult(countBefore, countAfter int) string {
	switch {
	case countAfter == 0:
		return ResultSuccess
	case countAfter < countBefore:
		return ResultPartial
	default:
		return ResultFailure
	}
}

// ComputeScore rates an outcome in [0,1]. The score blends the reduction in
// foe count with the drop in detector confidence; a population that did not
// shrink scores zero regardless of confidence movement.
func ComputeScore(countBefore, countAfter int, confBefore, confAfter float64) float64 {
	switch {
	case countBefore == 0:
		return 0
	case countAfter == 0:
		return 1
	case countAfter >= countBefore:
		return 0
	}

	r := float64(countBefore-countAfter) / float64(countBefore)
	c := 1.0
	if confBefore > 0 {
		c = 1 - confAfter/confBefore
	}
	score := (r + c) / 2
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// MeanConfidence averages the detector confidence over a foe set, 0 when
// empty.
func MeanConfidence(foes []datastore.Foe) float64 {
	if len(foes) == 0 {
		return 0
	}
	var sum float64
	for _, foe := range foes {
		sum += foe.Confidence
	}
	return sum / float64(len(foes))
}

// RecordEffectiveness persists one measured outcome and folds it into the
// per-sound and per-hour aggregates.
func (t *Tracker) RecordEffectiveness(
	ctx context.Context,
	detectionID uint,
	pest, sound, method string,
	foesBefore, foesAfter []datastore.Foe,
	followUpPath string,
	wait time.Duration,
) (*datastore.SoundEffectiveness, error) {
	_ = ctx

	countBefore := len(foesBefore)
	countAfter := len(foesAfter)
	confBefore := MeanConfidence(foesBefore)
	confAfter := MeanConfidence(foesAfter)

	record := &datastore.SoundEffectiveness{
		DetectionID:      detectionID,
		PestKind:         pest,
		SoundFile:        sound,
		PlaybackMethod:   method,
		FoesBefore:       countBefore,
		FoesAfter:        countAfter,
		ConfidenceBefore: confBefore,
		ConfidenceAfter:  confAfter,
		WaitSeconds:      int(wait.Seconds()),
		Result:           ComputeResult(countBefore, countAfter),
		Score:            ComputeScore(countBefore, countAfter, confBefore, confAfter),
		FollowUpPath:     followUpPath,
		CreatedAt:        t.now(),
	}

	start := time.Now()
	if err := t.ds.RecordSoundEffectiveness(record, t.hourOf(record.CreatedAt)); err != nil {
		return nil, err
	}
	if t.metrics != nil {
		t.metrics.RecordOutcome(pest, record.Result, record.Score)
		t.metrics.ObserveRecordDuration(time.Since(start).Seconds())
	}

	logger.Info("Deterrence outcome recorded",
		"detection_id", detectionID,
		"pest", pest,
		"sound", sound,
		"result", record.Result,
		"score", record.Score)
	return record, nil
}

// BestSoundFor returns the best known sound for a pest at the given hour.
// The hour slot wins when it has learned a best sound; otherwise the
// per-sound statistics decide by mean effectiveness. Empty when nothing has
// been learned yet.
func (t *Tracker) BestSoundFor(pest string, hour int) (string, error) {
	slot, err := t.ds.GetTimeBasedEffectiveness(pest, hour)
	if err == nil && slot.BestSound != "" {
		return slot.BestSound, nil
	}
	if err != nil && !datastore.IsNotFound(err) {
		return "", err
	}

	stats, err := t.ds.GetSoundStatistics(pest)
	if err != nil {
		return "", err
	}
	if len(stats) == 0 {
		return "", nil
	}
	// Rows come back ordered by mean effectiveness, best first.
	return stats[0].SoundFile, nil
}

// LeastTestedSound picks the candidate with the fewest recorded uses for the
// pest. Sounds with no statistics count as zero uses; ties keep candidate
// order.
func (t *Tracker) LeastTestedSound(pest string, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", nil
	}

	stats, err := t.ds.GetSoundStatistics(pest)
	if err != nil {
		return "", err
	}
	uses := make(map[string]int, len(stats))
	for _, s := range stats {
		uses[s.SoundFile] = s.TotalUses
	}

	best := candidates[0]
	bestUses := uses[best]
	for _, candidate := range candidates[1:] {
		if uses[candidate] < bestUses {
			best = candidate
			bestUses = uses[candidate]
		}
	}
	return best, nil
}

// Summary returns the per-pest aggregate overview.
func (t *Tracker) Summary() ([]datastore.EffectivenessSummary, error) {
	return t.ds.GetEffectivenessSummary()
}

// TimePatterns returns the hour-of-day aggregates for one pest.
func (t *Tracker) TimePatterns(pest string) ([]datastore.TimeBasedEffectiveness, error) {
	return t.ds.GetTimePatterns(pest)
}

// Statistics returns the per-sound statistics for one pest, best first.
func (t *Tracker) Statistics(pest string) ([]datastore.SoundStatistics, error) {
	return t.ds.GetSoundStatistics(pest)
}
