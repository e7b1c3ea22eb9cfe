// effectiveness_test.go: aggregate consistency tests for deterrence outcomes.
package datastore

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordOutcome stores one effectiveness row against a fresh detection.
func recordOutcome(t *testing.T, ds Interface, cam *Camera, pest, sound, result string, score float64, hour int) {
	t.Helper()

	detection := Detection{CameraID: cam.ID, Status: "deterred"}
	require.NoError(t, ds.SaveDetection(&detection, nil))

	record := SoundEffectiveness{
		DetectionID:    detection.ID,
		PestKind:       pest,
		SoundFile:      sound,
		PlaybackMethod: "camera",
		Result:         result,
		Score:          score,
		WaitSeconds:    10,
	}
	require.NoError(t, ds.RecordSoundEffectiveness(&record, hour))
}

func TestRecordSoundEffectivenessAggregates(t *testing.T) {
	t.Parallel()

	settings := createTestSettings(t)
	ds := createDatabase(t, settings)
	cam := seedCamera(t, ds)

	// Two failed attempts with the same sound, as when a crow ignores playback
	// on two consecutive ticks.
	recordOutcome(t, ds, &cam, "CROWS", "crow_a.mp3", "FAILURE", 0, 14)
	recordOutcome(t, ds, &cam, "CROWS", "crow_a.mp3", "FAILURE", 0, 14)

	stats, err := ds.GetSoundStatisticsFor("CROWS", "crow_a.mp3")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalUses)
	assert.Equal(t, 0, stats.SuccessfulUses)
	assert.Equal(t, 2, stats.FailedUses)
	assert.InDelta(t, 0.0, stats.SuccessRate, 1e-9)
	assert.InDelta(t, 0.0, stats.MeanEffectiveness, 1e-9)
}

func TestRecordSoundEffectivenessSuccessPath(t *testing.T) {
	t.Parallel()

	settings := createTestSettings(t)
	ds := createDatabase(t, settings)
	cam := seedCamera(t, ds)

	recordOutcome(t, ds, &cam, "RATS", "rat_a.wav", "SUCCESS", 1.0, 3)

	stats, err := ds.GetSoundStatisticsFor("RATS", "rat_a.wav")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalUses)
	assert.Equal(t, 1, stats.SuccessfulUses)
	assert.InDelta(t, 1.0, stats.SuccessRate, 1e-9)
	assert.InDelta(t, 1.0, stats.MeanEffectiveness, 1e-9)

	slot, err := ds.GetTimeBasedEffectiveness("RATS", 3)
	require.NoError(t, err)
	assert.Equal(t, "rat_a.wav", slot.BestSound)
	assert.InDelta(t, 1.0, slot.BestSoundSuccessRate, 1e-9)
	assert.Equal(t, 1, slot.TotalDeterrents)
	assert.Equal(t, 1, slot.SuccessfulDeterrents)
}

// Totals must equal the count of history rows for the key, and the per-result
// counters must sum to the total.
func TestAggregateConsistencyWithHistory(t *testing.T) {
	t.Parallel()

	settings := createTestSettings(t)
	ds := createDatabase(t, settings)
	cam := seedCamera(t, ds)

	outcomes := []struct {
		result string
		score  float64
	}{
		{"SUCCESS", 1.0},
		{"PARTIAL", 0.5},
		{"FAILURE", 0.0},
		{"SUCCESS", 1.0},
		{"PARTIAL", 0.52},
	}
	for _, o := range outcomes {
		recordOutcome(t, ds, &cam, "PIGEONS", "pigeon_a.mp3", o.result, o.score, 9)
	}

	stats, err := ds.GetSoundStatisticsFor("PIGEONS", "pigeon_a.mp3")
	require.NoError(t, err)

	history, err := ds.GetEffectivenessHistory("PIGEONS", "pigeon_a.mp3", 100)
	require.NoError(t, err)

	assert.Equal(t, len(history), stats.TotalUses)
	assert.Equal(t, stats.TotalUses, stats.SuccessfulUses+stats.PartialUses+stats.FailedUses)

	var sum float64
	for _, h := range history {
		sum += h.Score
	}
	assert.InDelta(t, sum/float64(len(history)), stats.MeanEffectiveness, 1e-9)
}

// The best sound for an hour slot may only be replaced by a strictly higher
// success rate.
func TestBestSoundMonotonicity(t *testing.T) {
	t.Parallel()

	settings := createTestSettings(t)
	ds := createDatabase(t, settings)
	cam := seedCamera(t, ds)

	// crow_a: one success, rate 1.0
	recordOutcome(t, ds, &cam, "CROWS", "crow_a.mp3", "SUCCESS", 1.0, 22)

	// crow_b: one success one failure, rate 0.5; must not displace crow_a
	recordOutcome(t, ds, &cam, "CROWS", "crow_b.mp3", "SUCCESS", 1.0, 22)
	recordOutcome(t, ds, &cam, "CROWS", "crow_b.mp3", "FAILURE", 0.0, 22)

	slot, err := ds.GetTimeBasedEffectiveness("CROWS", 22)
	require.NoError(t, err)
	assert.Equal(t, "crow_a.mp3", slot.BestSound)
	assert.InDelta(t, 1.0, slot.BestSoundSuccessRate, 1e-9)
	assert.Equal(t, 3, slot.TotalDeterrents)
	assert.Equal(t, 2, slot.SuccessfulDeterrents)

	// An equal rate does not replace either; ties keep the incumbent
	recordOutcome(t, ds, &cam, "CROWS", "crow_c.mp3", "SUCCESS", 1.0, 22)
	slot, err = ds.GetTimeBasedEffectiveness("CROWS", 22)
	require.NoError(t, err)
	assert.Equal(t, "crow_a.mp3", slot.BestSound)
}

func TestGetSoundStatisticsOrdering(t *testing.T) {
	t.Parallel()

	settings := createTestSettings(t)
	ds := createDatabase(t, settings)
	cam := seedCamera(t, ds)

	recordOutcome(t, ds, &cam, "HERONS", "heron_weak.mp3", "PARTIAL", 0.3, 6)
	recordOutcome(t, ds, &cam, "HERONS", "heron_strong.mp3", "SUCCESS", 1.0, 6)

	stats, err := ds.GetSoundStatistics("HERONS")
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "heron_strong.mp3", stats[0].SoundFile, "highest mean effectiveness first")
	assert.Equal(t, "heron_weak.mp3", stats[1].SoundFile)
}

func TestGetTimePatterns(t *testing.T) {
	t.Parallel()

	settings := createTestSettings(t)
	ds := createDatabase(t, settings)
	cam := seedCamera(t, ds)

	for _, hour := range []int{18, 4, 11} {
		recordOutcome(t, ds, &cam, "CATS", fmt.Sprintf("cat_%d.mp3", hour), "SUCCESS", 1.0, hour)
	}

	patterns, err := ds.GetTimePatterns("CATS")
	require.NoError(t, err)
	require.Len(t, patterns, 3)
	assert.Equal(t, 4, patterns[0].HourOfDay)
	assert.Equal(t, 11, patterns[1].HourOfDay)
	assert.Equal(t, 18, patterns[2].HourOfDay)
}

func TestEffectivenessSummary(t *testing.T) {
	t.Parallel()

	settings := createTestSettings(t)
	ds := createDatabase(t, settings)
	cam := seedCamera(t, ds)

	recordOutcome(t, ds, &cam, "RATS", "rat_a.wav", "SUCCESS", 1.0, 2)
	recordOutcome(t, ds, &cam, "RATS", "rat_b.wav", "FAILURE", 0.0, 2)
	recordOutcome(t, ds, &cam, "CROWS", "crow_a.mp3", "PARTIAL", 0.4, 15)

	summaries, err := ds.GetEffectivenessSummary()
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Ordered by pest kind
	assert.Equal(t, "CROWS", summaries[0].PestKind)
	assert.Equal(t, 1, summaries[0].TotalUses)
	assert.Equal(t, "crow_a.mp3", summaries[0].BestSound)

	assert.Equal(t, "RATS", summaries[1].PestKind)
	assert.Equal(t, 2, summaries[1].TotalUses)
	assert.Equal(t, 1, summaries[1].SuccessfulUses)
	assert.Equal(t, 1, summaries[1].FailedUses)
	assert.Equal(t, "rat_a.wav", summaries[1].BestSound)
}
