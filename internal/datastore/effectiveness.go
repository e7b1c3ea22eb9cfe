// effectiveness.go: sound effectiveness history and aggregate maintenance
package datastore

import (
	"time"

	"github.com/tphakala/pestguard-go/internal/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EffectivenessSummary is a per-pest rollup used for reporting.
type EffectivenessSummary struct {
	PestKind       string  `json:"pest_kind"`
	TotalUses      int     `json:"total_uses"`
	SuccessfulUses int     `json:"successful_uses"`
	PartialUses    int     `json:"partial_uses"`
	FailedUses     int     `json:"failed_uses"`
	BestSound      string  `json:"best_sound"`
	BestMeanScore  float64 `json:"best_mean_score"`
}

// RecordSoundEffectiveness stores one measured outcome and updates both
// aggregate tables in the same transaction. Updates for the same (pest, sound)
// or (pest, hour) key are serialized by a read-modify-write under row locks so
// concurrent recordings cannot lose counts.
func (ds *DataStore) RecordSoundEffectiveness(record *SoundEffectiveness, hour int) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	return ds.ScopedSession(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return errors.New(err).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Context("operation", "record_effectiveness").
				Context("detection_id", record.DetectionID).
				Build()
		}

		stats, err := ds.updateSoundStatistics(tx, record)
		if err != nil {
			return err
		}

		if err := ds.updateTimeBasedEffectiveness(tx, record, stats, hour); err != nil {
			return err
		}

		if !SafeCommit(tx) {
			return errors.Newf("effectiveness commit failed for detection %d", record.DetectionID).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Context("operation", "record_effectiveness_commit").
				Build()
		}
		return nil
	})
}

// lockForUpdate adds a row lock on dialects that support it. SQLite serializes
// writers at the database level and rejects FOR UPDATE syntax.
func (ds *DataStore) lockForUpdate(tx *gorm.DB) *gorm.DB {
	if ds.DB.Dialector.Name() == "mysql" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// updateSoundStatistics applies one outcome to the (pest, sound) aggregate.
// The mean effectiveness is recomputed from the full history for the key
// rather than maintained incrementally; history per key stays small.
func (ds *DataStore) updateSoundStatistics(tx *gorm.DB, record *SoundEffectiveness) (*SoundStatistics, error) {
	var stats SoundStatistics
	err := ds.lockForUpdate(tx).
		Where("pest_kind = ? AND sound_file = ?", record.PestKind, record.SoundFile).
		First(&stats).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		stats = SoundStatistics{
			PestKind:    record.PestKind,
			SoundFile:   record.SoundFile,
			FirstUsedAt: record.CreatedAt,
		}
	case err != nil:
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "load_sound_statistics").
			Build()
	}

	stats.TotalUses++
	switch record.Result {
	case "SUCCESS":
		stats.SuccessfulUses++
	case "PARTIAL":
		stats.PartialUses++
	default:
		stats.FailedUses++
	}
	stats.SuccessRate = float64(stats.SuccessfulUses) / float64(stats.TotalUses)
	stats.LastUsedAt = record.CreatedAt

	var mean float64
	err = tx.Model(&SoundEffectiveness{}).
		Select("COALESCE(AVG(score), 0)").
		Where("pest_kind = ? AND sound_file = ?", record.PestKind, record.SoundFile).
		Scan(&mean).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "recompute_mean_effectiveness").
			Build()
	}
	stats.MeanEffectiveness = mean

	if err := tx.Save(&stats).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_sound_statistics").
			Build()
	}
	return &stats, nil
}

// updateTimeBasedEffectiveness applies one outcome to the (pest, hour)
// aggregate. The best sound is replaced only by a strictly higher success
// rate, so best_sound_success_rate never decreases for a key.
func (ds *DataStore) updateTimeBasedEffectiveness(tx *gorm.DB, record *SoundEffectiveness, stats *SoundStatistics, hour int) error {
	var slot TimeBasedEffectiveness
	err := ds.lockForUpdate(tx).
		Where("pest_kind = ? AND hour_of_day = ?", record.PestKind, hour).
		First(&slot).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		slot = TimeBasedEffectiveness{
			PestKind:  record.PestKind,
			HourOfDay: hour,
		}
	case err != nil:
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "load_time_based_effectiveness").
			Build()
	}

	slot.TotalDeterrents++
	if record.Result == "SUCCESS" {
		slot.SuccessfulDeterrents++
	}
	if stats.SuccessRate > slot.BestSoundSuccessRate {
		slot.BestSound = record.SoundFile
		slot.BestSoundSuccessRate = stats.SuccessRate
	}
	slot.UpdatedAt = record.CreatedAt

	if err := tx.Save(&slot).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_time_based_effectiveness").
			Build()
	}
	return nil
}

// GetSoundStatistics returns all aggregates for one pest kind ordered by mean
// effectiveness, best first.
func (ds *DataStore) GetSoundStatistics(pestKind string) ([]SoundStatistics, error) {
	var stats []SoundStatistics
	err := ds.DB.
		Where("pest_kind = ?", pestKind).
		Order("mean_effectiveness DESC").
		Find(&stats).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_sound_statistics").
			Context("pest_kind", pestKind).
			Build()
	}
	return stats, nil
}

// GetSoundStatisticsFor returns the aggregate row for one (pest, sound) key.
func (ds *DataStore) GetSoundStatisticsFor(pestKind, soundFile string) (SoundStatistics, error) {
	var stats SoundStatistics
	err := ds.DB.
		Where("pest_kind = ? AND sound_file = ?", pestKind, soundFile).
		First(&stats).Error
	if err != nil {
		return SoundStatistics{}, errors.New(err).
			Component("datastore").
			Category(categorizeGetError(err)).
			Context("operation", "get_sound_statistics_for").
			Context("pest_kind", pestKind).
			Build()
	}
	return stats, nil
}

// GetTimeBasedEffectiveness returns the aggregate row for one (pest, hour) key.
func (ds *DataStore) GetTimeBasedEffectiveness(pestKind string, hour int) (TimeBasedEffectiveness, error) {
	var slot TimeBasedEffectiveness
	err := ds.DB.
		Where("pest_kind = ? AND hour_of_day = ?", pestKind, hour).
		First(&slot).Error
	if err != nil {
		return TimeBasedEffectiveness{}, errors.New(err).
			Component("datastore").
			Category(categorizeGetError(err)).
			Context("operation", "get_time_based_effectiveness").
			Context("pest_kind", pestKind).
			Build()
	}
	return slot, nil
}

// GetTimePatterns returns the hour-of-day aggregates for one pest kind
// ordered by hour.
func (ds *DataStore) GetTimePatterns(pestKind string) ([]TimeBasedEffectiveness, error) {
	var slots []TimeBasedEffectiveness
	err := ds.DB.
		Where("pest_kind = ?", pestKind).
		Order("hour_of_day ASC").
		Find(&slots).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_time_patterns").
			Context("pest_kind", pestKind).
			Build()
	}
	return slots, nil
}

// GetEffectivenessHistory returns recent outcome rows for one (pest, sound)
// key, newest first.
func (ds *DataStore) GetEffectivenessHistory(pestKind, soundFile string, limit int) ([]SoundEffectiveness, error) {
	var records []SoundEffectiveness
	err := ds.DB.
		Where("pest_kind = ? AND sound_file = ?", pestKind, soundFile).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_effectiveness_history").
			Build()
	}
	return records, nil
}

// GetEffectivenessSummary returns one rollup row per pest kind with the best
// performing sound by mean effectiveness.
func (ds *DataStore) GetEffectivenessSummary() ([]EffectivenessSummary, error) {
	var totals []struct {
		PestKind       string
		TotalUses      int
		SuccessfulUses int
		PartialUses    int
		FailedUses     int
	}
	err := ds.DB.Model(&SoundStatistics{}).
		Select("pest_kind, SUM(total_uses) as total_uses, SUM(successful_uses) as successful_uses, SUM(partial_uses) as partial_uses, SUM(failed_uses) as failed_uses").
		Group("pest_kind").
		Order("pest_kind ASC").
		Scan(&totals).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_effectiveness_summary").
			Build()
	}

	summaries := make([]EffectivenessSummary, 0, len(totals))
	for _, row := range totals {
		summary := EffectivenessSummary{
			PestKind:       row.PestKind,
			TotalUses:      row.TotalUses,
			SuccessfulUses: row.SuccessfulUses,
			PartialUses:    row.PartialUses,
			FailedUses:     row.FailedUses,
		}

		var best SoundStatistics
		err := ds.DB.
			Where("pest_kind = ?", row.PestKind).
			Order("mean_effectiveness DESC").
			First(&best).Error
		if err == nil {
			summary.BestSound = best.SoundFile
			summary.BestMeanScore = best.MeanEffectiveness
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(err).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Context("operation", "get_effectiveness_summary_best").
				Build()
		}

		summaries = append(summaries, summary)
	}
	return summaries, nil
}
