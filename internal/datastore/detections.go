// detections.go: detection and deterrent action persistence operations
package datastore

import (
	"encoding/json"
	"time"

	"github.com/tphakala/pestguard-go/internal/errors"
	"gorm.io/gorm"
)

// SaveDetection stores a detection and its associated foes as a single
// transaction in the database.
func (ds *DataStore) SaveDetection(detection *Detection, foes []Foe) error {
	return ds.ScopedSession(func(tx *gorm.DB) error {
		// Omit associations so GORM does not auto-save foes assigned to the
		// struct; they are created explicitly below with the detection ID.
		if err := tx.Omit("Foes", "Actions", "Effectiveness").Create(detection).Error; err != nil {
			return errors.New(err).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Context("operation", "save_detection").
				Context("camera_id", detection.CameraID).
				Build()
		}

		for i := range foes {
			foes[i].DetectionID = detection.ID
			if err := tx.Create(&foes[i]).Error; err != nil {
				return errors.New(err).
					Component("datastore").
					Category(errors.CategoryDatabase).
					Context("operation", "save_detection_foe").
					Context("detection_id", detection.ID).
					Build()
			}
		}

		if !SafeCommit(tx) {
			return errors.Newf("detection commit failed for camera %d", detection.CameraID).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Context("operation", "save_detection_commit").
				Build()
		}
		return nil
	})
}

// GetDetection retrieves a detection with its foes by ID.
func (ds *DataStore) GetDetection(id uint) (Detection, error) {
	var detection Detection
	err := ds.DB.Preload("Foes").First(&detection, id).Error
	if err != nil {
		return Detection{}, errors.New(err).
			Component("datastore").
			Category(categorizeGetError(err)).
			Context("operation", "get_detection").
			Context("detection_id", id).
			Build()
	}
	return detection, nil
}

// UpdateDetection updates specific fields of a detection, used for attaching
// the video path, played sounds and final status after the deterrence flow.
// Map-based Updates bypass GORM's field serializers, so slice values are
// JSON-encoded here before they reach the driver.
func (ds *DataStore) UpdateDetection(id uint, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	updates := make(map[string]any, len(fields))
	for key, value := range fields {
		if slice, ok := value.([]string); ok {
			encoded, err := json.Marshal(slice)
			if err != nil {
				return errors.New(err).
					Component("datastore").
					Category(errors.CategoryValidation).
					Context("operation", "update_detection").
					Context("field", key).
					Build()
			}
			updates[key] = string(encoded)
			continue
		}
		updates[key] = value
	}
	if err := ds.DB.Model(&Detection{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "update_detection").
			Context("detection_id", id).
			Build()
	}
	return nil
}

// GetDetectionFoes retrieves the foe rows of one detection.
func (ds *DataStore) GetDetectionFoes(detectionID uint) ([]Foe, error) {
	var foes []Foe
	if err := ds.DB.Where("detection_id = ?", detectionID).Find(&foes).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_detection_foes").
			Context("detection_id", detectionID).
			Build()
	}
	return foes, nil
}

// GetRecentDetections retrieves the most recent detections with their foes,
// newest first.
func (ds *DataStore) GetRecentDetections(limit int) ([]Detection, error) {
	var detections []Detection
	err := ds.DB.Preload("Foes").
		Order("created_at DESC").
		Limit(limit).
		Find(&detections).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_recent_detections").
			Build()
	}
	return detections, nil
}

// GetDetectionsByCamera retrieves the most recent detections of one camera.
func (ds *DataStore) GetDetectionsByCamera(cameraID uint, limit int) ([]Detection, error) {
	var detections []Detection
	err := ds.DB.Preload("Foes").
		Where("camera_id = ?", cameraID).
		Order("created_at DESC").
		Limit(limit).
		Find(&detections).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_detections_by_camera").
			Context("camera_id", cameraID).
			Build()
	}
	return detections, nil
}

// CountDetectionsByStatus returns detection counts grouped by status.
func (ds *DataStore) CountDetectionsByStatus() (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := ds.DB.Model(&Detection{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "count_detections_by_status").
			Build()
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// CountFoesByKind returns foe counts grouped by kind.
func (ds *DataStore) CountFoesByKind() (map[string]int64, error) {
	var rows []struct {
		Kind  string
		Count int64
	}
	err := ds.DB.Model(&Foe{}).
		Select("kind, COUNT(*) as count").
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "count_foes_by_kind").
			Build()
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Kind] = row.Count
	}
	return counts, nil
}

// SaveDeterrentAction stores one deterrent attempt.
func (ds *DataStore) SaveDeterrentAction(action *DeterrentAction) error {
	if action.TriggeredAt.IsZero() {
		action.TriggeredAt = time.Now()
	}
	if err := ds.DB.Create(action).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_deterrent_action").
			Context("detection_id", action.DetectionID).
			Build()
	}
	return nil
}

// GetMediaQualifyingForRemoval returns detections older than the cutoff that
// still reference media files on disk.
func (ds *DataStore) GetMediaQualifyingForRemoval(cutoff time.Time) ([]MediaForRemoval, error) {
	var results []MediaForRemoval
	err := ds.DB.Model(&Detection{}).
		Select("id, image_path, video_path").
		Where("created_at < ?", cutoff).
		Where("image_path != '' OR video_path != ''").
		Scan(&results).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_media_qualifying_for_removal").
			Build()
	}
	return results, nil
}

// ClearMediaPaths blanks the media path columns of the given detections after
// the retention sweeper removed the files.
func (ds *DataStore) ClearMediaPaths(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	err := ds.DB.Model(&Detection{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"image_path": "", "video_path": ""}).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "clear_media_paths").
			Build()
	}
	return nil
}
