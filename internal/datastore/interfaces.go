// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"time"

	"github.com/tphakala/pestguard-go/internal/conf"
	"gorm.io/gorm"
)

// Interface abstracts the underlying database implementation and defines the
// operations the engine performs against the persistence layer.
type Interface interface {
	Open() error
	Close() error

	// Integrations and cameras
	SaveIntegration(integration *Integration) error
	GetIntegration(id uint) (Integration, error)
	GetIntegrationByName(name string) (Integration, error)
	GetIntegrations() ([]Integration, error)
	UpdateIntegrationStatus(id uint, status string) error
	SyncCameras(integrationID uint, cameras []Camera) error
	ActiveCameras() ([]Camera, error)
	GetCamera(id uint) (Camera, error)
	UpdateCameraStatus(id uint, status string) error
	UpdateCameraImageHash(id uint, hash string) error

	// Detections
	SaveDetection(detection *Detection, foes []Foe) error
	GetDetection(id uint) (Detection, error)
	UpdateDetection(id uint, fields map[string]any) error
	GetDetectionFoes(detectionID uint) ([]Foe, error)
	GetRecentDetections(limit int) ([]Detection, error)
	GetDetectionsByCamera(cameraID uint, limit int) ([]Detection, error)
	CountDetectionsByStatus() (map[string]int64, error)
	CountFoesByKind() (map[string]int64, error)
	SaveDeterrentAction(action *DeterrentAction) error

	// Effectiveness measurements and aggregates
	RecordSoundEffectiveness(record *SoundEffectiveness, hour int) error
	GetSoundStatistics(pestKind string) ([]SoundStatistics, error)
	GetSoundStatisticsFor(pestKind, soundFile string) (SoundStatistics, error)
	GetTimeBasedEffectiveness(pestKind string, hour int) (TimeBasedEffectiveness, error)
	GetTimePatterns(pestKind string) ([]TimeBasedEffectiveness, error)
	GetEffectivenessHistory(pestKind, soundFile string, limit int) ([]SoundEffectiveness, error)
	GetEffectivenessSummary() ([]EffectivenessSummary, error)

	// Media retention
	GetMediaQualifyingForRemoval(cutoff time.Time) ([]MediaForRemoval, error)
	ClearMediaPaths(ids []uint) error

	// Settings
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the provided configuration.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Database.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Database.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		return nil
	}
}

// GetHourFormat returns the database-specific SQL fragment for extracting the
// hour of day from a timestamp column.
func (ds *DataStore) GetHourFormat() string {
	switch ds.DB.Dialector.Name() {
	case "sqlite":
		return "strftime('%H', created_at)"
	case "mysql":
		return "DATE_FORMAT(created_at, '%H')"
	default:
		return ""
	}
}
