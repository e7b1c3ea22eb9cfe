// model.go this code defines the data model for the application
package datastore

import (
	"time"

	"gorm.io/gorm"
)

// Integration represents a configured connection to a camera provider.
type Integration struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;not null"`
	Kind      string `gorm:"index"` // provider kind tag, e.g. "unifi_protect"
	Host      string
	APIKey    string
	Enabled   bool
	Status    string `gorm:"type:varchar(20)"` // Values: "connected", "disconnected", "error"
	CreatedAt time.Time
	UpdatedAt time.Time
	Cameras   []Camera `gorm:"foreignKey:IntegrationID;constraint:OnDelete:CASCADE"`
}

// Camera represents a single physical device owned by exactly one Integration.
// Rows are soft-deleted when the provider no longer lists the device.
type Camera struct {
	ID            uint   `gorm:"primaryKey"`
	IntegrationID uint   `gorm:"index;not null;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;foreignKey:IntegrationID;references:ID"`
	Name          string `gorm:"index:idx_cameras_name"`
	ProviderID    string `gorm:"index:idx_cameras_provider"` // provider-side device identifier
	Model         string
	Status        string `gorm:"type:varchar(20)"` // Values: "online", "offline", "error"
	HasSpeaker    bool
	RTSPURL       string // RTSP stream URL, empty when the device offers none
	LastImageHash string // visual hash of the last processed snapshot, 16 hex chars
	Enabled       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index"`
	Detections    []Detection    `gorm:"foreignKey:CameraID;constraint:OnDelete:CASCADE"`
}

// Detection represents a single observation event from one camera.
type Detection struct {
	ID           uint      `gorm:"primaryKey"`
	CameraID     uint      `gorm:"index:idx_detections_camera;not null;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;foreignKey:CameraID;references:ID"`
	Status       string    `gorm:"type:varchar(20);index"` // Values: "pending", "processed", "deterred", "failed"
	ImagePath    string    // persisted snapshot path, set once processed
	VideoPath    string    // captured video path, empty until capture completes
	ImageHash    string    `gorm:"index:idx_detections_hash"` // 16 hex chars, empty when the snapshot could not be hashed
	DetectorRaw  string    `gorm:"type:text"`                 // raw detector response blob
	AICost       float64   // accumulated detector cost in USD
	PlayedSounds []string  `gorm:"serializer:json"` // sound files played for this detection
	FoesDetected bool      // summary flag, true when at least one non-UNKNOWN foe exists
	PrimaryFoe   string    // kind of the highest-confidence foe, empty if none
	ErrorDetail  string    `gorm:"type:text"` // failure description when status=failed
	CreatedAt    time.Time `gorm:"index:idx_detections_created"`
	UpdatedAt    time.Time

	Foes          []Foe                `gorm:"foreignKey:DetectionID;constraint:OnDelete:CASCADE"`
	Actions       []DeterrentAction    `gorm:"foreignKey:DetectionID;constraint:OnDelete:CASCADE"`
	Effectiveness []SoundEffectiveness `gorm:"foreignKey:DetectionID;constraint:OnDelete:CASCADE"`
}

// Foe represents a single bounding-box-level pest instance belonging to one Detection.
type Foe struct {
	ID          uint    `gorm:"primaryKey"`
	DetectionID uint    `gorm:"index;not null;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;foreignKey:DetectionID;references:ID"`
	Kind        string  `gorm:"index"` // Values: "RATS", "CROWS", "CATS", "HERONS", "PIGEONS", "UNKNOWN"
	Confidence  float64 // detector confidence in [0,1]
	BoxX        int     // bounding box in pixel coordinates
	BoxY        int
	BoxWidth    int
	BoxHeight   int
}

// Copy creates a deep copy of the Foe struct
func (f Foe) Copy() Foe {
	return Foe{
		ID:          f.ID,
		DetectionID: f.DetectionID,
		Kind:        f.Kind,
		Confidence:  f.Confidence,
		BoxX:        f.BoxX,
		BoxY:        f.BoxY,
		BoxWidth:    f.BoxWidth,
		BoxHeight:   f.BoxHeight,
	}
}

// DeterrentAction represents a single attempt to play a deterrent sound.
type DeterrentAction struct {
	ID          uint      `gorm:"primaryKey"`
	DetectionID uint      `gorm:"index;not null;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;foreignKey:DetectionID;references:ID"`
	ActionKind  string    // e.g. "sound_deterrent"
	TriggeredAt time.Time `gorm:"index"`
	Success     bool
	Details     string `gorm:"type:text"`
}

// SoundEffectiveness represents one measured deterrence outcome for a Detection.
type SoundEffectiveness struct {
	ID               uint      `gorm:"primaryKey"`
	DetectionID      uint      `gorm:"index;not null;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;foreignKey:DetectionID;references:ID"`
	PestKind         string    `gorm:"index:idx_effectiveness_key"`
	SoundFile        string    `gorm:"index:idx_effectiveness_key"`
	PlaybackMethod   string    `gorm:"type:varchar(20)"` // Values: "camera", "local"
	FoesBefore       int       // foe count before playback
	FoesAfter        int       // foe count on the follow-up snapshot
	ConfidenceBefore float64   // mean foe confidence before playback
	ConfidenceAfter  float64   // mean foe confidence on the follow-up
	WaitSeconds      int       // observation window between playback and follow-up
	Result           string    `gorm:"type:varchar(10);index"` // Values: "SUCCESS", "PARTIAL", "FAILURE", "UNKNOWN"
	Score            float64   // effectiveness score in [0,1]
	FollowUpPath     string    // follow-up snapshot path, empty when the fetch failed
	CreatedAt        time.Time `gorm:"index"`
}

// SoundStatistics aggregates measured outcomes per (pest kind, sound file).
// Rows are reconstructible from SoundEffectiveness history.
type SoundStatistics struct {
	ID                uint   `gorm:"primaryKey"`
	PestKind          string `gorm:"uniqueIndex:idx_sound_stats_key;not null"`
	SoundFile         string `gorm:"uniqueIndex:idx_sound_stats_key;not null"`
	TotalUses         int
	SuccessfulUses    int
	PartialUses       int
	FailedUses        int
	SuccessRate       float64 // successful/total
	MeanEffectiveness float64 // arithmetic mean of all scores for this key
	FirstUsedAt       time.Time
	LastUsedAt        time.Time
}

// TimeBasedEffectiveness aggregates measured outcomes per (pest kind, hour of day).
type TimeBasedEffectiveness struct {
	ID                   uint   `gorm:"primaryKey"`
	PestKind             string `gorm:"uniqueIndex:idx_time_effectiveness_key;not null"`
	HourOfDay            int    `gorm:"uniqueIndex:idx_time_effectiveness_key;not null"` // 0..23
	TotalDeterrents      int
	SuccessfulDeterrents int
	BestSound            string  // sound with the highest observed success rate for this slot
	BestSoundSuccessRate float64 // never decreases for a given (pest, hour)
	UpdatedAt            time.Time
}

// Setting represents a string-keyed, string-valued configuration record.
// Values are parsed and clamped by the settings accessor on read.
type Setting struct {
	ID        uint   `gorm:"primaryKey"`
	Key       string `gorm:"uniqueIndex;not null"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

// MediaForRemoval identifies detection media that has aged out of retention.
type MediaForRemoval struct {
	ID        uint
	ImagePath string
	VideoPath string
}
