// Package settings exposes a typed accessor over the stringly-typed runtime
// settings table. Values are parsed on read, clamped to their declared
// ranges, and cached briefly so a detection tick never issues more than one
// query per key.
package settings

import (
	"io"
	"log"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/tphakala/pestguard-go/internal/logging"
)

// Package-level logger specific to the settings accessor
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar) // Dynamic level control
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "settings.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "settings", serviceLevelVar.Level())
	if err != nil {
		log.Printf("Failed to initialize settings file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "settings")
		closeLogger = func() error { return nil }
	}
}

// Well-known settings keys.
const (
	KeyDetectionInterval     = "detection_interval"
	KeySnapshotCaptureLevel  = "snapshot_capture_level"
	KeyDeterrentsEnabled     = "deterrents_enabled"
	KeyConfidenceThreshold   = "confidence_threshold"
	KeyMaxImageSizeMB        = "max_image_size_mb"
	KeySnapshotRetentionDays = "snapshot_retention_days"
	KeyTimezone              = "timezone"
	KeyUserLanguage          = "user_language"
	KeyExplorationRate       = "exploration_rate"
	KeyChangeThreshold       = "change_threshold"
	KeySimilarityThreshold   = "similarity_threshold"
	KeyMaxGroupSize          = "max_group_size"
)

// cacheTTL bounds staleness to the shortest legal detection interval, so a
// cached value is never older than one tick.
const cacheTTL = 1 * time.Second

// Datastore is the slice of the persistence layer the accessor needs.
type Datastore interface {
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
}

// Store reads and writes runtime settings with per-key caching.
type Store struct {
	ds    Datastore
	cache *cache.Cache
}

// New creates a settings accessor backed by the given datastore.
func New(ds Datastore) *Store {
	return &Store{
		ds:    ds,
		cache: cache.New(cacheTTL, time.Minute),
	}
}

// raw returns the stored string for a key, consulting the cache first. The
// empty string with ok=false means the key is unset or unreadable.
func (s *Store) raw(key string) (string, bool) {
	if cached, found := s.cache.Get(key); found {
		value, ok := cached.(string)
		return value, ok
	}

	value, err := s.ds.GetSetting(key)
	if err != nil {
		return "", false
	}
	s.cache.Set(key, value, cache.DefaultExpiration)
	return value, true
}

// Set writes a settings key and drops it from the cache so the next read
// observes the new value immediately.
func (s *Store) Set(key, value string) error {
	if err := s.ds.SetSetting(key, value); err != nil {
		return err
	}
	s.cache.Delete(key)
	return nil
}

// Flush drops every cached value.
func (s *Store) Flush() {
	s.cache.Flush()
}

// intSetting parses an integer key, falling back to def on a missing or
// malformed value and clamping to [minVal, maxVal].
func (s *Store) intSetting(key string, def, minVal, maxVal int) int {
	raw, ok := s.raw(key)
	if !ok {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		logger.Debug("Ignoring malformed setting", "key", key, "value", raw)
		return def
	}
	return clampInt(value, minVal, maxVal)
}

// floatSetting parses a float key with the same fallback and clamp behavior.
func (s *Store) floatSetting(key string, def, minVal, maxVal float64) float64 {
	raw, ok := s.raw(key)
	if !ok {
		return def
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		logger.Debug("Ignoring malformed setting", "key", key, "value", raw)
		return def
	}
	return clampFloat(value, minVal, maxVal)
}

// boolSetting parses a boolean key.
func (s *Store) boolSetting(key string, def bool) bool {
	raw, ok := s.raw(key)
	if !ok {
		return def
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		logger.Debug("Ignoring malformed setting", "key", key, "value", raw)
		return def
	}
	return value
}

func clampInt(v, minVal, maxVal int) int {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}

func clampFloat(v, minVal, maxVal float64) float64 {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}

// DetectionInterval returns the seconds between detection ticks, 1..30.
func (s *Store) DetectionInterval() int {
	return s.intSetting(KeyDetectionInterval, 10, 1, 30)
}

// SnapshotCaptureLevel returns the snapshot persistence policy: 0 persists
// only when a foe is identified, 1 persists on any change, 2 persists every
// poll.
func (s *Store) SnapshotCaptureLevel() int {
	return s.intSetting(KeySnapshotCaptureLevel, 1, 0, 2)
}

// DeterrentsEnabled reports whether the deterrence flow may run.
func (s *Store) DeterrentsEnabled() bool {
	return s.boolSetting(KeyDeterrentsEnabled, true)
}

// ConfidenceThreshold returns the minimum detector confidence for a foe to
// count, 0.1..1.0.
func (s *Store) ConfidenceThreshold() float64 {
	return s.floatSetting(KeyConfidenceThreshold, 0.5, 0.1, 1.0)
}

// MaxImageSizeMB returns the snapshot size gate in megabytes, 1..50.
func (s *Store) MaxImageSizeMB() int {
	return s.intSetting(KeyMaxImageSizeMB, 10, 1, 50)
}

// SnapshotRetentionDays returns how long media files are kept, 1..365.
func (s *Store) SnapshotRetentionDays() int {
	return s.intSetting(KeySnapshotRetentionDays, 7, 1, 365)
}

// Timezone returns the configured IANA timezone, falling back to UTC when the
// value is unset or invalid. Used for hour-of-day statistics.
func (s *Store) Timezone() *time.Location {
	raw, ok := s.raw(KeyTimezone)
	if !ok || raw == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(raw)
	if err != nil {
		logger.Debug("Ignoring invalid timezone setting", "value", raw)
		return time.UTC
	}
	return loc
}

// UserLanguage returns the operator language tag, default "en".
func (s *Store) UserLanguage() string {
	raw, ok := s.raw(KeyUserLanguage)
	if !ok || raw == "" {
		return "en"
	}
	return raw
}

// ExplorationRate returns the exploit probability of the sound selector,
// 0..1.
func (s *Store) ExplorationRate() float64 {
	return s.floatSetting(KeyExplorationRate, 0.5, 0, 1)
}

// ChangeThreshold returns the Hamming distance below which two consecutive
// snapshots count as unchanged, 0..32.
func (s *Store) ChangeThreshold() int {
	return s.intSetting(KeyChangeThreshold, 10, 0, 32)
}

// SimilarityThreshold returns the Hamming distance at or below which two
// hashes are considered similar for grouping, 0..32.
func (s *Store) SimilarityThreshold() int {
	return s.intSetting(KeySimilarityThreshold, 8, 0, 32)
}

// MaxGroupSize returns the cap on visually-similar detection groups, 2..20.
func (s *Store) MaxGroupSize() int {
	return s.intSetting(KeyMaxGroupSize, 5, 2, 20)
}
