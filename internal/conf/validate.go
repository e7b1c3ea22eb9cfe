// conf/validate.go

package conf

import (
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"time"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateMainSettings(&settings.Main); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateDatabaseSettings(&settings.Database); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateCamerasSettings(&settings.Cameras); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateMediaSettings(&settings.Media); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateDetectSettings(&settings.Detect); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateDeterrentsSettings(&settings.Deterrents); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateRateLimitSettings(&settings.RateLimit); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateOpsSettings(&settings.Ops); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// validateMainSettings validates node identity and timezone
func validateMainSettings(settings *MainSettings) error {
	var errs []string

	if settings.Name == "" {
		errs = append(errs, "main.name must not be empty")
	}

	if settings.Timezone != "" {
		if _, err := time.LoadLocation(settings.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("main.timezone %q is not a valid IANA timezone", settings.Timezone))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("main settings errors: %v", errs)
	}
	return nil
}

// validateDatabaseSettings ensures exactly one persistence backend is active
func validateDatabaseSettings(settings *DatabaseSettings) error {
	if settings.SQLite.Enabled && settings.MySQL.Enabled {
		return errors.New("only one of database.sqlite and database.mysql may be enabled")
	}
	if !settings.SQLite.Enabled && !settings.MySQL.Enabled {
		return errors.New("one of database.sqlite or database.mysql must be enabled")
	}
	if settings.SQLite.Enabled && settings.SQLite.Path == "" {
		return errors.New("database.sqlite.path is required when sqlite is enabled")
	}
	if settings.MySQL.Enabled {
		if settings.MySQL.Host == "" || settings.MySQL.Database == "" {
			return errors.New("database.mysql.host and database.mysql.database are required when mysql is enabled")
		}
	}
	return nil
}

// validateCamerasSettings validates the seeded integrations
func validateCamerasSettings(settings *CamerasSettings) error {
	var errs []string

	for i := range settings.Integrations {
		ic := &settings.Integrations[i]
		if ic.Name == "" {
			errs = append(errs, fmt.Sprintf("cameras.integrations[%d].name must not be empty", i))
		}
		switch ic.Kind {
		case "unifi_protect":
		case "":
			errs = append(errs, fmt.Sprintf("cameras.integrations[%d].kind must not be empty", i))
		default:
			errs = append(errs, fmt.Sprintf("cameras.integrations[%d].kind %q is not a supported provider", i, ic.Kind))
		}
		if ic.Enabled && ic.Host == "" {
			errs = append(errs, fmt.Sprintf("cameras.integrations[%d].host is required when enabled", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("cameras settings errors: %v", errs)
	}
	return nil
}

// validateMediaSettings validates storage dirs and resolves the ffmpeg path
func validateMediaSettings(settings *MediaSettings) error {
	var errs []string

	if settings.SnapshotsDir == "" {
		errs = append(errs, "media.snapshotsdir must not be empty")
	}
	if settings.VideosDir == "" {
		errs = append(errs, "media.videosdir must not be empty")
	}

	if settings.VideoDuration < 1 || settings.VideoDuration > 300 {
		errs = append(errs, fmt.Sprintf("media.videoduration must be between 1 and 300 seconds, got %d", settings.VideoDuration))
	}
	if settings.VideoRetentionDays < 1 || settings.VideoRetentionDays > 365 {
		errs = append(errs, fmt.Sprintf("media.videoretentiondays must be between 1 and 365, got %d", settings.VideoRetentionDays))
	}
	if _, err := ParsePercentage(settings.MaxUsage); err != nil {
		errs = append(errs, fmt.Sprintf("media.maxusage %q is not a valid percentage", settings.MaxUsage))
	}

	// Video capture degrades to a no-op without ffmpeg, not an error
	if IsFfmpegAvailable() {
		settings.FfmpegPath = GetFfmpegBinaryName()
	} else {
		settings.FfmpegPath = ""
		log.Println("FFmpeg not found in system PATH, video capture disabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("media settings errors: %v", errs)
	}
	return nil
}

// validateDetectSettings validates the detector backend selection
func validateDetectSettings(settings *DetectSettings) error {
	var errs []string

	switch settings.Provider {
	case "openai", "static":
	default:
		errs = append(errs, fmt.Sprintf("detect.provider %q is not supported (openai, static)", settings.Provider))
	}

	if settings.Provider == "openai" {
		if settings.Model == "" {
			errs = append(errs, "detect.model is required for the openai provider")
		}
		if settings.APIKey == "" {
			errs = append(errs, "OPENAI_API_KEY is required for the openai provider")
		}
	}

	if settings.Timeout < 1 || settings.Timeout > 300 {
		errs = append(errs, fmt.Sprintf("detect.timeout must be between 1 and 300 seconds, got %d", settings.Timeout))
	}

	if len(errs) > 0 {
		return fmt.Errorf("detect settings errors: %v", errs)
	}
	return nil
}

// validateDeterrentsSettings validates the sound library root and quiet hours
func validateDeterrentsSettings(settings *DeterrentsSettings) error {
	var errs []string

	if settings.SoundsDir == "" {
		errs = append(errs, "deterrents.soundsdir must not be empty")
	}

	if settings.MaxPlaybackSeconds < 1 || settings.MaxPlaybackSeconds > 60 {
		errs = append(errs, fmt.Sprintf("deterrents.maxplaybackseconds must be between 1 and 60, got %d", settings.MaxPlaybackSeconds))
	}

	qh := &settings.QuietHours
	if qh.Enabled {
		switch qh.Mode {
		case "sun":
			if qh.Latitude < -90 || qh.Latitude > 90 {
				errs = append(errs, "deterrents.quiethours.latitude must be between -90 and 90")
			}
			if qh.Longitude < -180 || qh.Longitude > 180 {
				errs = append(errs, "deterrents.quiethours.longitude must be between -180 and 180")
			}
		case "fixed":
			if _, err := ParseClock(qh.Start); err != nil {
				errs = append(errs, fmt.Sprintf("deterrents.quiethours.start %q is not a valid HH:MM time", qh.Start))
			}
			if _, err := ParseClock(qh.End); err != nil {
				errs = append(errs, fmt.Sprintf("deterrents.quiethours.end %q is not a valid HH:MM time", qh.End))
			}
		default:
			errs = append(errs, fmt.Sprintf("deterrents.quiethours.mode %q is not supported (sun, fixed)", qh.Mode))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("deterrents settings errors: %v", errs)
	}
	return nil
}

// validateRateLimitSettings validates the token bucket parameters
func validateRateLimitSettings(settings *RateLimitSettings) error {
	var errs []string

	if settings.RequestsPerSecond <= 0 {
		errs = append(errs, "ratelimit.requestspersecond must be positive")
	}
	if settings.Burst < 1 {
		errs = append(errs, "ratelimit.burst must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("ratelimit settings errors: %v", errs)
	}
	return nil
}

// validateOpsSettings validates the ops HTTP server listen address
func validateOpsSettings(settings *OpsSettings) error {
	if !settings.Enabled {
		return nil
	}
	if settings.Listen == "" {
		return errors.New("ops.listen is required when the ops server is enabled")
	}
	if _, _, err := net.SplitHostPort(settings.Listen); err != nil {
		return fmt.Errorf("ops.listen %q is not a valid host:port address", settings.Listen)
	}
	return nil
}

// ParseClock parses a HH:MM string into minutes since midnight.
func ParseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock time: %s", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock time: %s", s)
	}
	return h*60 + m, nil
}
