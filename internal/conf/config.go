// config.go: settings struct and functions to load and save the PestGuard configuration.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var configFiles embed.FS

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled     bool         // true to enable this log
	Path        string       // path to the log file
	Level       string       // trace, debug, info, warn, error
	Rotation    RotationType // type of log rotation
	MaxSize     int64        // max size in bytes for RotationSize
	RotationDay string       // day of the week for RotationWeekly
}

// RotationType defines different types of log rotations.
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

// MainSettings identifies the node and its base behavior.
type MainSettings struct {
	Name     string    // name of this PestGuard node
	Timezone string    // IANA timezone used for hour-of-day statistics
	Log      LogConfig // main logging configuration
}

// DatabaseSettings selects and configures the persistence backend.
type DatabaseSettings struct {
	SQLite struct {
		Enabled bool   // true to use sqlite
		Path    string // path to sqlite database file
	}
	MySQL struct {
		Enabled  bool   // true to use mysql
		Username string // username for mysql database
		Password string // password for mysql database
		Database string // database name
		Host     string // mysql host
		Port     string // mysql port
	}
}

// IntegrationConfig is the file-seeded description of one camera provider
// connection. Synced into the Integration table at startup.
type IntegrationConfig struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"` // provider kind tag, e.g. "unifi_protect"
	Host    string `yaml:"host"`
	APIKey  string `yaml:"apikey"`
	Enabled bool   `yaml:"enabled"`
}

// CamerasSettings holds camera provider connections.
type CamerasSettings struct {
	Integrations []IntegrationConfig `yaml:"integrations"`
}

// MediaSettings holds capture storage and transcoder configuration.
type MediaSettings struct {
	SnapshotsDir       string // directory for persisted snapshots
	VideosDir          string // directory for captured videos
	CacheDir           string // directory for rebuildable caches (thumbnails)
	FfmpegPath         string `yaml:"-"` // resolved at startup
	VideoDuration      int    // video capture duration in seconds
	VideoRetentionDays int    // days to keep captured videos
	MaxUsage           string // max disk usage percentage before cleanup, e.g. "90%"
}

// DetectSettings configures the foe detector backend.
type DetectSettings struct {
	Provider string // "openai" or "static"
	Model    string // model identifier for remote providers
	Endpoint string // API endpoint override, empty for provider default
	APIKey   string `yaml:"-"` // from OPENAI_API_KEY, never persisted
	Timeout  int    // request timeout in seconds
}

// QuietHoursSettings suppresses deterrent playback during a window.
type QuietHoursSettings struct {
	Enabled   bool    // true to enable quiet hours
	Mode      string  // "sun" (dusk to dawn) or "fixed"
	Latitude  float64 // location for sun calculations
	Longitude float64
	Start     string // HH:MM start for fixed mode
	End       string // HH:MM end for fixed mode
}

// DeterrentsSettings holds the sound library and playback configuration.
type DeterrentsSettings struct {
	SoundsDir          string             // root of the per-pest sound library
	MaxPlaybackSeconds int                // hard cap per playback
	QuietHours         QuietHoursSettings // playback suppression window
}

// RateLimitSettings are the per-integration token bucket defaults.
type RateLimitSettings struct {
	RequestsPerSecond float64 // refill rate R, may be fractional
	Burst             int     // bucket capacity B
}

// OpsSettings configures the operations HTTP server.
type OpsSettings struct {
	Enabled bool   // true to serve /healthz, /metrics and the ops API
	Listen  string // listen address, e.g. "0.0.0.0:8090"
}

// MQTTSettings contains settings for MQTT event publishing.
type MQTTSettings struct {
	Enabled     bool   // true to enable MQTT
	Broker      string // MQTT broker (tcp://host:port)
	TopicPrefix string // topic prefix, e.g. "pestguard"
	Username    string // MQTT username
	Password    string // MQTT password
	Retain      bool   // retain flag for published messages
}

// NotificationSettings configures shoutrrr push notifications.
type NotificationSettings struct {
	Enabled            bool     // true to enable notifications
	URLs               []string // shoutrrr service URLs
	MinIntervalSeconds int      // minimum seconds between notifications per event kind
}

// SentrySettings gates the opt-in error telemetry.
type SentrySettings struct {
	Enabled bool   // true to enable Sentry error reporting
	DSN     string // Sentry DSN, empty disables reporting
}

// Settings contains all configuration options for the PestGuard engine.
type Settings struct {
	Debug bool // true to enable debug mode

	// Runtime values, not stored in config file
	Version   string `yaml:"-"` // version from build
	BuildDate string `yaml:"-"` // build date from build

	Main         MainSettings         // node identity and logging
	Database     DatabaseSettings     // persistence backend
	Cameras      CamerasSettings      // camera provider connections
	Media        MediaSettings        // snapshot/video storage and ffmpeg
	Detect       DetectSettings       // foe detector backend
	Deterrents   DeterrentsSettings   // sound library and playback
	RateLimit    RateLimitSettings    // per-integration bucket defaults
	Ops          OpsSettings          // operations HTTP server
	MQTT         MQTTSettings         // MQTT event publishing
	Notification NotificationSettings // push notifications
	Sentry       SentrySettings       // error telemetry
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into the settings singleton.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	// Initialize viper and read config
	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	// Unmarshal the config into settings
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	// Environment overrides recognized at startup
	applyEnvironment(settings)

	// Validate settings
	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig creates a default config file and writes it to the default config path
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")
	defaultConfig := getDefaultConfig()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}
	return string(data)
}

// applyEnvironment applies the startup environment variables recognized by the
// engine: OPENAI_API_KEY, DATABASE_URL and LOG_LEVEL.
func applyEnvironment(settings *Settings) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		settings.Detect.APIKey = key
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		settings.Main.Log.Level = level
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		applyDatabaseURL(settings, dbURL)
	}
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			_, err := Load()
			if err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// SaveSettings saves the current settings to the configuration file.
func SaveSettings() error {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()

	settingsCopy := *settingsInstance

	configPath, err := FindConfigFile()
	if err != nil {
		return fmt.Errorf("error finding config file: %w", err)
	}

	if err := SaveYAMLConfig(configPath, &settingsCopy); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}

	log.Printf("Settings saved successfully to %s", configPath)
	return nil
}

// SaveYAMLConfig updates the YAML configuration file with new settings.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	// Write through a temporary file so the replace is atomic
	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		// Rename fails across filesystems, fall back to copy and delete
		if err := moveFile(tempFileName, configPath); err != nil {
			return fmt.Errorf("error copying config file: %w", err)
		}
	}

	return nil
}

// RedactedYAML renders the current settings as YAML with credentials blanked.
// Used by the ops API config endpoint.
func (s *Settings) RedactedYAML() ([]byte, error) {
	redacted := *s
	redacted.Database.MySQL.Password = ""
	redacted.MQTT.Password = ""
	redacted.Sentry.DSN = ""
	redacted.Detect.APIKey = ""
	redacted.Cameras.Integrations = make([]IntegrationConfig, len(s.Cameras.Integrations))
	for i, ic := range s.Cameras.Integrations {
		ic.APIKey = ""
		redacted.Cameras.Integrations[i] = ic
	}
	redacted.Notification.URLs = nil

	return yaml.Marshal(&redacted)
}
