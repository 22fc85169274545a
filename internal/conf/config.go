// config.go: settings struct and functions to load and save the
// zombiewatch-go configuration.
package conf

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// DetectorSettings contains settings for the primary object detector.
type DetectorSettings struct {
	ModelPath     string  // path to the detector tflite model
	Confidence    float64 // detection confidence threshold
	TargetClasses []int   // class ids counted as threats, empty means class 0 only
	UseXNNPACK    bool    // true to enable XNNPACK delegate
	Threads       int     // tflite interpreter threads, 0 for runtime default
}

// ClassifierSettings contains settings for the secondary scene classifier.
type ClassifierSettings struct {
	Enabled           bool    // true to run the whole-frame scene classifier
	ModelPath         string  // path to the classifier tflite model
	PresenceThreshold float64 // probability above which a positive scene verdict counts as presence
}

// PerformanceSettings is the governor baseline profile.
type PerformanceSettings struct {
	Mode          string  // "detection", "balanced" or "performance"
	Interval      float64 // seconds between processed frames
	ResizeFactor  float64 // frame downscale factor, 0-1
	SkipRatio     int     // process only every Nth frame
	CPUThreshold  float64 // CPU percent above which the governor degrades
	CheckInterval int     // seconds between CPU samples
}

// HistorySettings controls the detection-history confirmation stage.
type HistorySettings struct {
	Size               int // sliding window capacity
	RequiredDetections int // nonzero frames in window required to confirm
}

// ArtifactSettings controls debug frame persistence.
type ArtifactSettings struct {
	Enabled      bool   // save annotated frames for confirmed detections
	Path         string // directory for saved frames
	MaxPerDay    int    // maximum saved frames per day
	MaxUsageMB   int    // maximum directory size in megabytes
	SweepMinutes int    // retention sweep interval in minutes
}

// WatcherSettings contains settings for the monitoring loop.
type WatcherSettings struct {
	Display         int    // display index to capture, 0 is primary
	FollowupDelayMs int    // delay between immediate and followup reactions
	ProcessingTime  bool   // true to report per-frame processing time
	Performance     PerformanceSettings
	History         HistorySettings
	Artifacts       ArtifactSettings
}

// CooldownSettings holds per-tier confirm cooldowns in seconds.
type CooldownSettings struct {
	Few     float64
	Warning float64
	Many    float64
}

// MQTTSettings contains settings for the optional MQTT alert publisher.
type MQTTSettings struct {
	Enabled  bool
	Broker   string // broker URL, e.g. tcp://localhost:1883
	Topic    string
	Username string
	Password string
}

// NotificationSettings controls arbitration and the push channel.
type NotificationSettings struct {
	GlobalMinInterval float64 // seconds between any two grants
	SourceMinInterval float64 // seconds between grants to the same source
	Cooldowns         CooldownSettings
	MaxStored         int // maximum events kept in memory
	MQTT              MQTTSettings
}

// VoiceSettings contains settings for the speech synthesis gateway.
type VoiceSettings struct {
	Enabled         bool
	Host            string  // speech engine host
	Port            int     // speech engine port
	SpeakerID       int     // speaker/voice id
	RequestTimeout  int     // per-request timeout in seconds
	CacheTTLMinutes int     // synthesized audio cache TTL
	DuplicateWindow float64 // seconds within which identical utterances are suppressed
}

// OutputSettings controls detection persistence.
type OutputSettings struct {
	SQLite struct {
		Enabled bool
		Path    string
	}
	Log struct {
		Enabled bool
		Path    string // per-day detection text log directory
	}
}

// WebServerSettings contains settings for the control API.
type WebServerSettings struct {
	Enabled bool
	Port    string
}

// Settings is the root configuration tree.
type Settings struct {
	Debug bool

	Main struct {
		Name string // application instance name
		Log  struct {
			Enabled bool
			Path    string
		}
	}

	Detector     DetectorSettings
	Classifier   ClassifierSettings
	Watcher      WatcherSettings
	Notification NotificationSettings
	Voice        VoiceSettings
	Output       OutputSettings
	WebServer    WebServerSettings
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration from disk and returns validated settings.
func Load() (*Settings, error) {
	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()
	return settings, nil
}

// initViper initializes viper with config file paths and default values.
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

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("fatal error reading config file: %w", err)
		}
		// No config file found, create one from defaults.
		return createDefaultConfig(configPaths[0])
	}

	return nil
}

// createDefaultConfig writes the current (default) viper state to disk.
func createDefaultConfig(configPath string) error {
	if err := os.MkdirAll(configPath, 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	configFile := filepath.Join(configPath, "config.yaml")
	log.Printf("Config file not found, creating %s with defaults", configFile)
	if err := viper.SafeWriteConfigAs(configFile); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}
	return nil
}

// GetDefaultConfigPaths returns the list of directories searched for
// config.yaml, user config directory first, then the working directory.
func GetDefaultConfigPaths() ([]string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user config directory: %w", err)
	}
	return []string{
		filepath.Join(configDir, "zombiewatch-go"),
		".",
	}, nil
}

// Setting returns the global settings instance, loading it on first use.
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				log.Fatalf("error loading settings: %v", err)
			}
		}
	})
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// GetBasePath expands a relative configuration path against the working
// directory and ensures the directory exists.
func GetBasePath(path string) string {
	if !filepath.IsAbs(path) {
		wd, err := os.Getwd()
		if err == nil {
			path = filepath.Join(wd, path)
		}
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		log.Printf("error creating directory %s: %v", path, err)
	}
	return path
}
