// config.go: defines the settings struct and functions to load and access settings.
package conf

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// LogConfig contains settings for a rotated log file.
type LogConfig struct {
	Enabled    bool   // true to enable this log
	Path       string // path to the log file
	MaxSizeMB  int    // rotate after this many megabytes
	MaxBackups int    // rotated files to keep
	MaxAgeDays int    // days to keep rotated files
}

// MainSettings contains top-level application settings.
type MainSettings struct {
	Name string    // name of the node, used in log and alert messages
	Log  LogConfig // main log settings
}

// StreamSettings contains settings for camera and viewer WebSocket sessions.
type StreamSettings struct {
	ReadBufferSize   int // websocket read buffer size in bytes
	WriteBufferSize  int // websocket write buffer size in bytes
	SendTimeoutMs    int // per-viewer write deadline for broadcasts
	KeepaliveSeconds int // idle interval before a keepalive is sent to viewers
	MaxClipBytes     int // upper bound for an assembled clip, larger clips are discarded
	ArtifactRingSize int // completed artifacts retained per camera for the pull API
}

// InferenceSettings contains settings for the detection backend and worker pool.
type InferenceSettings struct {
	BackendURL       string  // base URL of the detection backend, e.g. http://localhost:9000
	Workers          int     // number of concurrent inference workers (1-4 typical)
	RequestTimeoutMs int     // per-request timeout against the backend
	DrawThreshold    float64 // minimum confidence for drawing a bounding box
}

// ThrottleSettings contains settings for adaptive inference gating.
type ThrottleSettings struct {
	InitialInterval   int     // starting frame interval between inference runs
	MinInterval       int     // lower bound for the frame interval
	MaxInterval       int     // upper bound for the frame interval
	ForceAfterMs      int     // run inference after this many ms regardless of frame count
	SlowThresholdMs   float64 // inference slower than this grows the interval
	FastThresholdMs   float64 // inference faster than this shrinks the interval
	GrowStep          int     // interval increase on slow inference
	ShrinkStep        int     // interval decrease on fast inference
	ViewerLatencyHigh float64 // viewer-reported latency (ms) above this grows the interval
	ViewerLatencyLow  float64 // viewer-reported latency (ms) below this shrinks the interval
}

// VoiceChannelSettings configures the outbound voice-call alert API.
type VoiceChannelSettings struct {
	Enabled    bool
	BaseURL    string // voice campaign API base URL
	CampaignID string // campaign started for each civilian alert
	Token      string // bearer token
	TimeoutMs  int
}

// MessageChannelSettings configures the outbound template-message alert API.
type MessageChannelSettings struct {
	Enabled       bool
	BaseURL       string // graph-style messaging API base URL
	PhoneNumberID string
	Token         string
	TemplateName  string // message template used for species alerts
	LanguageCode  string
	TimeoutMs     int
	RatePerMinute int    // outbound sends per minute per channel
}

// PushChannelSettings configures supplementary push notifications (shoutrrr URLs).
type PushChannelSettings struct {
	Enabled bool
	URLs    []string
}

// EvidenceSettings configures durable storage of alert evidence clips.
type EvidenceSettings struct {
	Path        string // local directory for evidence clips
	MaxVideoMB  int    // evidence larger than this is re-encoded before dispatch
	UseS3       bool   // true to store evidence in S3-compatible storage
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool
}

// AlertSettings contains settings for the alert triage engine.
type AlertSettings struct {
	CooldownMinutes     int                    // minimum minutes between alerts for one channel/location
	DangerousThreshold  float64                // minimum confidence for a dangerous-tier alert
	EndangeredThreshold float64                // minimum confidence for an endangered-tier alert
	OfficialRecipients  []string               // phone numbers for official-channel messages
	Voice               VoiceChannelSettings
	Message             MessageChannelSettings
	Push                PushChannelSettings
	Evidence            EvidenceSettings
}

// WebServerSettings contains settings for the HTTP/WebSocket server.
type WebServerSettings struct {
	Enabled bool
	Port    string
	Debug   bool
	Log     LogConfig
}

// DirectorySettings configures the camera directory database.
type DirectorySettings struct {
	Path string // sqlite database path
}

// Settings is the top-level configuration for wildguard.
type Settings struct {
	Debug bool // true to enable debug logging

	Main      MainSettings
	Stream    StreamSettings
	Inference InferenceSettings
	Throttle  ThrottleSettings
	Alerts    AlertSettings
	WebServer WebServerSettings
	Directory DirectorySettings
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a Settings
// struct, validates it, and installs it as the current instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

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

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/wildguard")
	viper.AddConfigPath("/etc/wildguard")

	viper.SetEnvPrefix("wildguard")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults are defined in defaults.go
	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// No config file is fine, defaults plus env cover a full run
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
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
			if _, err := Load(); err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}
