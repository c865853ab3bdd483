package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultDBFile            = "cctv.db"
	defaultRecordingsDir     = "recordings"
	defaultSettingsFile      = "config.json"
	defaultModelsDir         = "resources/models"
	defaultDeviceWidth       = 640
	defaultDeviceHeight      = 480
	defaultDeviceFPS         = 15
	defaultSnapshotFPS       = 6.0
	defaultMinMotionArea     = 800.0
	defaultPersonIntervalMS  = 600
	defaultEmergencyArea     = 0.22
	defaultEmergencyHeight   = 0.45
	defaultMotionGraceSec    = 10
	defaultCooldownSec       = 30
	defaultSettingsReloadSec = 5
	defaultQueueSize         = 256
	defaultPollMS            = 200
	defaultHealthCheckSec    = 2
	defaultStaleSec          = 8
	defaultMaxRetry          = 6
	defaultMaxDelaySec       = 30
)

// Config holds service runtime settings decoded from one TOML file.
// Params: TOML sections for paths, logging, detection, recording, alerting,
// and the health supervisor.
// Returns: validated runtime configuration with defaults applied.
type Config struct {
	Service    ServiceConfig    `toml:"service"`
	Log        LogConfig        `toml:"log"`
	Capture    CaptureConfig    `toml:"capture"`
	Detect     DetectConfig     `toml:"detect"`
	Record     RecordConfig     `toml:"record"`
	Alert      AlertConfig      `toml:"alert"`
	Supervisor SupervisorConfig `toml:"supervisor"`
}

// ServiceConfig contains process-level paths and identity.
// Params: data root, camera database path, and optional dotenv file.
// Returns: filesystem layout for the running service.
type ServiceConfig struct {
	DataDir string `toml:"data_dir"`
	DBPath  string `toml:"db_path"`
	EnvFile string `toml:"env_file"`
}

// LogConfig contains console/file logging sinks.
// Params: sink settings for each output target.
// Returns: logger setup options.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink enable flag, level, format, and path.
// Returns: sink-specific behavior.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// CaptureConfig tunes frame producers.
// Params: preferred low-cost device profile and snapshot poll rate.
// Returns: capture parameters shared by all sources of one kind.
type CaptureConfig struct {
	DeviceWidth  int     `toml:"device_width"`
	DeviceHeight int     `toml:"device_height"`
	DeviceFPS    float64 `toml:"device_fps"`
	SnapshotFPS  float64 `toml:"snapshot_fps"`
}

// DetectConfig tunes the motion and person detection stage.
// Params: model directory, noise floor, throttle, and escalation thresholds.
// Returns: detection parameters applied per source.
type DetectConfig struct {
	ModelsDir            string  `toml:"models_dir"`
	MinMotionArea        float64 `toml:"min_motion_area"`
	PersonIntervalMS     int     `toml:"person_interval_ms"`
	EmergencyAreaRatio   float64 `toml:"emergency_area_ratio"`
	EmergencyHeightRatio float64 `toml:"emergency_height_ratio"`
}

// RecordConfig tunes the recording policy engine.
// Params: grace window kept recording after motion stops.
// Returns: recording parameters applied per source.
type RecordConfig struct {
	MotionGraceSec int `toml:"motion_grace_sec"`
}

// AlertConfig tunes the alert dispatch worker.
// Params: settings document path, alert artifact dir, cooldown, reload
// cadence, and queue sizing.
// Returns: dispatch worker parameters.
type AlertConfig struct {
	SettingsPath       string `toml:"settings_path"`
	AlertsDir          string `toml:"alerts_dir"`
	CooldownSec        int    `toml:"cooldown_sec"`
	SettingsReloadSec  int    `toml:"settings_reload_sec"`
	QueueSize          int    `toml:"queue_size"`
	PollTimeoutMS      int    `toml:"poll_timeout_ms"`
	CallAnnouncement   string `toml:"call_announcement"`
	EmailSubjectPrefix string `toml:"email_subject_prefix"`
}

// SupervisorConfig tunes the per-source health monitor.
// Params: check cadence, staleness threshold, and backoff bounds.
// Returns: reconnect supervisor parameters.
type SupervisorConfig struct {
	CheckSec    int `toml:"check_sec"`
	StaleSec    int `toml:"stale_sec"`
	MaxRetry    int `toml:"max_retry"`
	MaxDelaySec int `toml:"max_delay_sec"`
}

// Load reads and validates one TOML config file.
// Params: config file path; empty path yields pure defaults.
// Returns: config with defaults applied or decode/validation error.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		body, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := toml.Unmarshal(body, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %q: %w", path, err)
		}
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDefaults fills unset fields with documented defaults.
// Params: mutable config pointer.
// Returns: config updated in place.
func applyDefaults(cfg *Config) {
	if cfg.Service.DataDir == "" {
		cfg.Service.DataDir = "."
	}
	if cfg.Service.DBPath == "" {
		cfg.Service.DBPath = filepath.Join(cfg.Service.DataDir, defaultDBFile)
	}
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console = LogSinkConfig{Enabled: true, Level: "info", Format: "line"}
	}
	if cfg.Log.Console.Enabled {
		if cfg.Log.Console.Level == "" {
			cfg.Log.Console.Level = "info"
		}
		if cfg.Log.Console.Format == "" {
			cfg.Log.Console.Format = "line"
		}
	}
	if cfg.Log.File.Enabled {
		if cfg.Log.File.Level == "" {
			cfg.Log.File.Level = "info"
		}
		if cfg.Log.File.Format == "" {
			cfg.Log.File.Format = "json"
		}
	}
	if cfg.Capture.DeviceWidth <= 0 {
		cfg.Capture.DeviceWidth = defaultDeviceWidth
	}
	if cfg.Capture.DeviceHeight <= 0 {
		cfg.Capture.DeviceHeight = defaultDeviceHeight
	}
	if cfg.Capture.DeviceFPS <= 0 {
		cfg.Capture.DeviceFPS = defaultDeviceFPS
	}
	if cfg.Capture.SnapshotFPS <= 0 {
		cfg.Capture.SnapshotFPS = defaultSnapshotFPS
	}
	if cfg.Detect.ModelsDir == "" {
		cfg.Detect.ModelsDir = filepath.Join(cfg.Service.DataDir, defaultModelsDir)
	}
	if cfg.Detect.MinMotionArea <= 0 {
		cfg.Detect.MinMotionArea = defaultMinMotionArea
	}
	if cfg.Detect.PersonIntervalMS <= 0 {
		cfg.Detect.PersonIntervalMS = defaultPersonIntervalMS
	}
	if cfg.Detect.EmergencyAreaRatio <= 0 {
		cfg.Detect.EmergencyAreaRatio = defaultEmergencyArea
	}
	if cfg.Detect.EmergencyHeightRatio <= 0 {
		cfg.Detect.EmergencyHeightRatio = defaultEmergencyHeight
	}
	if cfg.Record.MotionGraceSec <= 0 {
		cfg.Record.MotionGraceSec = defaultMotionGraceSec
	}
	if cfg.Alert.SettingsPath == "" {
		cfg.Alert.SettingsPath = filepath.Join(cfg.Service.DataDir, defaultSettingsFile)
	}
	if cfg.Alert.AlertsDir == "" {
		cfg.Alert.AlertsDir = filepath.Join(cfg.Service.DataDir, defaultRecordingsDir, "alerts")
	}
	if cfg.Alert.CooldownSec <= 0 {
		cfg.Alert.CooldownSec = defaultCooldownSec
	}
	if cfg.Alert.SettingsReloadSec <= 0 {
		cfg.Alert.SettingsReloadSec = defaultSettingsReloadSec
	}
	if cfg.Alert.QueueSize <= 0 {
		cfg.Alert.QueueSize = defaultQueueSize
	}
	if cfg.Alert.PollTimeoutMS <= 0 {
		cfg.Alert.PollTimeoutMS = defaultPollMS
	}
	if cfg.Alert.CallAnnouncement == "" {
		cfg.Alert.CallAnnouncement = "Intrusion detected at the main door"
	}
	if cfg.Supervisor.CheckSec <= 0 {
		cfg.Supervisor.CheckSec = defaultHealthCheckSec
	}
	if cfg.Supervisor.StaleSec <= 0 {
		cfg.Supervisor.StaleSec = defaultStaleSec
	}
	if cfg.Supervisor.MaxRetry <= 0 {
		cfg.Supervisor.MaxRetry = defaultMaxRetry
	}
	if cfg.Supervisor.MaxDelaySec <= 0 {
		cfg.Supervisor.MaxDelaySec = defaultMaxDelaySec
	}
}

// Validate checks cross-field invariants not coverable by defaults.
// Params: config after defaults.
// Returns: first validation error.
func (c Config) Validate() error {
	if c.Detect.EmergencyAreaRatio >= 1 {
		return errors.New("detect.emergency_area_ratio must be <1")
	}
	if c.Detect.EmergencyHeightRatio >= 1 {
		return errors.New("detect.emergency_height_ratio must be <1")
	}
	if c.Supervisor.StaleSec <= c.Supervisor.CheckSec {
		return fmt.Errorf(
			"supervisor.stale_sec (%d) must exceed supervisor.check_sec (%d)",
			c.Supervisor.StaleSec, c.Supervisor.CheckSec,
		)
	}
	return nil
}
