// internal/config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Baywatch BaywatchConfig `yaml:"baywatch"`
}

type BaywatchConfig struct {
	// BayCount synthesises bays 1..N when Bays is empty.
	BayCount int         `yaml:"bay_count"`
	Bays     []BayConfig `yaml:"bays"`

	Occupancy    OccupancyConfig    `yaml:"occupancy"`
	Stream       StreamConfig       `yaml:"stream"`
	Classifier   ClassifierConfig   `yaml:"classifier"`
	Monitor      MonitorConfig      `yaml:"monitor"`
	API          APIConfig          `yaml:"api"`
	Bus          BusConfig          `yaml:"bus"`
	StatusMemory StatusMemoryConfig `yaml:"status_memory"`
	Log          LogConfig          `yaml:"log"`
}

// ---- BAY ----

type BayConfig struct {
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
	URL  string `yaml:"url"`

	// Status block export (optional, opt-in)
	StatusSlot *uint16 `yaml:"status_slot"`
}

// ---- OCCUPANCY ----

type OccupancyConfig struct {
	AvailableToInUseThreshold int `yaml:"available_to_in_use_threshold"`
	InUseToAvailableThreshold int `yaml:"in_use_to_available_threshold"`
	ConnectionGracePeriodS    *int `yaml:"connection_grace_period_s"` // 0 disables the grace period
	FrameTimeoutS             int `yaml:"frame_timeout_s"`
}

// ---- STREAM ----

type StreamConfig struct {
	MaxReconnectAttempts   int `yaml:"max_reconnect_attempts"`
	BaseReconnectIntervalS int `yaml:"base_reconnect_interval_s"`
	MaxReconnectIntervalS  int `yaml:"max_reconnect_interval_s"`
	ConnectionTimeoutS     int `yaml:"connection_timeout_s"`
	ReadTimeoutMs          int `yaml:"read_timeout_ms"`
	TargetFPS              int `yaml:"target_fps"`
	BufferSize             int `yaml:"buffer_size"`

	// keyed by "high", "medium", "low"
	QualityLevels map[string]QualityConfig `yaml:"quality_levels"`
}

type QualityConfig struct {
	FPS        int `yaml:"fps"`
	BufferSize int `yaml:"buffer_size"`
}

// ---- CLASSIFIER ----

type ClassifierConfig struct {
	LearningFrames      int     `yaml:"learning_frames"`
	LearningRate        float64 `yaml:"learning_rate"`
	BayCenterRatio      float64 `yaml:"bay_center_ratio"`
	PixelThreshold      int     `yaml:"pixel_threshold"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	TimeoutMs           int     `yaml:"classify_timeout_ms"`
}

// ---- MONITOR ----

type MonitorConfig struct {
	PollIntervalMs               int `yaml:"poll_interval_ms"`
	SampleTimeoutMs              int `yaml:"sample_timeout_ms"`
	HealthCheckIntervalS         int `yaml:"health_check_interval_s"`
	StatusLogIntervalS           int `yaml:"status_log_interval_s"`
	AssumedDowntimePerReconnectS *int `yaml:"assumed_downtime_per_reconnect_s"` // 0 disables the penalty
	StopTimeoutMs                int `yaml:"stop_timeout_ms"`
}

// ---- API ----

type APIConfig struct {
	Listen string `yaml:"listen"`
}

// ---- BUS ----

type BusConfig struct {
	// "none", "nats" or "mqtt"
	Kind        string `yaml:"kind"`
	URL         string `yaml:"url"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
}

// ---- STATUS MEMORY ----

type StatusMemoryConfig struct {
	Endpoint  string `yaml:"endpoint"`
	UnitID    uint8  `yaml:"unit_id"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- LOG ----

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses a YAML config file.
// No defaults are applied here.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes YAML bytes into a Config.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return &cfg, nil
}
