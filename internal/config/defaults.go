// internal/config/defaults.go
package config

import (
	"os"
	"strconv"
	"time"
)

// Default values for every recognized option.
const (
	DefaultBayCount = 4

	DefaultAvailableToInUseThreshold = 2
	DefaultInUseToAvailableThreshold = 8
	DefaultConnectionGracePeriodS    = 10
	DefaultFrameTimeoutS             = 30

	DefaultMaxReconnectAttempts   = 10
	DefaultBaseReconnectIntervalS = 2
	DefaultMaxReconnectIntervalS  = 60
	DefaultConnectionTimeoutS     = 15
	DefaultReadTimeoutMs          = 5000
	DefaultTargetFPS              = 10
	DefaultBufferSize             = 1

	DefaultLearningFrames      = 100
	DefaultLearningRate        = 0.001
	DefaultBayCenterRatio      = 0.4
	DefaultPixelThreshold      = 40
	DefaultConfidenceThreshold = 0.1
	DefaultClassifyTimeoutMs   = 500

	DefaultPollIntervalMs               = 1000
	DefaultSampleTimeoutMs              = 3000
	DefaultHealthCheckIntervalS         = 60
	DefaultStatusLogIntervalS           = 10
	DefaultAssumedDowntimePerReconnectS = 30
	DefaultStopTimeoutMs                = 2000

	DefaultListen          = ":5000"
	DefaultBusKind         = "none"
	DefaultTopicPrefix     = "baywatch"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultStatusTimeoutMs = 2000
)

// Quality level names used as keys of StreamConfig.QualityLevels.
const (
	QualityHigh   = "high"
	QualityMedium = "medium"
	QualityLow    = "low"
)

// DefaultQualityLevels returns the stock quality table.
func DefaultQualityLevels() map[string]QualityConfig {
	return map[string]QualityConfig{
		QualityHigh:   {FPS: 10, BufferSize: 1},
		QualityMedium: {FPS: 5, BufferSize: 2},
		QualityLow:    {FPS: 2, BufferSize: 3},
	}
}

// LookupEnv matches os.LookupEnv and exists so tests can inject an environment.
type LookupEnv func(key string) (string, bool)

// ApplyEnv applies environment overrides on top of the parsed file.
// Unparsable numeric values are ignored.
func ApplyEnv(cfg *Config, lookup LookupEnv) {
	if cfg == nil {
		return
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	b := &cfg.Baywatch

	envInt := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}

	envInt("STATUS_FAST_THRESHOLD", &b.Occupancy.AvailableToInUseThreshold)
	envInt("STATUS_SLOW_THRESHOLD", &b.Occupancy.InUseToAvailableThreshold)
	envInt("RTSP_TARGET_FPS", &b.Stream.TargetFPS)
	envInt("RTSP_RECONNECT_INTERVAL", &b.Stream.BaseReconnectIntervalS)

	if v, ok := lookup("PORT"); ok && v != "" {
		if _, err := strconv.Atoi(v); err == nil {
			b.API.Listen = ":" + v
		}
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		b.Log.Level = v
	}

	// Synthesise bays from bay_count when the file lists none.
	if len(b.Bays) == 0 {
		n := b.BayCount
		if n == 0 {
			n = DefaultBayCount
		}
		for id := 1; id <= n; id++ {
			b.Bays = append(b.Bays, BayConfig{ID: id})
		}
	}

	for i := range b.Bays {
		bay := &b.Bays[i]
		if v, ok := lookup("RTSP_URL_" + strconv.Itoa(bay.ID)); ok && v != "" {
			bay.URL = v
		}
	}
}

// Defaults fills zero values with documented defaults.
// It runs before Validate so that omitted options are valid.
func Defaults(cfg *Config) {
	if cfg == nil {
		return
	}
	b := &cfg.Baywatch

	if b.BayCount == 0 {
		b.BayCount = len(b.Bays)
	}

	setInt(&b.Occupancy.AvailableToInUseThreshold, DefaultAvailableToInUseThreshold)
	setInt(&b.Occupancy.InUseToAvailableThreshold, DefaultInUseToAvailableThreshold)
	setIntPtr(&b.Occupancy.ConnectionGracePeriodS, DefaultConnectionGracePeriodS)
	setInt(&b.Occupancy.FrameTimeoutS, DefaultFrameTimeoutS)

	setInt(&b.Stream.MaxReconnectAttempts, DefaultMaxReconnectAttempts)
	setInt(&b.Stream.BaseReconnectIntervalS, DefaultBaseReconnectIntervalS)
	setInt(&b.Stream.MaxReconnectIntervalS, DefaultMaxReconnectIntervalS)
	setInt(&b.Stream.ConnectionTimeoutS, DefaultConnectionTimeoutS)
	setInt(&b.Stream.ReadTimeoutMs, DefaultReadTimeoutMs)
	setInt(&b.Stream.TargetFPS, DefaultTargetFPS)
	setInt(&b.Stream.BufferSize, DefaultBufferSize)

	if b.Stream.QualityLevels == nil {
		b.Stream.QualityLevels = DefaultQualityLevels()
		// the top rung follows the configured target
		b.Stream.QualityLevels[QualityHigh] = QualityConfig{
			FPS:        b.Stream.TargetFPS,
			BufferSize: b.Stream.BufferSize,
		}
	} else {
		for name, q := range DefaultQualityLevels() {
			if _, ok := b.Stream.QualityLevels[name]; !ok {
				b.Stream.QualityLevels[name] = q
			}
		}
	}

	setInt(&b.Classifier.LearningFrames, DefaultLearningFrames)
	setFloat(&b.Classifier.LearningRate, DefaultLearningRate)
	setFloat(&b.Classifier.BayCenterRatio, DefaultBayCenterRatio)
	setInt(&b.Classifier.PixelThreshold, DefaultPixelThreshold)
	setFloat(&b.Classifier.ConfidenceThreshold, DefaultConfidenceThreshold)
	setInt(&b.Classifier.TimeoutMs, DefaultClassifyTimeoutMs)

	setInt(&b.Monitor.PollIntervalMs, DefaultPollIntervalMs)
	setInt(&b.Monitor.SampleTimeoutMs, DefaultSampleTimeoutMs)
	setInt(&b.Monitor.HealthCheckIntervalS, DefaultHealthCheckIntervalS)
	setInt(&b.Monitor.StatusLogIntervalS, DefaultStatusLogIntervalS)
	setIntPtr(&b.Monitor.AssumedDowntimePerReconnectS, DefaultAssumedDowntimePerReconnectS)
	setInt(&b.Monitor.StopTimeoutMs, DefaultStopTimeoutMs)

	setString(&b.API.Listen, DefaultListen)
	setString(&b.Bus.Kind, DefaultBusKind)
	setString(&b.Bus.TopicPrefix, DefaultTopicPrefix)
	setString(&b.Bus.ClientID, "baywatch")
	setInt(&b.StatusMemory.TimeoutMs, DefaultStatusTimeoutMs)
	setString(&b.Log.Level, DefaultLogLevel)
	setString(&b.Log.Format, DefaultLogFormat)

	for i := range b.Bays {
		if b.Bays[i].Name == "" {
			b.Bays[i].Name = "BAY-" + strconv.Itoa(b.Bays[i].ID)
		}
	}
}

func setInt(dst *int, v int) {
	if *dst == 0 {
		*dst = v
	}
}

// setIntPtr only fills options that were omitted, so an explicit 0 survives.
func setIntPtr(dst **int, v int) {
	if *dst == nil {
		*dst = &v
	}
}

func intValue(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func setFloat(dst *float64, v float64) {
	if *dst == 0 {
		*dst = v
	}
}

func setString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// ---- duration helpers ----

func (o OccupancyConfig) GracePeriod() time.Duration {
	return time.Duration(intValue(o.ConnectionGracePeriodS)) * time.Second
}

func (o OccupancyConfig) FrameTimeout() time.Duration {
	return time.Duration(o.FrameTimeoutS) * time.Second
}

func (s StreamConfig) BaseReconnectInterval() time.Duration {
	return time.Duration(s.BaseReconnectIntervalS) * time.Second
}

func (s StreamConfig) MaxReconnectInterval() time.Duration {
	return time.Duration(s.MaxReconnectIntervalS) * time.Second
}

func (s StreamConfig) ConnectionTimeout() time.Duration {
	return time.Duration(s.ConnectionTimeoutS) * time.Second
}

func (s StreamConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMs) * time.Millisecond
}

func (c ClassifierConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (m MonitorConfig) PollInterval() time.Duration {
	return time.Duration(m.PollIntervalMs) * time.Millisecond
}

func (m MonitorConfig) SampleTimeout() time.Duration {
	return time.Duration(m.SampleTimeoutMs) * time.Millisecond
}

func (m MonitorConfig) HealthCheckInterval() time.Duration {
	return time.Duration(m.HealthCheckIntervalS) * time.Second
}

func (m MonitorConfig) StatusLogInterval() time.Duration {
	return time.Duration(m.StatusLogIntervalS) * time.Second
}

func (m MonitorConfig) AssumedDowntimePerReconnect() time.Duration {
	return time.Duration(intValue(m.AssumedDowntimePerReconnectS)) * time.Second
}

func (m MonitorConfig) StopTimeout() time.Duration {
	return time.Duration(m.StopTimeoutMs) * time.Millisecond
}

func (s StatusMemoryConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}
