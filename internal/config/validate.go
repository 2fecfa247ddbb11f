// internal/config/validate.go
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tamzrod/baywatch/internal/status"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	b := cfg.Baywatch

	// ------------------------------------------------------------
	// BAYS
	// ------------------------------------------------------------

	if len(b.Bays) == 0 {
		return fmt.Errorf("no bays configured")
	}
	if b.BayCount != 0 && b.BayCount != len(b.Bays) {
		return fmt.Errorf("bay_count=%d but %d bays are listed", b.BayCount, len(b.Bays))
	}

	seen := make(map[int]struct{}, len(b.Bays))

	// key = status_slot
	slotOwner := make(map[uint16]int)

	for _, bay := range b.Bays {
		if bay.ID <= 0 {
			return fmt.Errorf("bay id %d: must be > 0", bay.ID)
		}
		if _, dup := seen[bay.ID]; dup {
			return fmt.Errorf("bay %d: duplicate id", bay.ID)
		}
		seen[bay.ID] = struct{}{}

		if strings.TrimSpace(bay.URL) == "" {
			return fmt.Errorf("bay %d: url is required (set url or RTSP_URL_%d)", bay.ID, bay.ID)
		}
		u, err := url.Parse(bay.URL)
		if err != nil || u.Scheme == "" {
			return fmt.Errorf("bay %d: invalid url %q", bay.ID, bay.URL)
		}

		// name sanity (ASCII only)
		for i := 0; i < len(bay.Name); i++ {
			if bay.Name[i] > 0x7F {
				return fmt.Errorf("bay %d: name must contain ASCII characters only", bay.ID)
			}
		}

		// status is opt-in
		if bay.StatusSlot == nil {
			continue
		}
		if b.StatusMemory.Endpoint == "" {
			return fmt.Errorf("bay %d: status_slot is set but status_memory.endpoint is empty", bay.ID)
		}
		slot := *bay.StatusSlot
		if slot > status.MaxSlot {
			return fmt.Errorf("bay %d: status_slot=%d out of range (max %d)", bay.ID, slot, status.MaxSlot)
		}
		if prev, exists := slotOwner[slot]; exists {
			return fmt.Errorf("status_slot collision: slot=%d used by bays %d and %d", slot, prev, bay.ID)
		}
		slotOwner[slot] = bay.ID
	}

	// ------------------------------------------------------------
	// OCCUPANCY
	// ------------------------------------------------------------

	o := b.Occupancy
	if o.AvailableToInUseThreshold < 1 {
		return fmt.Errorf("occupancy.available_to_in_use_threshold must be >= 1 (got %d)", o.AvailableToInUseThreshold)
	}
	if o.InUseToAvailableThreshold < 1 {
		return fmt.Errorf("occupancy.in_use_to_available_threshold must be >= 1 (got %d)", o.InUseToAvailableThreshold)
	}
	if intValue(o.ConnectionGracePeriodS) < 0 {
		return fmt.Errorf("occupancy.connection_grace_period_s must be >= 0")
	}
	if o.FrameTimeoutS < 1 {
		return fmt.Errorf("occupancy.frame_timeout_s must be >= 1")
	}

	// ------------------------------------------------------------
	// STREAM
	// ------------------------------------------------------------

	s := b.Stream
	if s.MaxReconnectAttempts < 1 {
		return fmt.Errorf("stream.max_reconnect_attempts must be >= 1")
	}
	if s.BaseReconnectIntervalS < 1 {
		return fmt.Errorf("stream.base_reconnect_interval_s must be >= 1")
	}
	if s.MaxReconnectIntervalS < s.BaseReconnectIntervalS {
		return fmt.Errorf(
			"stream.max_reconnect_interval_s (%d) must be >= base_reconnect_interval_s (%d)",
			s.MaxReconnectIntervalS,
			s.BaseReconnectIntervalS,
		)
	}
	if s.ConnectionTimeoutS < 1 {
		return fmt.Errorf("stream.connection_timeout_s must be >= 1")
	}
	if s.ReadTimeoutMs < 1 {
		return fmt.Errorf("stream.read_timeout_ms must be >= 1")
	}
	if s.TargetFPS < 1 {
		return fmt.Errorf("stream.target_fps must be >= 1")
	}
	if s.BufferSize < 1 {
		return fmt.Errorf("stream.buffer_size must be >= 1")
	}
	for name, q := range s.QualityLevels {
		switch name {
		case QualityHigh, QualityMedium, QualityLow:
		default:
			return fmt.Errorf("stream.quality_levels: unknown level %q", name)
		}
		if q.FPS < 1 || q.BufferSize < 1 {
			return fmt.Errorf("stream.quality_levels.%s: fps and buffer_size must be >= 1", name)
		}
	}

	// ------------------------------------------------------------
	// CLASSIFIER
	// ------------------------------------------------------------

	c := b.Classifier
	if c.LearningFrames < 1 {
		return fmt.Errorf("classifier.learning_frames must be >= 1")
	}
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		return fmt.Errorf("classifier.learning_rate must be in (0,1]")
	}
	if c.BayCenterRatio <= 0 || c.BayCenterRatio > 1 {
		return fmt.Errorf("classifier.bay_center_ratio must be in (0,1]")
	}
	if c.PixelThreshold < 1 || c.PixelThreshold > 255 {
		return fmt.Errorf("classifier.pixel_threshold must be in [1,255]")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold >= 1 {
		return fmt.Errorf("classifier.confidence_threshold must be in [0,1)")
	}

	// ------------------------------------------------------------
	// MONITOR
	// ------------------------------------------------------------

	m := b.Monitor
	if m.PollIntervalMs < 1 || m.SampleTimeoutMs < 1 {
		return fmt.Errorf("monitor: poll_interval_ms and sample_timeout_ms must be >= 1")
	}
	if m.HealthCheckIntervalS < 1 || m.StatusLogIntervalS < 1 {
		return fmt.Errorf("monitor: health_check_interval_s and status_log_interval_s must be >= 1")
	}
	if intValue(m.AssumedDowntimePerReconnectS) < 0 {
		return fmt.Errorf("monitor.assumed_downtime_per_reconnect_s must be >= 0")
	}

	// ------------------------------------------------------------
	// BUS / LOG
	// ------------------------------------------------------------

	switch b.Bus.Kind {
	case "none":
	case "nats", "mqtt":
		if b.Bus.URL == "" {
			return fmt.Errorf("bus.url is required for bus.kind=%s", b.Bus.Kind)
		}
	default:
		return fmt.Errorf("bus.kind: unknown value %q", b.Bus.Kind)
	}

	switch strings.ToLower(b.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown value %q", b.Log.Level)
	}
	switch b.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format: unknown value %q", b.Log.Format)
	}

	return nil
}
