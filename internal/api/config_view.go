// internal/api/config_view.go
package api

import (
	"time"

	"github.com/tamzrod/baywatch/internal/config"
)

// configView is the effective runtime configuration. Bay URLs are
// omitted since they may carry camera credentials.
type configView struct {
	BayCount  int                 `json:"bayCount"`
	Bays      []bayConfigView     `json:"bays"`
	Occupancy occupancyConfigView `json:"occupancy"`
	Stream    streamConfigView    `json:"stream"`
	Monitor   monitorConfigView   `json:"monitor"`
	Bus       string              `json:"bus"`
}

type bayConfigView struct {
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	StatusSlot *uint16 `json:"statusSlot,omitempty"`
}

type occupancyConfigView struct {
	AvailableToInUseThreshold int `json:"availableToInUseThreshold"`
	InUseToAvailableThreshold int `json:"inUseToAvailableThreshold"`
	ConnectionGracePeriodS    int `json:"connectionGracePeriod"`
	FrameTimeoutS             int `json:"frameTimeout"`
}

type qualityView struct {
	FPS        int `json:"fps"`
	BufferSize int `json:"bufferSize"`
}

type streamConfigView struct {
	MaxReconnectAttempts   int                    `json:"maxReconnectAttempts"`
	BaseReconnectIntervalS int                    `json:"baseReconnectInterval"`
	MaxReconnectIntervalS  int                    `json:"maxReconnectInterval"`
	ConnectionTimeoutS     int                    `json:"connectionTimeout"`
	TargetFPS              int                    `json:"targetFps"`
	BufferSize             int                    `json:"bufferSize"`
	QualityLevels          map[string]qualityView `json:"qualityLevels"`
}

type monitorConfigView struct {
	HealthCheckIntervalS int `json:"healthCheckInterval"`
	StatusLogIntervalS   int `json:"statusLogInterval"`
}

func effectiveConfig(c *config.Config) configView {
	b := c.Baywatch

	bays := make([]bayConfigView, 0, len(b.Bays))
	for _, bc := range b.Bays {
		bays = append(bays, bayConfigView{ID: bc.ID, Name: bc.Name, StatusSlot: bc.StatusSlot})
	}

	levels := make(map[string]qualityView, len(b.Stream.QualityLevels))
	for name, q := range b.Stream.QualityLevels {
		levels[name] = qualityView{FPS: q.FPS, BufferSize: q.BufferSize}
	}

	return configView{
		BayCount: len(b.Bays),
		Bays:     bays,
		Occupancy: occupancyConfigView{
			AvailableToInUseThreshold: b.Occupancy.AvailableToInUseThreshold,
			InUseToAvailableThreshold: b.Occupancy.InUseToAvailableThreshold,
			ConnectionGracePeriodS:    int(b.Occupancy.GracePeriod() / time.Second),
			FrameTimeoutS:             b.Occupancy.FrameTimeoutS,
		},
		Stream: streamConfigView{
			MaxReconnectAttempts:   b.Stream.MaxReconnectAttempts,
			BaseReconnectIntervalS: b.Stream.BaseReconnectIntervalS,
			MaxReconnectIntervalS:  b.Stream.MaxReconnectIntervalS,
			ConnectionTimeoutS:     b.Stream.ConnectionTimeoutS,
			TargetFPS:              b.Stream.TargetFPS,
			BufferSize:             b.Stream.BufferSize,
			QualityLevels:          levels,
		},
		Monitor: monitorConfigView{
			HealthCheckIntervalS: b.Monitor.HealthCheckIntervalS,
			StatusLogIntervalS:   b.Monitor.StatusLogIntervalS,
		},
		Bus: b.Bus.Kind,
	}
}
