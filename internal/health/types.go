// internal/health/types.go
package health

import (
	"time"

	"github.com/tamzrod/baywatch/internal/occupancy"
	"github.com/tamzrod/baywatch/internal/stream"
)

// Sample is one supervisor observation of a bay.
type Sample struct {
	BayID      int
	Connection stream.ConnectionState
	Bay        occupancy.BayState
	At         time.Time

	// Calibrating is true while the bay's classifier is still learning
	// its background. Detections are not trusted until it clears.
	Calibrating bool
}

// BayHealth is the per-bay summary derived from the latest sample.
type BayHealth struct {
	BayID  int              `json:"bayId"`
	Status occupancy.Status `json:"status"`

	Connected                bool           `json:"connected"`
	UptimePercentage         float64        `json:"uptimePercentage"`
	TotalReconnects          uint           `json:"totalReconnects"`
	ConsecutiveFailures      uint           `json:"consecutiveFailures"`
	QualityLevel             stream.Quality `json:"qualityLevel"`
	FPS                      float64        `json:"fps"`
	FramesProcessed          uint64         `json:"framesProcessed"`
	FramesFailed             uint64         `json:"framesFailed"`
	FrameSuccessRate         float64        `json:"frameSuccessRate"`
	LastError                string         `json:"lastError,omitempty"`
	LastSuccessfulConnection *time.Time     `json:"lastSuccessfulConnection,omitempty"`
	ReconnectsExhausted      bool           `json:"reconnectsExhausted"`
	DetectionConfidence      float64        `json:"detectionConfidence"`
	Calibrating              bool           `json:"calibrating"`
	SampledAt                time.Time      `json:"sampledAt"`
}

// System is the process-wide part of a snapshot.
type System struct {
	StartedAt       time.Time `json:"startedAt"`
	UptimeSeconds   float64   `json:"uptimeSeconds"`
	BaysConnected   int       `json:"baysConnected"`
	BaysTotal       int       `json:"baysTotal"`
	LastHealthCheck time.Time `json:"lastHealthCheck"`
}

// Severity ranks an alert.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// Alert codes.
const (
	AlertDisconnected      = "disconnected"
	AlertDegradedQuality   = "degraded_quality"
	AlertHighReconnectRate = "high_reconnect_rate"
	AlertLowUptime         = "low_uptime"
)

// Alert is one current problem on a bay.
type Alert struct {
	Type     string   `json:"type"` // "error" or "warning"
	Code     string   `json:"code"`
	BayID    int      `json:"bayId"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Snapshot is the system-wide health view.
type Snapshot struct {
	System System      `json:"system"`
	Bays   []BayHealth `json:"bays"`
	Alerts []Alert     `json:"alerts"`
}
