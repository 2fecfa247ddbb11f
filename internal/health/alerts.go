// internal/health/alerts.go
package health

import (
	"fmt"
	"time"
)

// Rules holds the alert thresholds.
type Rules struct {
	MaxReconnects    uint    // alert when TotalReconnects exceeds this
	MinUptimePercent float64 // alert when uptime falls below this
}

// DefaultRules are the stock thresholds.
var DefaultRules = Rules{MaxReconnects: 10, MinUptimePercent: 90}

// Alerts derives the alert list from bay summaries. Pure.
func Alerts(bays []BayHealth, r Rules) []Alert {
	alerts := make([]Alert, 0)

	for _, b := range bays {
		if !b.Connected {
			alerts = append(alerts, Alert{
				Type:     "error",
				Code:     AlertDisconnected,
				BayID:    b.BayID,
				Message:  fmt.Sprintf("Bay %d is disconnected", b.BayID),
				Severity: SeverityHigh,
			})
		}
		if b.QualityLevel.Degraded() {
			alerts = append(alerts, Alert{
				Type:     "warning",
				Code:     AlertDegradedQuality,
				BayID:    b.BayID,
				Message:  fmt.Sprintf("Bay %d running at %s quality", b.BayID, b.QualityLevel),
				Severity: SeverityMedium,
			})
		}
		if b.TotalReconnects > r.MaxReconnects {
			alerts = append(alerts, Alert{
				Type:     "warning",
				Code:     AlertHighReconnectRate,
				BayID:    b.BayID,
				Message:  fmt.Sprintf("Bay %d has reconnected %d times", b.BayID, b.TotalReconnects),
				Severity: SeverityMedium,
			})
		}
		if b.UptimePercentage < r.MinUptimePercent {
			alerts = append(alerts, Alert{
				Type:     "warning",
				Code:     AlertLowUptime,
				BayID:    b.BayID,
				Message:  fmt.Sprintf("Bay %d uptime is low (%.1f%%)", b.BayID, b.UptimePercentage),
				Severity: SeverityMedium,
			})
		}
	}
	return alerts
}

// UptimePercent approximates availability from the reconnect count:
// (elapsed - reconnects*downtime) / elapsed, clamped to [0,100].
// A bay that never connected scores 0.
func UptimePercent(elapsed time.Duration, reconnects uint, downtime time.Duration, everConnected bool) float64 {
	if !everConnected {
		return 0
	}
	if elapsed <= 0 {
		return 100
	}
	up := elapsed - time.Duration(reconnects)*downtime
	pct := float64(up) / float64(elapsed) * 100
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

// FrameSuccessRate is processed / (processed + failed) in percent, 0 with no frames.
func FrameSuccessRate(processed, failed uint64) float64 {
	total := processed + failed
	if total == 0 {
		return 0
	}
	return float64(processed) / float64(total) * 100
}
