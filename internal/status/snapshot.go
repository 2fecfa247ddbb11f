// internal/status/snapshot.go
package status

import (
	"math"
	"time"

	"github.com/tamzrod/baywatch/internal/occupancy"
)

// Snapshot represents exactly what the writer is allowed to deliver.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	StatusCode     uint16
	Connected      uint16
	ConfidencePct  uint16
	SecondsInError uint16
}

// CodeOf maps an occupancy status onto its register value.
func CodeOf(s occupancy.Status) uint16 {
	switch s {
	case occupancy.Available:
		return CodeAvailable
	case occupancy.InUse:
		return CodeInUse
	case occupancy.OutOfService:
		return CodeOutOfService
	case occupancy.ConnectionError:
		return CodeConnectionError
	}
	return CodeUnknown
}

// FromBay derives the register view of a bay at now.
// Seconds in error count from the moment the bay entered connectionError.
func FromBay(st occupancy.BayState, now time.Time) Snapshot {
	s := Snapshot{
		StatusCode:    CodeOf(st.Status),
		ConfidencePct: uint16(math.Round(clamp01(st.DetectionConfidence) * 100)),
	}
	if st.IsConnected {
		s.Connected = 1
	}
	if st.Status == occupancy.ConnectionError && !st.LastUpdated.IsZero() {
		secs := now.Sub(st.LastUpdated).Seconds()
		switch {
		case secs < 0:
			secs = 0
		case secs > MaxSecondsInError:
			secs = MaxSecondsInError
		}
		s.SecondsInError = uint16(secs)
	}
	return s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
