// internal/supervisor/runner.go
package supervisor

import (
	"context"
	"time"

	"github.com/tamzrod/baywatch/internal/occupancy"
)

// Run ticks PollOnce every PollInterval and logs a status summary every
// StatusLogInterval. Ticks never overlap. Returns when ctx ends.
func (s *Supervisor) Run(ctx context.Context) {
	poll := time.NewTicker(s.cfg.PollInterval)
	defer poll.Stop()

	var logC <-chan time.Time
	if s.cfg.StatusLogInterval > 0 {
		t := time.NewTicker(s.cfg.StatusLogInterval)
		defer t.Stop()
		logC = t.C
	}

	s.log.Info("supervisor started",
		"bays", s.reg.Len(),
		"poll_interval", s.cfg.PollInterval,
		"sample_timeout", s.cfg.SampleTimeout,
	)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("supervisor stopped")
			return
		case <-poll.C:
			s.PollOnce(ctx)
		case <-logC:
			s.logStatus()
		}
	}
}

func (s *Supervisor) logStatus() {
	states := s.reg.States()

	var counts [4]int
	for _, st := range states {
		if st.Status.Valid() {
			counts[st.Status]++
		}
	}
	s.log.Info("bay status summary",
		"available", counts[occupancy.Available],
		"in_use", counts[occupancy.InUse],
		"out_of_service", counts[occupancy.OutOfService],
		"connection_error", counts[occupancy.ConnectionError],
	)
	for _, st := range states {
		s.log.Debug("bay status",
			"bay_id", st.ID,
			"status", st.Status.String(),
			"connected", st.IsConnected,
			"confidence", st.DetectionConfidence,
		)
	}
}
