// internal/health/aggregator.go
package health

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tamzrod/baywatch/internal/occupancy"
)

// Config is the aggregator runtime config.
type Config struct {
	BaysTotal                   int
	BayIDs                      []int // listed from the start, before their first sample
	AssumedDowntimePerReconnect time.Duration
	Rules                       Rules
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithLogger sets the logger used by Run.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) { a.log = l }
}

// Aggregator keeps the latest sample per bay and summarises on demand.
// It never mutates trackers or connections.
type Aggregator struct {
	cfg Config
	now func() time.Time
	log *slog.Logger

	start time.Time

	mu      sync.Mutex
	samples map[int]Sample
}

// NewAggregator starts the uptime clock now.
func NewAggregator(cfg Config, opts ...Option) *Aggregator {
	a := &Aggregator{
		cfg:     cfg,
		now:     time.Now,
		log:     slog.Default(),
		samples: make(map[int]Sample),
	}
	for _, o := range opts {
		o(a)
	}
	a.start = a.now()

	// a configured bay that has not been sampled yet reads as never connected
	for _, id := range cfg.BayIDs {
		a.samples[id] = Sample{
			BayID: id,
			Bay:   occupancy.BayState{ID: id, Status: occupancy.Available},
			At:    a.start,
		}
	}
	return a
}

// RecordBaySample stores the latest observation of a bay.
func (a *Aggregator) RecordBaySample(s Sample) {
	if s.At.IsZero() {
		s.At = a.now()
	}
	a.mu.Lock()
	a.samples[s.BayID] = s
	a.mu.Unlock()
}

// Snapshot recomputes system, per-bay and alert views from the stored samples.
func (a *Aggregator) Snapshot() Snapshot {
	now := a.now()

	a.mu.Lock()
	samples := make([]Sample, 0, len(a.samples))
	for _, s := range a.samples {
		samples = append(samples, s)
	}
	a.mu.Unlock()

	sort.Slice(samples, func(i, j int) bool { return samples[i].BayID < samples[j].BayID })

	elapsed := now.Sub(a.start)
	bays := make([]BayHealth, 0, len(samples))
	connected := 0

	for _, s := range samples {
		cs := s.Connection
		if cs.IsConnected {
			connected++
		}
		bays = append(bays, BayHealth{
			BayID:                    s.BayID,
			Status:                   s.Bay.Status,
			Connected:                cs.IsConnected,
			UptimePercentage:         UptimePercent(elapsed, cs.TotalReconnects, a.cfg.AssumedDowntimePerReconnect, cs.LastSuccessfulConnection != nil),
			TotalReconnects:          cs.TotalReconnects,
			ConsecutiveFailures:      cs.ConsecutiveFailures,
			QualityLevel:             cs.QualityLevel,
			FPS:                      cs.AverageFPS,
			FramesProcessed:          cs.FramesProcessed,
			FramesFailed:             cs.FramesFailed,
			FrameSuccessRate:         FrameSuccessRate(cs.FramesProcessed, cs.FramesFailed),
			LastError:                cs.LastError,
			LastSuccessfulConnection: cs.LastSuccessfulConnection,
			ReconnectsExhausted:      cs.Exhausted,
			DetectionConfidence:      s.Bay.DetectionConfidence,
			Calibrating:              s.Calibrating,
			SampledAt:                s.At,
		})
	}

	total := a.cfg.BaysTotal
	if total < len(bays) {
		total = len(bays)
	}

	return Snapshot{
		System: System{
			StartedAt:       a.start,
			UptimeSeconds:   elapsed.Seconds(),
			BaysConnected:   connected,
			BaysTotal:       total,
			LastHealthCheck: now,
		},
		Bays:   bays,
		Alerts: Alerts(bays, a.cfg.Rules),
	}
}

// Run logs a health summary every interval and hands each snapshot to
// onSnapshot when it is non-nil. It returns when ctx ends.
func (a *Aggregator) Run(ctx context.Context, interval time.Duration, onSnapshot func(Snapshot)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := a.Snapshot()
			a.logSnapshot(snap)
			if onSnapshot != nil {
				onSnapshot(snap)
			}
		}
	}
}

func (a *Aggregator) logSnapshot(s Snapshot) {
	a.log.Info("system health",
		"bays_connected", s.System.BaysConnected,
		"bays_total", s.System.BaysTotal,
		"uptime_h", s.System.UptimeSeconds/3600,
	)
	for _, b := range s.Bays {
		a.log.Debug("bay health",
			"bay_id", b.BayID,
			"connected", b.Connected,
			"uptime_pct", b.UptimePercentage,
			"fps", b.FPS,
			"quality", b.QualityLevel.String(),
		)
	}
	if len(s.Alerts) > 0 {
		a.log.Warn("health alerts", "count", len(s.Alerts))
		for _, al := range s.Alerts {
			a.log.Warn("health alert",
				"bay_id", al.BayID,
				"code", al.Code,
				"severity", string(al.Severity),
				"message", al.Message,
			)
		}
	}
}
