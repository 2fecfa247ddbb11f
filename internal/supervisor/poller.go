// internal/supervisor/poller.go
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tamzrod/baywatch/internal/health"
	"github.com/tamzrod/baywatch/internal/occupancy"
	"github.com/tamzrod/baywatch/internal/status"
	"github.com/tamzrod/baywatch/internal/stream"
)

// Recorder receives per-bay health samples. *health.Aggregator satisfies it.
type Recorder interface {
	RecordBaySample(health.Sample)
}

// Config is the minimal runtime config the supervisor needs.
type Config struct {
	PollInterval      time.Duration
	SampleTimeout     time.Duration
	StatusLogInterval time.Duration
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithClock replaces time.Now for sample timestamps and status export.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) { s.log = l }
}

// Supervisor is the clock-driven loop that moves stream snapshots into
// trackers, the health aggregator and status memory.
// PollOnce and Run must be called from a single goroutine.
type Supervisor struct {
	cfg Config
	reg *Registry
	rec Recorder
	now func() time.Time
	log *slog.Logger

	// per bay, fixed at construction
	pending map[int]*atomic.Bool

	// owned by the polling goroutine
	last          map[int]stream.ConnectionState
	statusFailing map[int]bool
}

// New creates a supervisor over a fixed registry. rec may be nil.
func New(cfg Config, reg *Registry, rec Recorder, opts ...Option) (*Supervisor, error) {
	if reg == nil {
		return nil, errors.New("supervisor: registry required")
	}
	if cfg.PollInterval <= 0 {
		return nil, errors.New("supervisor: poll interval must be > 0")
	}
	if cfg.SampleTimeout <= 0 {
		return nil, errors.New("supervisor: sample timeout must be > 0")
	}

	s := &Supervisor{
		cfg:           cfg,
		reg:           reg,
		rec:           rec,
		now:           time.Now,
		log:           slog.Default(),
		pending:       make(map[int]*atomic.Bool, reg.Len()),
		last:          make(map[int]stream.ConnectionState, reg.Len()),
		statusFailing: make(map[int]bool),
	}
	for _, o := range opts {
		o(s)
	}
	for _, b := range reg.Bays() {
		s.pending[b.ID] = new(atomic.Bool)
	}
	return s, nil
}

// PollOnce performs exactly one supervisor cycle and returns the resulting
// bay states in id order.
//
// Sampling fans out across bays, each bounded by SampleTimeout. A bay that
// does not answer in time gets a disconnected fallback sample. Application
// to trackers is sequential in bay order.
func (s *Supervisor) PollOnce(ctx context.Context) []occupancy.BayState {
	bays := s.reg.Bays()
	samples := make([]stream.ConnectionState, len(bays))
	fresh := make([]bool, len(bays))

	var wg sync.WaitGroup
	for i, b := range bays {
		wg.Add(1)
		go func(i int, b *Bay) {
			defer wg.Done()
			samples[i], fresh[i] = s.sample(ctx, b)
		}(i, b)
	}
	wg.Wait()

	now := s.now()
	out := make([]occupancy.BayState, 0, len(bays))

	for i, b := range bays {
		cs := samples[i]
		if fresh[i] {
			s.last[b.ID] = cs
		}

		b.Tracker.Update(occupancy.Sample{
			Detected:      cs.Detected,
			Connected:     cs.IsConnected,
			LastFrameTime: cs.LastFrameTime,
			Confidence:    cs.Confidence,
		})
		st := b.Tracker.State()

		if s.rec != nil {
			s.rec.RecordBaySample(health.Sample{
				BayID:       b.ID,
				Connection:  cs,
				Bay:         st,
				At:          now,
				Calibrating: b.Classifier != nil && b.Classifier.Calibrating(),
			})
		}
		if b.Status != nil {
			s.exportStatus(b.ID, b.Status.WriteStatus(status.FromBay(st, now)))
		}

		out = append(out, st)
	}
	return out
}

// sample reads one bay's connection snapshot within SampleTimeout.
// At most one read per bay is outstanding; a stalled bay keeps getting
// fallbacks until its read returns.
func (s *Supervisor) sample(ctx context.Context, b *Bay) (stream.ConnectionState, bool) {
	busy := s.pending[b.ID]
	if !busy.CompareAndSwap(false, true) {
		return s.fallback(b.ID, "previous sample still pending"), false
	}

	ch := make(chan stream.ConnectionState, 1)
	go func() {
		defer busy.Store(false)
		ch <- b.Feed.State()
	}()

	t := time.NewTimer(s.cfg.SampleTimeout)
	defer t.Stop()

	select {
	case cs := <-ch:
		return cs, true
	case <-t.C:
		s.log.Warn("bay sample timed out", "bay_id", b.ID, "timeout", s.cfg.SampleTimeout)
		return s.fallback(b.ID, "sample timed out"), false
	case <-ctx.Done():
		return s.fallback(b.ID, ctx.Err().Error()), false
	}
}

// fallback is the last good snapshot marked disconnected.
func (s *Supervisor) fallback(bayID int, reason string) stream.ConnectionState {
	cs := s.last[bayID]
	cs.BayID = bayID
	cs.IsConnected = false
	cs.LastError = reason
	return cs
}

// exportStatus logs status memory failures on edges only.
func (s *Supervisor) exportStatus(bayID int, err error) {
	failing := s.statusFailing[bayID]
	switch {
	case err != nil && !failing:
		s.log.Warn("status export failed", "bay_id", bayID, "err", err)
		s.statusFailing[bayID] = true
	case err == nil && failing:
		s.log.Info("status export recovered", "bay_id", bayID)
		s.statusFailing[bayID] = false
	}
}
