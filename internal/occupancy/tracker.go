// internal/occupancy/tracker.go
package occupancy

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Config holds the hysteresis and fault parameters of one tracker.
type Config struct {
	AvailableToInUse uint // consecutive detections to enter InUse
	InUseToAvailable uint // consecutive non-detections to leave InUse
	GracePeriod      time.Duration
	FrameTimeout     time.Duration
}

// Sample is one tick of input for a bay.
type Sample struct {
	Detected      bool
	Connected     bool
	LastFrameTime *time.Time
	Confidence    float64
}

// BayState is a point-in-time copy of a bay's state.
type BayState struct {
	ID                       int        `json:"id"`
	Status                   Status     `json:"status"`
	LastUpdated              time.Time  `json:"lastUpdated"`
	ConsecutiveDetections    uint       `json:"consecutiveDetections"`
	ConsecutiveNonDetections uint       `json:"consecutiveNonDetections"`
	LastFrameTime            *time.Time `json:"lastFrameTime,omitempty"`
	DetectionConfidence      float64    `json:"detectionConfidence"`
	IsConnected              bool       `json:"isConnected"`
	LastConnectionTime       *time.Time `json:"lastConnectionTime,omitempty"`
	LastDisconnectionTime    *time.Time `json:"lastDisconnectionTime,omitempty"`
	RecoveryPending          bool       `json:"recoveryPending"`

	// OutOfService is the operator flag. It survives connection faults.
	OutOfService bool `json:"outOfService"`
}

// Change describes one status transition.
// Seq increases by one per change of the same bay.
type Change struct {
	Seq         uint64
	BayID       int
	From        Status
	To          Status
	At          time.Time
	Confidence  float64
	IsConnected bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger used for transitions.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

// WithOnChange registers a callback invoked after every status change.
// Callbacks are delivered one at a time in Seq order. State may be
// called from the callback; Update and SetOutOfService may not.
func WithOnChange(fn func(Change)) Option {
	return func(t *Tracker) { t.onChange = fn }
}

// Tracker is the per-bay hysteresis engine.
// One producer calls Update; any number of readers may call State.
type Tracker struct {
	cfg Config
	now func() time.Time
	log *slog.Logger

	onChange func(Change)

	// held from the state mutation until the callback returns
	deliverMu sync.Mutex

	mu    sync.RWMutex
	state BayState
	seq   uint64

	// start of the current recovery window
	recoveryStart time.Time
}

// NewTracker creates a tracker in status Available.
func NewTracker(id int, cfg Config, opts ...Option) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Tracker{
		cfg: cfg,
		now: time.Now,
		log: slog.Default(),
	}
	for _, o := range opts {
		o(t)
	}
	t.log = t.log.With("bay_id", id)

	t.state = BayState{
		ID:          id,
		Status:      Available,
		LastUpdated: t.now(),
	}
	return t, nil
}

// Validate checks the parameters NewTracker and SetConfig accept.
func (c Config) Validate() error {
	if c.AvailableToInUse < 1 || c.InUseToAvailable < 1 {
		return errors.New("occupancy: thresholds must be >= 1")
	}
	if c.GracePeriod < 0 {
		return errors.New("occupancy: grace period must be >= 0")
	}
	if c.FrameTimeout <= 0 {
		return errors.New("occupancy: frame timeout must be > 0")
	}
	return nil
}

// SetConfig replaces the hysteresis and fault parameters.
// Counters and status are kept; the new thresholds apply from the next sample.
func (t *Tracker) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	t.cfg = cfg
	t.mu.Unlock()
	return nil
}

// Config returns the parameters in effect.
func (t *Tracker) Config() Config {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cfg
}

// Update applies one sample. Samples for a bay must be applied in order.
func (t *Tracker) Update(s Sample) {
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()

	t.mu.Lock()
	ch, changed := t.update(s)
	t.mu.Unlock()

	t.deliver(ch, changed)
}

func (t *Tracker) update(s Sample) (Change, bool) {
	now := t.now()
	st := &t.state
	from := st.Status

	// ------------------------------------------------------------
	// 1. connection edges
	// ------------------------------------------------------------

	if s.Connected && !st.IsConnected {
		st.LastConnectionTime = timePtr(now)
		st.RecoveryPending = true
		t.recoveryStart = now
	}
	if !s.Connected && st.IsConnected {
		st.LastDisconnectionTime = timePtr(now)
		st.RecoveryPending = false
	}

	st.IsConnected = s.Connected
	if s.LastFrameTime != nil {
		st.LastFrameTime = timePtr(*s.LastFrameTime)
	}
	st.DetectionConfidence = clampUnit(s.Confidence)

	// ------------------------------------------------------------
	// 2. fault detection (overrides everything below)
	// ------------------------------------------------------------

	if !s.Connected || t.frameStale(now) {
		if st.Status != ConnectionError {
			reason := "disconnected"
			if s.Connected {
				reason = "frame timeout"
			}
			t.log.Warn("bay connection error", "reason", reason)
			t.setStatus(ConnectionError, now)
		}
		// a recovery window only starts once the fault clears
		st.RecoveryPending = false
		return t.change(from, now)
	}

	// recovered from a frame timeout without a reconnect edge
	if st.Status == ConnectionError && !st.RecoveryPending {
		st.RecoveryPending = true
		t.recoveryStart = now
	}

	// ------------------------------------------------------------
	// 3. grace period
	// ------------------------------------------------------------

	if st.RecoveryPending {
		if now.Sub(t.recoveryStart) < t.cfg.GracePeriod {
			return Change{}, false
		}
		st.RecoveryPending = false

		if st.Status == ConnectionError {
			st.ConsecutiveDetections = 0
			st.ConsecutiveNonDetections = 0
			if st.OutOfService {
				t.setStatus(OutOfService, now)
			} else {
				t.setStatus(Available, now)
			}
			t.log.Info("bay recovered", "status", st.Status.String())
			return t.change(from, now)
		}
	}

	// operator hold: counters do not move
	if st.Status == OutOfService {
		return Change{}, false
	}

	// ------------------------------------------------------------
	// 4. counters
	// ------------------------------------------------------------

	if s.Detected {
		st.ConsecutiveDetections++
		st.ConsecutiveNonDetections = 0
	} else {
		st.ConsecutiveDetections = 0
		st.ConsecutiveNonDetections++
	}

	// ------------------------------------------------------------
	// 5. asymmetric hysteresis
	// ------------------------------------------------------------

	switch st.Status {
	case Available:
		if st.ConsecutiveDetections >= t.cfg.AvailableToInUse {
			t.setStatus(InUse, now)
		}
	case InUse:
		if st.ConsecutiveNonDetections >= t.cfg.InUseToAvailable {
			t.setStatus(Available, now)
		}
	}

	if st.Status != from {
		t.log.Info("bay status changed",
			"from", from.String(),
			"to", st.Status.String(),
			"confidence", st.DetectionConfidence,
		)
	}
	return t.change(from, now)
}

// SetOutOfService sets or clears the operator hold.
// Clearing it resets counters and returns the bay to Available.
// While the bay is in ConnectionError the status is left alone and
// the flag takes effect when the connection recovers.
func (t *Tracker) SetOutOfService(out bool) {
	t.deliverMu.Lock()
	defer t.deliverMu.Unlock()

	t.mu.Lock()
	now := t.now()
	st := &t.state
	from := st.Status

	st.OutOfService = out
	if out {
		if st.Status != ConnectionError {
			t.setStatus(OutOfService, now)
		}
	} else {
		st.ConsecutiveDetections = 0
		st.ConsecutiveNonDetections = 0
		if st.Status != ConnectionError {
			t.setStatus(Available, now)
		}
	}
	t.log.Info("bay operator hold", "out_of_service", out, "status", st.Status.String())

	ch, changed := t.change(from, now)
	t.mu.Unlock()

	t.deliver(ch, changed)
}

// caller holds deliverMu
func (t *Tracker) deliver(ch Change, changed bool) {
	if changed && t.onChange != nil {
		t.onChange(ch)
	}
}

// State returns a consistent copy of the bay state.
func (t *Tracker) State() BayState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st := t.state
	st.LastFrameTime = copyTime(st.LastFrameTime)
	st.LastConnectionTime = copyTime(st.LastConnectionTime)
	st.LastDisconnectionTime = copyTime(st.LastDisconnectionTime)
	return st
}

// ---- internals (caller holds mu) ----

func (t *Tracker) frameStale(now time.Time) bool {
	lf := t.state.LastFrameTime
	return lf != nil && now.Sub(*lf) > t.cfg.FrameTimeout
}

func (t *Tracker) setStatus(s Status, now time.Time) {
	if t.state.Status == s {
		return
	}
	t.state.Status = s
	t.state.LastUpdated = now
}

func (t *Tracker) change(from Status, now time.Time) (Change, bool) {
	if t.state.Status == from {
		return Change{}, false
	}
	t.seq++
	return Change{
		Seq:         t.seq,
		BayID:       t.state.ID,
		From:        from,
		To:          t.state.Status,
		At:          now,
		Confidence:  t.state.DetectionConfidence,
		IsConnected: t.state.IsConnected,
	}, true
}

func timePtr(t time.Time) *time.Time { return &t }

func copyTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0 || v != v:
		return 0
	case v > 1:
		return 1
	}
	return v
}
