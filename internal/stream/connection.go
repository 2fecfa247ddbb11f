// internal/stream/connection.go
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Config is the immutable runtime config of one connection.
type Config struct {
	BayID int
	URL   string

	Ladder Ladder

	MaxReconnectAttempts uint
	BaseInterval         time.Duration
	MaxInterval          time.Duration

	ConnectTimeout  time.Duration
	ReadTimeout     time.Duration
	ClassifyTimeout time.Duration
}

// Option configures a Connection.
type Option func(*Connection)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Connection) { c.now = now }
}

// WithLogger sets the connection logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Connection) { c.log = l }
}

// WithSleep replaces the cancellable sleep used for backoff and pacing.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Connection) { c.sleep = fn }
}

// WithRand replaces the jitter source. fn must return values in [0,1).
func WithRand(fn func() float64) Option {
	return func(c *Connection) { c.rand = fn }
}

// Connection owns the lifecycle of one camera feed.
type Connection struct {
	cfg        Config
	dialer     Dialer
	classifier Classifier

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
	log   *slog.Logger

	mu      sync.RWMutex
	st      ConnectionState
	capture Capture

	connectedAt        time.Time
	framesSinceConnect uint64
	everConnected      bool

	// worker lifecycle
	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a disconnected connection at High quality.
// classifier may be nil, in which case every frame reports no detection.
func New(cfg Config, dialer Dialer, classifier Classifier, opts ...Option) (*Connection, error) {
	if cfg.URL == "" {
		return nil, errors.New("stream: url required")
	}
	if dialer == nil {
		return nil, errors.New("stream: dialer required")
	}
	if cfg.BaseInterval <= 0 || cfg.MaxInterval < cfg.BaseInterval {
		return nil, errors.New("stream: invalid reconnect intervals")
	}
	if cfg.ConnectTimeout <= 0 || cfg.ReadTimeout <= 0 {
		return nil, errors.New("stream: timeouts must be > 0")
	}
	if cfg.ClassifyTimeout <= 0 {
		cfg.ClassifyTimeout = cfg.ReadTimeout
	}
	for q, l := range cfg.Ladder {
		if l.FPS < 1 || l.BufferSize < 1 {
			return nil, fmt.Errorf("stream: quality %s: fps and buffer must be >= 1", Quality(q))
		}
	}

	c := &Connection{
		cfg:        cfg,
		dialer:     dialer,
		classifier: classifier,
		now:        time.Now,
		sleep:      sleepCtx,
		rand:       rand.Float64,
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With("bay_id", cfg.BayID)
	c.st = ConnectionState{BayID: cfg.BayID, QualityLevel: High}
	return c, nil
}

// Settings returns the transport settings for the current quality.
func (c *Connection) Settings() Settings {
	c.mu.RLock()
	q := c.st.QualityLevel
	c.mu.RUnlock()

	l := c.cfg.Ladder[q]
	return Settings{
		URL:        c.cfg.URL,
		Quality:    q,
		FPS:        l.FPS,
		BufferSize: l.BufferSize,
		Timeout:    c.cfg.ConnectTimeout,
	}
}

// Connect opens the transport and verifies it with one probe frame.
// Three consecutive failures drop the quality one rung.
func (c *Connection) Connect(ctx context.Context) error {
	s := c.Settings()

	dctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	capt, err := c.dialer.Dial(dctx, s)
	var probe Frame
	if err == nil {
		probe, err = capt.ReadFrame(dctx)
		if err != nil {
			_ = capt.Close()
		}
	}
	cancel()

	now := c.now()

	c.mu.Lock()
	if err != nil {
		c.st.ConsecutiveFailures++
		c.st.LastError = err.Error()

		if c.st.ConsecutiveFailures >= failuresBeforeDegrade {
			prev := c.st.QualityLevel
			c.st.QualityLevel = prev.next()
			c.st.ConsecutiveFailures = 0
			if c.st.QualityLevel != prev {
				c.log.Warn("stream quality degraded",
					"from", prev.String(),
					"to", c.st.QualityLevel.String(),
				)
			}
		}
		c.mu.Unlock()

		c.log.Warn("stream connect failed", "quality", s.Quality.String(), "error", err)
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	// replace any capture left behind
	old := c.capture
	c.capture = capt

	if c.everConnected {
		c.st.TotalReconnects++
	}
	c.everConnected = true

	c.st.IsConnected = true
	c.st.ConsecutiveFailures = 0
	c.st.ReconnectAttempts = 0
	c.st.Exhausted = false
	c.st.LastError = ""
	c.st.LastSuccessfulConnection = timePtr(now)

	at := probe.At
	if at.IsZero() {
		at = now
	}
	c.st.LastFrameTime = timePtr(at)

	c.connectedAt = now
	c.framesSinceConnect = 0
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	c.log.Info("stream connected", "quality", s.Quality.String(), "fps", s.FPS)
	return nil
}

// ReadFrame reads one frame within the read timeout.
func (c *Connection) ReadFrame(ctx context.Context) (Frame, error) {
	c.mu.RLock()
	capt := c.capture
	c.mu.RUnlock()

	if capt == nil {
		return Frame{}, ErrNotConnected
	}

	rctx, cancel := context.WithTimeout(ctx, c.cfg.ReadTimeout)
	defer cancel()

	f, err := capt.ReadFrame(rctx)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}

	now := c.now()
	if f.At.IsZero() {
		f.At = now
	}

	c.mu.Lock()
	c.st.FramesProcessed++
	c.framesSinceConnect++
	c.st.LastFrameTime = timePtr(f.At)
	if c.st.FramesProcessed%100 == 0 {
		if secs := now.Sub(c.connectedAt).Seconds(); secs > 0 {
			c.st.AverageFPS = float64(c.framesSinceConnect) / secs
		}
	}
	c.mu.Unlock()

	return f, nil
}

// Disconnect releases the capture. Safe to call when not connected.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	capt := c.capture
	c.capture = nil
	wasConnected := c.st.IsConnected
	c.st.IsConnected = false
	c.mu.Unlock()

	if capt != nil {
		if err := capt.Close(); err != nil {
			c.log.Warn("stream close failed", "error", err)
		}
	}
	if wasConnected {
		c.log.Info("stream disconnected")
	}
}

// Reconnect runs one backoff cycle: wait, then Connect.
// The delay is computed from the attempt count before it is incremented.
func (c *Connection) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	delay := Jitter(BackoffDelay(c.st.ReconnectAttempts, c.cfg.BaseInterval, c.cfg.MaxInterval), c.rand())
	c.st.ReconnectAttempts++
	attempts := c.st.ReconnectAttempts
	justExhausted := false
	if c.cfg.MaxReconnectAttempts > 0 && attempts > c.cfg.MaxReconnectAttempts && !c.st.Exhausted {
		c.st.Exhausted = true
		justExhausted = true
	}
	c.mu.Unlock()

	if justExhausted {
		c.log.Error("stream reconnect attempts exhausted, retrying at capped interval",
			"attempts", attempts,
			"max_attempts", c.cfg.MaxReconnectAttempts,
		)
	}

	c.Disconnect()

	c.log.Debug("stream reconnect scheduled", "attempt", attempts, "delay", delay)
	if err := c.sleep(ctx, delay); err != nil {
		return err
	}
	return c.Connect(ctx)
}

// ResetQuality puts the ladder back at High. It takes effect on the next connect.
func (c *Connection) ResetQuality() {
	c.mu.Lock()
	c.st.QualityLevel = High
	c.st.ConsecutiveFailures = 0
	c.mu.Unlock()
	c.log.Info("stream quality reset")
}

// State returns a side-effect-free snapshot.
func (c *Connection) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := c.st
	st.LastSuccessfulConnection = copyTime(st.LastSuccessfulConnection)
	st.LastFrameTime = copyTime(st.LastFrameTime)
	return st
}

// ---- frame path ----

// processFrame reads and classifies one frame.
func (c *Connection) processFrame(ctx context.Context) error {
	f, err := c.ReadFrame(ctx)
	if err != nil {
		return err
	}

	det := Detection{}
	if c.classifier != nil {
		det, err = c.classify(ctx, f)
		if err != nil {
			return fmt.Errorf("%w: frame seq=%d trace=%s: %w", ErrReadFailed, f.Seq, f.TraceID, err)
		}
	}

	c.mu.Lock()
	c.st.Detected = det.Detected
	c.st.Confidence = det.Confidence
	c.mu.Unlock()

	c.log.Debug("frame classified",
		"seq", f.Seq,
		"trace_id", f.TraceID,
		"detected", det.Detected,
		"confidence", det.Confidence,
	)

	return nil
}

// classify bounds one classifier call. A call that does not return in time
// is abandoned and reported as ErrClassifyTimeout.
func (c *Connection) classify(ctx context.Context, f Frame) (Detection, error) {
	cctx, cancel := context.WithTimeout(ctx, c.cfg.ClassifyTimeout)
	defer cancel()

	type result struct {
		det Detection
		err error
	}
	ch := make(chan result, 1)

	go func() {
		d, err := c.classifier.Classify(cctx, f)
		ch <- result{det: d, err: err}
	}()

	select {
	case r := <-ch:
		return r.det, r.err
	case <-cctx.Done():
		return Detection{}, ErrClassifyTimeout
	}
}

func (c *Connection) recordReadFailure(err error) {
	c.mu.Lock()
	c.st.FramesFailed++
	c.st.LastError = err.Error()
	n := c.st.FramesFailed
	c.mu.Unlock()

	if n == 1 || n%10 == 0 {
		c.log.Warn("stream frame read failed", "frames_failed", n, "error", err)
	}
}

// ---- helpers ----

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func copyTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
