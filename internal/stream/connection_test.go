// internal/stream/connection_test.go
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---- fakes ----

type fakeCapture struct {
	mu     sync.Mutex
	frames int // frames served before failing; -1 = unlimited
	served int
	block  bool // once out of frames, block until Close instead of failing

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeCapture(frames int, block bool) *fakeCapture {
	return &fakeCapture{frames: frames, block: block, closed: make(chan struct{})}
}

func (f *fakeCapture) ReadFrame(ctx context.Context) (Frame, error) {
	f.mu.Lock()
	if f.frames < 0 || f.served < f.frames {
		f.served++
		n := f.served
		f.mu.Unlock()
		return Frame{Seq: uint64(n), Width: 2, Height: 2, Data: make([]byte, 4), TraceID: fmt.Sprintf("frame-%d", n)}, nil
	}
	f.mu.Unlock()

	if f.block {
		// ignores ctx on purpose: models a wedged transport
		<-f.closed
		return Frame{}, errors.New("capture closed")
	}
	return Frame{}, errors.New("eof")
}

func (f *fakeCapture) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeCapture) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

type fakeDialer struct {
	mu       sync.Mutex
	fail     int // dials that fail before the first success
	calls    int
	settings []Settings
	captures []*fakeCapture

	newCapture func() *fakeCapture
}

func (d *fakeDialer) Dial(ctx context.Context, s Settings) (Capture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls++
	d.settings = append(d.settings, s)
	if d.fail > 0 {
		d.fail--
		return nil, errors.New("connection refused")
	}
	c := newFakeCapture(-1, false)
	if d.newCapture != nil {
		c = d.newCapture()
	}
	d.captures = append(d.captures, c)
	return c, nil
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDialer) lastCapture() *fakeCapture {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.captures) == 0 {
		return nil
	}
	return d.captures[len(d.captures)-1]
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

// ---- helpers ----

func testConfig() Config {
	return Config{
		BayID:                1,
		URL:                  "rtsp://cam/1",
		Ladder:               DefaultLadder,
		MaxReconnectAttempts: 10,
		BaseInterval:         2 * time.Second,
		MaxInterval:          60 * time.Second,
		ConnectTimeout:       time.Second,
		ReadTimeout:          time.Second,
		ClassifyTimeout:      time.Second,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConnection(t *testing.T, cfg Config, d Dialer, cl Classifier, opts ...Option) *Connection {
	t.Helper()
	opts = append([]Option{
		WithLogger(quietLogger()),
		WithRand(func() float64 { return 0.5 }), // jitter factor 1.0
	}, opts...)
	c, err := New(cfg, d, cl, opts...)
	require.NoError(t, err)
	return c
}

// ---- backoff ----

func TestBackoffDelay_MonotoneAndCapped(t *testing.T) {
	base, max := 2*time.Second, 60*time.Second

	assert.Equal(t, base, BackoffDelay(0, base, max))

	prev := time.Duration(0)
	for a := uint(0); a < 30; a++ {
		d := BackoffDelay(a, base, max)
		assert.GreaterOrEqual(t, d, prev, "attempts=%d", a)
		assert.LessOrEqual(t, d, max, "attempts=%d", a)
		prev = d
	}
	assert.Equal(t, max, BackoffDelay(30, base, max))

	// exponent stops growing at 6
	assert.Equal(t, 64*time.Second, BackoffDelay(9, time.Second, time.Hour))
}

func TestJitter_BoundsAndFloor(t *testing.T) {
	d := 8 * time.Second

	assert.Equal(t, 6*time.Second, Jitter(d, 0))
	assert.Equal(t, d, Jitter(d, 0.5))
	assert.InDelta(t, float64(10*time.Second), float64(Jitter(d, 0.9999999)), float64(time.Millisecond))

	assert.Equal(t, time.Second, Jitter(500*time.Millisecond, 0))
}

// ---- connect ----

func TestConnect_SuccessResetsFailureState(t *testing.T) {
	d := &fakeDialer{fail: 1}
	c := newTestConnection(t, testConfig(), d, nil)

	err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrConnectFailed)

	st := c.State()
	assert.False(t, st.IsConnected)
	assert.Equal(t, uint(1), st.ConsecutiveFailures)
	assert.NotEmpty(t, st.LastError)

	require.NoError(t, c.Connect(context.Background()))

	st = c.State()
	assert.True(t, st.IsConnected)
	assert.Zero(t, st.ConsecutiveFailures)
	assert.Empty(t, st.LastError)
	require.NotNil(t, st.LastSuccessfulConnection)
	require.NotNil(t, st.LastFrameTime)
	assert.Zero(t, st.TotalReconnects)
}

func TestConnect_ProbeFailureClosesCapture(t *testing.T) {
	d := &fakeDialer{newCapture: func() *fakeCapture { return newFakeCapture(0, false) }}
	c := newTestConnection(t, testConfig(), d, nil)

	require.ErrorIs(t, c.Connect(context.Background()), ErrConnectFailed)
	assert.True(t, d.lastCapture().isClosed())
	assert.False(t, c.State().IsConnected)
}

func TestConnect_QualityLadderIsOneWay(t *testing.T) {
	d := &fakeDialer{fail: 100}
	c := newTestConnection(t, testConfig(), d, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = c.Connect(ctx)
	}
	assert.Equal(t, High, c.State().QualityLevel)

	_ = c.Connect(ctx)
	st := c.State()
	assert.Equal(t, Medium, st.QualityLevel)
	assert.Zero(t, st.ConsecutiveFailures)

	for i := 0; i < 3; i++ {
		_ = c.Connect(ctx)
	}
	assert.Equal(t, Low, c.State().QualityLevel)

	// floor
	for i := 0; i < 6; i++ {
		_ = c.Connect(ctx)
	}
	assert.Equal(t, Low, c.State().QualityLevel)

	// the dialer sees the degraded settings
	last := d.settings[len(d.settings)-1]
	assert.Equal(t, Low, last.Quality)
	assert.Equal(t, DefaultLadder[Low].FPS, last.FPS)
	assert.Equal(t, DefaultLadder[Low].BufferSize, last.BufferSize)

	// success does not upgrade
	d.fail = 0
	require.NoError(t, c.Connect(ctx))
	assert.Equal(t, Low, c.State().QualityLevel)

	c.ResetQuality()
	assert.Equal(t, High, c.State().QualityLevel)
}

func TestTotalReconnects_CountsReconnectionsOnly(t *testing.T) {
	c := newTestConnection(t, testConfig(), &fakeDialer{}, nil)
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx))
	c.Disconnect()
	require.NoError(t, c.Connect(ctx))
	c.Disconnect()
	require.NoError(t, c.Connect(ctx))

	assert.Equal(t, uint(2), c.State().TotalReconnects)
}

// ---- reconnect ----

func TestReconnect_BackoffGrowsThenResets(t *testing.T) {
	rec := &sleepRecorder{}
	d := &fakeDialer{fail: 3}
	c := newTestConnection(t, testConfig(), d, nil, WithSleep(func(ctx context.Context, dur time.Duration) error {
		_ = rec.sleep(ctx, dur)
		return nil
	}))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.Error(t, c.Reconnect(ctx))
	}
	assert.Equal(t, uint(3), c.State().ReconnectAttempts)

	require.NoError(t, c.Reconnect(ctx))
	assert.Zero(t, c.State().ReconnectAttempts)

	c.Disconnect()
	require.NoError(t, c.Reconnect(ctx))

	assert.Equal(t, []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		2 * time.Second, // back to base after success
	}, rec.delays)
}

func TestReconnect_ExhaustedKeepsRetryingAtCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxReconnectAttempts = 2
	cfg.MaxInterval = 4 * time.Second

	rec := &sleepRecorder{}
	d := &fakeDialer{fail: 100}
	c := newTestConnection(t, cfg, d, nil, WithSleep(func(ctx context.Context, dur time.Duration) error {
		_ = rec.sleep(ctx, dur)
		return nil
	}))

	for i := 0; i < 5; i++ {
		_ = c.Reconnect(context.Background())
	}

	st := c.State()
	assert.True(t, st.Exhausted)
	assert.Equal(t, 5, d.callCount())
	assert.Equal(t, 4*time.Second, rec.delays[len(rec.delays)-1])

	d.mu.Lock()
	d.fail = 0
	d.mu.Unlock()
	require.NoError(t, c.Reconnect(context.Background()))
	assert.False(t, c.State().Exhausted)
}

func TestReconnect_CancelledDuringBackoff(t *testing.T) {
	d := &fakeDialer{}
	c := newTestConnection(t, testConfig(), d, nil, WithSleep(sleepCtx))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, c.Reconnect(ctx), context.Canceled)
	assert.Zero(t, d.callCount())
}

// ---- read ----

func TestReadFrame_NotConnected(t *testing.T) {
	c := newTestConnection(t, testConfig(), &fakeDialer{}, nil)

	_, err := c.ReadFrame(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestReadFrame_CountsFrames(t *testing.T) {
	c := newTestConnection(t, testConfig(), &fakeDialer{}, nil)
	require.NoError(t, c.Connect(context.Background()))

	for i := 0; i < 5; i++ {
		_, err := c.ReadFrame(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(5), c.State().FramesProcessed)
}

func TestReadFrame_AverageFPSEvery100Frames(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	c := newTestConnection(t, testConfig(), &fakeDialer{}, nil, WithClock(clock))
	require.NoError(t, c.Connect(context.Background()))

	for i := 0; i < 100; i++ {
		mu.Lock()
		now = now.Add(100 * time.Millisecond)
		mu.Unlock()
		_, err := c.ReadFrame(context.Background())
		require.NoError(t, err)
		if i == 98 {
			assert.Zero(t, c.State().AverageFPS)
		}
	}
	assert.InDelta(t, 10.0, c.State().AverageFPS, 0.001)
}

type blockingClassifier struct{ release chan struct{} }

func (b blockingClassifier) Classify(ctx context.Context, f Frame) (Detection, error) {
	<-b.release
	return Detection{Detected: true}, nil
}

type constClassifier struct{ det Detection }

func (c constClassifier) Classify(context.Context, Frame) (Detection, error) { return c.det, nil }

func TestProcessFrame_ClassifyTimeoutIsReadFailure(t *testing.T) {
	cfg := testConfig()
	cfg.ClassifyTimeout = 10 * time.Millisecond

	cl := blockingClassifier{release: make(chan struct{})}
	defer close(cl.release)

	c := newTestConnection(t, cfg, &fakeDialer{}, cl)
	require.NoError(t, c.Connect(context.Background()))

	err := c.processFrame(context.Background())
	assert.ErrorIs(t, err, ErrReadFailed)
	assert.ErrorIs(t, err, ErrClassifyTimeout)
	assert.Contains(t, err.Error(), "trace=frame-", "the failing frame is identifiable")
}

func TestProcessFrame_StoresDetection(t *testing.T) {
	c := newTestConnection(t, testConfig(), &fakeDialer{}, constClassifier{det: Detection{Detected: true, Confidence: 0.7}})
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.processFrame(context.Background()))

	st := c.State()
	assert.True(t, st.Detected)
	assert.Equal(t, 0.7, st.Confidence)
}

// ---- run loop ----

func TestRun_ReadFailureReconnects(t *testing.T) {
	// probe + 2 frames, then EOF
	d := &fakeDialer{newCapture: func() *fakeCapture { return newFakeCapture(3, false) }}
	c := newTestConnection(t, testConfig(), d, nil, WithSleep(func(ctx context.Context, _ time.Duration) error {
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()

	require.Eventually(t, func() bool { return d.callCount() >= 3 }, 2*time.Second, time.Millisecond)
	cancel()
	<-done

	st := c.State()
	assert.GreaterOrEqual(t, st.FramesFailed, uint64(2))
	assert.GreaterOrEqual(t, st.FramesProcessed, uint64(4))
	assert.GreaterOrEqual(t, st.TotalReconnects, uint(2))
	assert.False(t, st.IsConnected)
	assert.True(t, d.lastCapture().isClosed())
}

func TestStop_JoinsWorker(t *testing.T) {
	d := &fakeDialer{}
	c := newTestConnection(t, testConfig(), d, nil)

	c.Start(context.Background())
	require.Eventually(t, func() bool { return c.State().IsConnected }, time.Second, time.Millisecond)

	require.NoError(t, c.Stop(time.Second))
	assert.False(t, c.State().IsConnected)
	assert.True(t, d.lastCapture().isClosed())
}

func TestStop_TimeoutClosesCapture(t *testing.T) {
	// probe succeeds, then the transport wedges and ignores ctx
	d := &fakeDialer{newCapture: func() *fakeCapture { return newFakeCapture(1, true) }}
	c := newTestConnection(t, testConfig(), d, nil)

	c.Start(context.Background())
	require.Eventually(t, func() bool { return c.State().IsConnected }, time.Second, time.Millisecond)

	err := c.Stop(20 * time.Millisecond)
	require.ErrorIs(t, err, ErrStopTimeout)
	assert.True(t, d.lastCapture().isClosed())
	assert.False(t, c.State().IsConnected)
}

func TestNew_RejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.URL = ""
	_, err := New(cfg, &fakeDialer{}, nil)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Ladder[Medium].FPS = 0
	_, err = New(cfg, &fakeDialer{}, nil)
	assert.Error(t, err)
}
