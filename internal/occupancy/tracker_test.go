// internal/occupancy/tracker_test.go
package occupancy

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// ---- fake clock ----

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// ---- helpers ----

var testConfig = Config{
	AvailableToInUse: 2,
	InUseToAvailable: 8,
	GracePeriod:      10 * time.Second,
	FrameTimeout:     30 * time.Second,
}

func newTestTracker(t *testing.T, cfg Config, opts ...Option) (*Tracker, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	opts = append([]Option{
		WithClock(clk.Now),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)

	tr, err := NewTracker(1, cfg, opts...)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	return tr, clk
}

// connected returns a tracker that is connected and past its startup grace period.
func connected(t *testing.T, cfg Config, opts ...Option) (*Tracker, *fakeClock) {
	t.Helper()
	tr, clk := newTestTracker(t, cfg, opts...)
	feed(tr, clk, false, 1)
	clk.Advance(cfg.GracePeriod)
	feed(tr, clk, false, 1)
	if st := tr.State(); st.RecoveryPending {
		t.Fatalf("setup: still in grace period")
	}
	return tr, clk
}

// feed sends n healthy samples, one second apart, with fresh frames.
func feed(tr *Tracker, clk *fakeClock, detected bool, n int) {
	for i := 0; i < n; i++ {
		lf := clk.Now()
		tr.Update(Sample{Detected: detected, Connected: true, LastFrameTime: &lf, Confidence: 0.5})
		clk.Advance(time.Second)
	}
}

func mustStatus(t *testing.T, tr *Tracker, want Status) {
	t.Helper()
	if got := tr.State().Status; got != want {
		t.Fatalf("status: got=%s want=%s", got, want)
	}
}

// ---- tests ----

func TestTracker_StartsAvailable(t *testing.T) {
	tr, _ := newTestTracker(t, testConfig)

	st := tr.State()
	if st.Status != Available || st.IsConnected {
		t.Fatalf("unexpected initial state: %+v", st)
	}
}

func TestTracker_FastPathToInUse(t *testing.T) {
	tr, clk := connected(t, testConfig)

	feed(tr, clk, true, 1)
	mustStatus(t, tr, Available)

	feed(tr, clk, true, 1)
	mustStatus(t, tr, InUse)
}

func TestTracker_SlowPathToAvailable(t *testing.T) {
	tr, clk := connected(t, testConfig)
	feed(tr, clk, true, 2)
	mustStatus(t, tr, InUse)

	feed(tr, clk, false, 7)
	mustStatus(t, tr, InUse)

	feed(tr, clk, false, 1)
	mustStatus(t, tr, Available)
}

func TestTracker_InterruptedRunResetsCounter(t *testing.T) {
	tr, clk := connected(t, testConfig)
	feed(tr, clk, true, 2)

	feed(tr, clk, false, 5)
	feed(tr, clk, true, 1)
	feed(tr, clk, false, 7)
	mustStatus(t, tr, InUse)

	st := tr.State()
	if st.ConsecutiveNonDetections != 7 || st.ConsecutiveDetections != 0 {
		t.Fatalf("counters: %+v", st)
	}
}

func TestTracker_DisconnectForcesConnectionError(t *testing.T) {
	tr, clk := connected(t, testConfig)
	feed(tr, clk, true, 5)
	mustStatus(t, tr, InUse)
	before := tr.State()

	tr.Update(Sample{Detected: true, Connected: false, Confidence: 0.9})
	st := tr.State()

	if st.Status != ConnectionError {
		t.Fatalf("expected connectionError, got %s", st.Status)
	}
	if st.ConsecutiveDetections != before.ConsecutiveDetections {
		t.Fatalf("counters must not move while faulted")
	}
	if st.LastDisconnectionTime == nil {
		t.Fatalf("lastDisconnectionTime not recorded")
	}

	// invariant holds on every further disconnected update
	for i := 0; i < 20; i++ {
		tr.Update(Sample{Detected: i%2 == 0, Connected: false})
		mustStatus(t, tr, ConnectionError)
	}
}

func TestTracker_FrameTimeoutForcesConnectionError(t *testing.T) {
	tr, clk := connected(t, testConfig)

	stale := clk.Now()
	clk.Advance(31 * time.Second)
	tr.Update(Sample{Detected: true, Connected: true, LastFrameTime: &stale})

	mustStatus(t, tr, ConnectionError)
}

func TestTracker_GracePeriodFreezesCounters(t *testing.T) {
	tr, clk := newTestTracker(t, testConfig)

	// false -> true edge at startup
	feed(tr, clk, true, 9)
	st := tr.State()
	if st.ConsecutiveDetections != 0 || st.Status != Available {
		t.Fatalf("counters advanced during grace: %+v", st)
	}
	if !st.RecoveryPending {
		t.Fatalf("recovery should be pending")
	}

	clk.Advance(time.Second) // 10s since the edge
	feed(tr, clk, true, 2)
	mustStatus(t, tr, InUse)
}

func TestTracker_RecoveryScenario(t *testing.T) {
	tr, clk := connected(t, testConfig)

	// disconnect
	tr.Update(Sample{Connected: false})
	mustStatus(t, tr, ConnectionError)
	clk.Advance(5 * time.Second)

	// reconnect, detections fed every tick
	feed(tr, clk, true, 10)
	st := tr.State()
	if st.Status != ConnectionError {
		t.Fatalf("expected connectionError inside grace, got %s", st.Status)
	}
	if st.LastConnectionTime == nil || !st.RecoveryPending {
		t.Fatalf("reconnect edge not recorded: %+v", st)
	}

	// 10s after the reconnect edge
	feed(tr, clk, true, 1)
	st = tr.State()
	if st.Status != Available {
		t.Fatalf("expected available after grace, got %s", st.Status)
	}
	if st.ConsecutiveDetections != 0 || st.ConsecutiveNonDetections != 0 || st.RecoveryPending {
		t.Fatalf("counters not reset on recovery: %+v", st)
	}
}

func TestTracker_FlappingLinkRestartsGrace(t *testing.T) {
	tr, clk := connected(t, testConfig)
	tr.Update(Sample{Connected: false})

	for i := 0; i < 5; i++ {
		feed(tr, clk, false, 5)
		tr.Update(Sample{Connected: false})
		mustStatus(t, tr, ConnectionError)
	}
}

func TestTracker_FrameTimeoutRecoveryUsesGrace(t *testing.T) {
	tr, clk := connected(t, testConfig)

	stale := clk.Now()
	clk.Advance(31 * time.Second)
	tr.Update(Sample{Connected: true, LastFrameTime: &stale})
	mustStatus(t, tr, ConnectionError)

	// frames flow again without a reconnect edge
	feed(tr, clk, false, 10)
	mustStatus(t, tr, ConnectionError)

	feed(tr, clk, false, 1)
	mustStatus(t, tr, Available)
}

func TestTracker_OutOfServiceIsSticky(t *testing.T) {
	tr, clk := connected(t, testConfig)

	tr.SetOutOfService(true)
	mustStatus(t, tr, OutOfService)

	feed(tr, clk, true, 20)
	mustStatus(t, tr, OutOfService)
	feed(tr, clk, false, 20)
	mustStatus(t, tr, OutOfService)

	tr.SetOutOfService(false)
	st := tr.State()
	if st.Status != Available || st.ConsecutiveDetections != 0 || st.ConsecutiveNonDetections != 0 {
		t.Fatalf("release should reset to available: %+v", st)
	}
}

func TestTracker_OutOfServiceSurvivesConnectionFault(t *testing.T) {
	tr, clk := connected(t, testConfig)
	tr.SetOutOfService(true)

	tr.Update(Sample{Connected: false})
	mustStatus(t, tr, ConnectionError)

	feed(tr, clk, true, 11)
	mustStatus(t, tr, OutOfService)
}

func TestTracker_StateIsIdempotent(t *testing.T) {
	tr, clk := connected(t, testConfig)
	feed(tr, clk, true, 3)

	a := tr.State()
	b := tr.State()

	if a.Status != b.Status ||
		a.LastUpdated != b.LastUpdated ||
		a.ConsecutiveDetections != b.ConsecutiveDetections ||
		a.ConsecutiveNonDetections != b.ConsecutiveNonDetections ||
		!a.LastFrameTime.Equal(*b.LastFrameTime) ||
		a.DetectionConfidence != b.DetectionConfidence {
		t.Fatalf("State() not idempotent:\n%+v\n%+v", a, b)
	}

	// copies must not alias internal state
	*a.LastFrameTime = time.Time{}
	if tr.State().LastFrameTime.IsZero() {
		t.Fatalf("State() leaked internal pointer")
	}
}

func TestTracker_OnChangeReportsTransitions(t *testing.T) {
	var got []Change
	tr, clk := connected(t, testConfig, WithOnChange(func(c Change) { got = append(got, c) }))

	feed(tr, clk, true, 2)
	tr.Update(Sample{Connected: false})

	if len(got) != 2 {
		t.Fatalf("expected 2 changes, got %d: %+v", len(got), got)
	}
	if got[0].From != Available || got[0].To != InUse {
		t.Fatalf("first change: %+v", got[0])
	}
	if got[1].To != ConnectionError || got[1].IsConnected {
		t.Fatalf("second change: %+v", got[1])
	}
}

func TestTracker_ConcurrentChangesDeliveredInOrder(t *testing.T) {
	var (
		mu      sync.Mutex
		got     []Change
		entered = make(chan struct{})
		release = make(chan struct{})
	)
	tr, clk := connected(t, testConfig, WithOnChange(func(c Change) {
		if c.To == InUse {
			close(entered)
			<-release
		}
		mu.Lock()
		got = append(got, c)
		mu.Unlock()
	}))

	// the second detection makes the bay InUse and blocks in the callback
	updated := make(chan struct{})
	go func() {
		feed(tr, clk, true, 2)
		close(updated)
	}()
	<-entered

	held := make(chan struct{})
	go func() {
		tr.SetOutOfService(true)
		close(held)
	}()

	select {
	case <-held:
		t.Fatalf("SetOutOfService returned while an earlier change was being delivered")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-updated
	<-held

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected 2 changes, got %d: %+v", len(got), got)
	}
	if got[0].From != Available || got[0].To != InUse {
		t.Fatalf("first change: %+v", got[0])
	}
	if got[1].From != InUse || got[1].To != OutOfService {
		t.Fatalf("second change: %+v", got[1])
	}
	if got[1].Seq != got[0].Seq+1 {
		t.Fatalf("seq not consecutive: %d then %d", got[0].Seq, got[1].Seq)
	}
	if last := got[len(got)-1].To; last != tr.State().Status {
		t.Fatalf("last delivered %s but state is %s", last, tr.State().Status)
	}
}

func TestTracker_SetConfigAppliesNewThresholds(t *testing.T) {
	tr, clk := connected(t, testConfig)

	cfg := testConfig
	cfg.AvailableToInUse = 4
	if err := tr.SetConfig(cfg); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	if got := tr.Config().AvailableToInUse; got != 4 {
		t.Fatalf("config not applied: %d", got)
	}

	feed(tr, clk, true, 3)
	mustStatus(t, tr, Available)
	feed(tr, clk, true, 1)
	mustStatus(t, tr, InUse)

	bad := cfg
	bad.FrameTimeout = 0
	if err := tr.SetConfig(bad); err == nil {
		t.Fatalf("expected error for zero frame timeout")
	}
	if tr.Config().FrameTimeout != testConfig.FrameTimeout {
		t.Fatalf("rejected config must not be applied")
	}
}

func TestTracker_RejectsBadConfig(t *testing.T) {
	bad := testConfig
	bad.AvailableToInUse = 0

	if _, err := NewTracker(1, bad); err == nil {
		t.Fatalf("expected error for zero threshold")
	}
}

func TestTracker_ConcurrentReaders(t *testing.T) {
	tr, clk := connected(t, testConfig)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					st := tr.State()
					if !st.Status.Valid() {
						t.Errorf("invalid status %d", st.Status)
						return
					}
				}
			}
		}()
	}

	feed(tr, clk, true, 100)
	close(stop)
	wg.Wait()
}

func TestStatus_WireNames(t *testing.T) {
	cases := map[Status]string{
		Available:       "available",
		InUse:           "inUse",
		OutOfService:    "outOfService",
		ConnectionError: "connectionError",
	}
	for s, name := range cases {
		b, err := s.MarshalText()
		if err != nil || string(b) != name {
			t.Fatalf("%d: got %q err=%v", s, b, err)
		}
		back, err := ParseStatus(name)
		if err != nil || back != s {
			t.Fatalf("ParseStatus(%q) = %v, %v", name, back, err)
		}
	}
	if _, err := Status(9).MarshalText(); err == nil {
		t.Fatalf("expected error for out-of-range status")
	}
}
