// internal/stream/types.go
package stream

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotConnected    = errors.New("stream: not connected")
	ErrConnectFailed   = errors.New("stream: connect failed")
	ErrReadFailed      = errors.New("stream: read failed")
	ErrClassifyTimeout = errors.New("stream: classify timed out")
	ErrStopTimeout     = errors.New("stream: stop timed out")
)

// Frame is one decoded picture.
// Data layout is transport-defined; the gst transport delivers GRAY8.
type Frame struct {
	Seq     uint64
	At      time.Time
	Width   int
	Height  int
	Data    []byte
	TraceID string // correlates logs and errors for this frame; may be empty
}

// Settings is what a transport needs to open a feed.
type Settings struct {
	URL        string
	Quality    Quality
	FPS        int
	BufferSize int
	Timeout    time.Duration
}

// Capture is an open feed. ReadFrame blocks until a frame arrives or ctx ends.
// Close must be safe to call while a ReadFrame is in flight.
type Capture interface {
	ReadFrame(ctx context.Context) (Frame, error)
	Close() error
}

// Dialer opens a Capture.
type Dialer interface {
	Dial(ctx context.Context, s Settings) (Capture, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, s Settings) (Capture, error)

func (f DialerFunc) Dial(ctx context.Context, s Settings) (Capture, error) { return f(ctx, s) }

// Detection is the classifier verdict for one frame.
type Detection struct {
	Detected   bool
	Confidence float64
}

// Classifier turns a frame into a detection.
type Classifier interface {
	Classify(ctx context.Context, f Frame) (Detection, error)
}

// ConnectionState is a read-only snapshot of one feed.
// It also carries the latest detection so one read gives a supervisor
// everything it needs for a tick.
type ConnectionState struct {
	BayID int `json:"bayId"`

	IsConnected              bool       `json:"isConnected"`
	ReconnectAttempts        uint       `json:"reconnectAttempts"`
	TotalReconnects          uint       `json:"totalReconnects"`
	ConsecutiveFailures      uint       `json:"consecutiveFailures"`
	QualityLevel             Quality    `json:"qualityLevel"`
	FramesProcessed          uint64     `json:"framesProcessed"`
	FramesFailed             uint64     `json:"framesFailed"`
	AverageFPS               float64    `json:"averageFps"`
	LastError                string     `json:"lastError,omitempty"`
	LastSuccessfulConnection *time.Time `json:"lastSuccessfulConnection,omitempty"`
	Exhausted                bool       `json:"exhausted"`

	// latest detection
	Detected      bool       `json:"detected"`
	Confidence    float64    `json:"confidence"`
	LastFrameTime *time.Time `json:"lastFrameTime,omitempty"`
}
