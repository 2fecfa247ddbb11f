// internal/classify/background.go
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tamzrod/baywatch/internal/stream"
)

// Config tunes the background model.
type Config struct {
	LearningFrames      int     // frames averaged into the empty-bay background
	LearningRate        float64 // adaptation rate after calibration
	CenterRatio         float64 // share of width/height checked, centred
	PixelThreshold      uint8   // |pixel - background| above this is foreground
	ConfidenceThreshold float64 // detected when confidence exceeds this
}

// Background is a per-bay background-subtraction classifier over GRAY8 frames.
// It learns an empty-bay background from the first LearningFrames frames,
// then measures foreground coverage inside the centred region of interest.
type Background struct {
	cfg Config
	log *slog.Logger

	mu     sync.Mutex
	bg     []float64
	width  int
	height int
	frames int
}

// NewBackground validates cfg and returns a classifier in calibration.
func NewBackground(cfg Config, log *slog.Logger) (*Background, error) {
	if cfg.LearningFrames < 1 {
		return nil, errors.New("classify: learning frames must be >= 1")
	}
	if cfg.LearningRate <= 0 || cfg.LearningRate > 1 {
		return nil, errors.New("classify: learning rate must be in (0,1]")
	}
	if cfg.CenterRatio <= 0 || cfg.CenterRatio > 1 {
		return nil, errors.New("classify: center ratio must be in (0,1]")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Background{cfg: cfg, log: log}, nil
}

// Classify implements stream.Classifier.
func (b *Background) Classify(ctx context.Context, f stream.Frame) (stream.Detection, error) {
	if err := ctx.Err(); err != nil {
		return stream.Detection{}, err
	}
	n := f.Width * f.Height
	if f.Width <= 0 || f.Height <= 0 || len(f.Data) < n {
		return stream.Detection{}, fmt.Errorf("classify: bad frame %dx%d with %d bytes", f.Width, f.Height, len(f.Data))
	}
	px := f.Data[:n]

	b.mu.Lock()
	defer b.mu.Unlock()

	if f.Width != b.width || f.Height != b.height {
		if b.bg != nil {
			b.log.Info("frame size changed, recalibrating",
				"from", fmt.Sprintf("%dx%d", b.width, b.height),
				"to", fmt.Sprintf("%dx%d", f.Width, f.Height),
			)
		}
		b.reset(f.Width, f.Height)
	}

	b.frames++

	// ---- calibration: running mean ----
	if b.frames <= b.cfg.LearningFrames {
		k := float64(b.frames)
		for i, p := range px {
			b.bg[i] += (float64(p) - b.bg[i]) / k
		}
		if b.frames%20 == 0 || b.frames == b.cfg.LearningFrames {
			b.log.Debug("learning background", "frames", b.frames, "of", b.cfg.LearningFrames)
		}
		return stream.Detection{}, nil
	}

	// ---- detection ----
	x0, x1, y0, y1 := roi(f.Width, f.Height, b.cfg.CenterRatio)
	thr := float64(b.cfg.PixelThreshold)
	rate := b.cfg.LearningRate

	fg := 0
	for y := 0; y < f.Height; y++ {
		inY := y >= y0 && y < y1
		row := y * f.Width
		for x := 0; x < f.Width; x++ {
			i := row + x
			d := float64(px[i]) - b.bg[i]
			if d < 0 {
				d = -d
			}
			if d > thr {
				if inY && x >= x0 && x < x1 {
					fg++
				}
				continue
			}
			// adapt only where the scene looks like background
			b.bg[i] += rate * (float64(px[i]) - b.bg[i])
		}
	}

	area := (x1 - x0) * (y1 - y0)
	coverage := 0.0
	if area > 0 {
		coverage = float64(fg) / float64(area)
	}
	conf := coverage * 2
	if conf > 1 {
		conf = 1
	}

	return stream.Detection{
		Detected:   conf > b.cfg.ConfidenceThreshold,
		Confidence: conf,
	}, nil
}

// Calibrating reports whether the background is still being learned.
func (b *Background) Calibrating() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames < b.cfg.LearningFrames
}

// Reset drops the learned background.
func (b *Background) Reset() {
	b.mu.Lock()
	b.reset(0, 0)
	b.mu.Unlock()
	b.log.Info("background model reset")
}

func (b *Background) reset(w, h int) {
	b.width, b.height = w, h
	b.frames = 0
	if w*h == 0 {
		b.bg = nil
		return
	}
	b.bg = make([]float64, w*h)
}

// roi returns the half-open bounds of the centred region of interest.
func roi(w, h int, ratio float64) (x0, x1, y0, y1 int) {
	mx := int(float64(w) * (1 - ratio) / 2)
	my := int(float64(h) * (1 - ratio) / 2)
	return mx, w - mx, my, h - my
}
