// internal/supervisor/builder.go
package supervisor

import (
	"fmt"
	"log/slog"

	"github.com/tamzrod/baywatch/internal/classify"
	cfg "github.com/tamzrod/baywatch/internal/config"
	"github.com/tamzrod/baywatch/internal/occupancy"
	"github.com/tamzrod/baywatch/internal/stream"
	"github.com/tamzrod/baywatch/internal/writer"
)

// Deps are the collaborators Build wires into every bay.
type Deps struct {
	Dialer        stream.Dialer
	Logger        *slog.Logger
	OnChange      func(occupancy.Change)     // optional
	StatusWriters map[int]writer.StatusWriter // optional, keyed by bay id
}

// OccupancyFrom maps the occupancy section onto tracker parameters.
func OccupancyFrom(o cfg.OccupancyConfig) occupancy.Config {
	return occupancy.Config{
		AvailableToInUse: uint(o.AvailableToInUseThreshold),
		InUseToAvailable: uint(o.InUseToAvailableThreshold),
		GracePeriod:      o.GracePeriod(),
		FrameTimeout:     o.FrameTimeout(),
	}
}

// Build converts validated config into a registry of bays.
func Build(c *cfg.Config, d Deps) (*Registry, error) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	b := c.Baywatch

	occCfg := OccupancyFrom(b.Occupancy)
	clsCfg := classify.Config{
		LearningFrames:      b.Classifier.LearningFrames,
		LearningRate:        b.Classifier.LearningRate,
		CenterRatio:         b.Classifier.BayCenterRatio,
		PixelThreshold:      uint8(b.Classifier.PixelThreshold),
		ConfidenceThreshold: b.Classifier.ConfidenceThreshold,
	}
	ladder := LadderFrom(b.Stream.QualityLevels)

	bays := make([]*Bay, 0, len(b.Bays))
	for _, bc := range b.Bays {
		cls, err := classify.NewBackground(clsCfg, d.Logger.With("bay_id", bc.ID))
		if err != nil {
			return nil, fmt.Errorf("bay %d: %w", bc.ID, err)
		}

		conn, err := stream.New(stream.Config{
			BayID:                bc.ID,
			URL:                  bc.URL,
			Ladder:               ladder,
			MaxReconnectAttempts: uint(b.Stream.MaxReconnectAttempts),
			BaseInterval:         b.Stream.BaseReconnectInterval(),
			MaxInterval:          b.Stream.MaxReconnectInterval(),
			ConnectTimeout:       b.Stream.ConnectionTimeout(),
			ReadTimeout:          b.Stream.ReadTimeout(),
			ClassifyTimeout:      b.Classifier.Timeout(),
		}, d.Dialer, cls, stream.WithLogger(d.Logger))
		if err != nil {
			return nil, fmt.Errorf("bay %d: %w", bc.ID, err)
		}

		opts := []occupancy.Option{occupancy.WithLogger(d.Logger)}
		if d.OnChange != nil {
			opts = append(opts, occupancy.WithOnChange(d.OnChange))
		}
		tr, err := occupancy.NewTracker(bc.ID, occCfg, opts...)
		if err != nil {
			return nil, fmt.Errorf("bay %d: %w", bc.ID, err)
		}

		bay := &Bay{
			ID:         bc.ID,
			Name:       bc.Name,
			Feed:       conn,
			Tracker:    tr,
			Classifier: cls,
		}
		if sw, ok := d.StatusWriters[bc.ID]; ok {
			bay.Status = sw
		}
		bays = append(bays, bay)
	}

	return NewRegistry(bays)
}

// LadderFrom maps the config quality table onto the stream ladder.
// Missing rungs keep the stock values.
func LadderFrom(levels map[string]cfg.QualityConfig) stream.Ladder {
	l := stream.DefaultLadder
	for name, q := range levels {
		ql, err := stream.ParseQuality(name)
		if err != nil {
			continue
		}
		l[ql] = stream.Level{FPS: q.FPS, BufferSize: q.BufferSize}
	}
	return l
}
