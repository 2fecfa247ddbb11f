// internal/stream/rtsp/source.go
package rtsp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/tamzrod/baywatch/internal/stream"
)

// Analysis resolution. Width is a multiple of 4 so GRAY8 rows carry no padding.
const (
	DefaultWidth  = 320
	DefaultHeight = 240
)

var errClosed = errors.New("rtsp: capture closed")

var initOnce sync.Once

// Dialer opens RTSP feeds through a GStreamer pipeline:
//
//	rtspsrc → rtph264depay → avdec_h264 → videoconvert → videoscale →
//	videorate → capsfilter(GRAY8) → appsink
type Dialer struct {
	Width  int
	Height int
	Log    *slog.Logger
}

// NewDialer returns a dialer at the default analysis resolution.
func NewDialer(log *slog.Logger) *Dialer {
	if log == nil {
		log = slog.Default()
	}
	return &Dialer{Width: DefaultWidth, Height: DefaultHeight, Log: log}
}

// Dial builds the pipeline and puts it in PLAYING.
// The returned capture outlives ctx; ctx only bounds setup.
func (d *Dialer) Dial(ctx context.Context, s stream.Settings) (stream.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	initOnce.Do(func() { gst.Init(nil) })

	p, err := d.build(s)
	if err != nil {
		return nil, err
	}

	c := &capture{
		pipeline: p.pipeline,
		frames:   make(chan stream.Frame, s.BufferSize),
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
		width:    d.Width,
		height:   d.Height,
		log:      d.Log,
	}

	p.sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return c.onSample(sink)
		},
	})
	p.src.Connect("pad-added", func(self *gst.Element, srcPad *gst.Pad) {
		linkDynamicPad(d.Log, srcPad, p.depay)
	})

	if err := p.pipeline.SetState(gst.StatePlaying); err != nil {
		_ = p.pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("gst: start pipeline: %w", err)
	}

	go c.watchBus()

	d.Log.Debug("gst pipeline playing",
		"quality", s.Quality.String(),
		"fps", s.FPS,
		"buffer", s.BufferSize,
	)
	return c, nil
}

// ---- pipeline ----

type pipeline struct {
	pipeline *gst.Pipeline
	src      *gst.Element
	depay    *gst.Element
	sink     *app.Sink
}

func (d *Dialer) build(s stream.Settings) (*pipeline, error) {
	pl, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("gst: create pipeline: %w", err)
	}

	src, err := gst.NewElement("rtspsrc")
	if err != nil {
		return nil, fmt.Errorf("gst: create rtspsrc: %w", err)
	}
	src.SetProperty("location", s.URL)
	src.SetProperty("protocols", 4) // TCP only
	src.SetProperty("latency", 200)
	if s.Timeout > 0 {
		src.SetProperty("tcp-timeout", uint64(s.Timeout/time.Microsecond))
	}

	elems := make([]*gst.Element, 0, 6)
	for _, name := range []string{"rtph264depay", "avdec_h264", "videoconvert", "videoscale", "videorate", "capsfilter"} {
		e, err := gst.NewElement(name)
		if err != nil {
			return nil, fmt.Errorf("gst: create %s: %w", name, err)
		}
		elems = append(elems, e)
	}
	depay, rate, caps := elems[0], elems[4], elems[5]

	depay.SetProperty("request-keyframe", true)
	rate.SetProperty("drop-only", true)
	caps.SetProperty("caps", gst.NewCapsFromString(fmt.Sprintf(
		"video/x-raw,format=GRAY8,width=%d,height=%d,framerate=%d/1",
		d.Width, d.Height, s.FPS,
	)))

	sink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("gst: create appsink: %w", err)
	}
	sink.SetProperty("sync", false)
	sink.SetProperty("max-buffers", s.BufferSize)
	sink.SetProperty("drop", true)

	all := append([]*gst.Element{src}, elems...)
	all = append(all, sink.Element)
	if err := pl.AddMany(all...); err != nil {
		return nil, fmt.Errorf("gst: add elements: %w", err)
	}

	// rtspsrc pads are dynamic and linked in pad-added
	linked := append(elems, sink.Element)
	if err := gst.ElementLinkMany(linked...); err != nil {
		return nil, fmt.Errorf("gst: link elements: %w", err)
	}

	return &pipeline{pipeline: pl, src: src, depay: depay, sink: sink}, nil
}

func linkDynamicPad(log *slog.Logger, srcPad *gst.Pad, depay *gst.Element) {
	sinkPad := depay.GetStaticPad("sink")
	if sinkPad == nil {
		log.Error("gst: depay has no sink pad")
		return
	}
	if sinkPad.IsLinked() {
		return
	}
	if ret := srcPad.Link(sinkPad); ret != gst.PadLinkOK {
		log.Warn("gst: pad link failed", "pad", srcPad.GetName(), "ret", ret)
	}
}

// ---- capture ----

type capture struct {
	pipeline *gst.Pipeline

	frames chan stream.Frame
	errs   chan error

	done      chan struct{}
	closeOnce sync.Once

	seq     uint64
	dropped uint64

	width, height int
	log           *slog.Logger
}

func (c *capture) ReadFrame(ctx context.Context) (stream.Frame, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case err := <-c.errs:
		return stream.Frame{}, err
	case <-c.done:
		return stream.Frame{}, errClosed
	case <-ctx.Done():
		return stream.Frame{}, ctx.Err()
	}
}

func (c *capture) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if e := c.pipeline.SetState(gst.StateNull); e != nil {
			err = fmt.Errorf("gst: stop pipeline: %w", e)
		}
		if n := atomic.LoadUint64(&c.dropped); n > 0 {
			c.log.Debug("gst capture closed", "frames_dropped", n)
		}
	})
	return err
}

// onSample copies the appsink buffer out; GStreamer reuses it.
func (c *capture) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return gst.FlowOK
	}
	frameData := make([]byte, len(data))
	copy(frameData, data)
	buffer.Unmap()

	f := stream.Frame{
		Seq:     atomic.AddUint64(&c.seq, 1),
		At:      time.Now(),
		Width:   c.width,
		Height:  c.height,
		Data:    frameData,
		TraceID: uuid.New().String(),
	}

	select {
	case <-c.done:
		return gst.FlowEOS
	case c.frames <- f:
	default:
		atomic.AddUint64(&c.dropped, 1)
	}
	return gst.FlowOK
}

// watchBus turns EOS and pipeline errors into a ReadFrame error.
func (c *capture) watchBus() {
	bus := c.pipeline.GetPipelineBus()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		var err error
		switch msg.Type() {
		case gst.MessageEOS:
			err = errors.New("gst: end of stream")
		case gst.MessageError:
			gerr := msg.ParseError()
			c.log.Debug("gst pipeline error", "error", gerr.Error(), "debug", gerr.DebugString())
			err = fmt.Errorf("gst: pipeline error: %s", gerr.Error())
		default:
			continue
		}

		select {
		case c.errs <- err:
		default:
		}
		return
	}
}
