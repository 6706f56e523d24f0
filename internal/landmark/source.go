// Package landmark adapts the overlay's per-frame hand-landmark feed into
// pixel-space [types.HandFrame] values for the gesture recognizer.
//
// The overlay runs the hand-pose model and sends normalized (0..1)
// coordinates together with the pixel size of the frame they came from. The
// source denormalizes them, discards malformed hands, and keeps only the
// most recent unread frame.
package landmark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/stream"
	"github.com/MrWong99/jarvis/pkg/types"
)

// MaxHands is the most hands kept per frame.
const MaxHands = 2

// ErrBadFrameSize is returned for frames without a positive pixel size.
var ErrBadFrameSize = errors.New("landmark: frame width and height must be positive")

// RawPoint is one normalized landmark. Z is carried by the model but unused.
type RawPoint struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z,omitempty" msgpack:"z,omitempty"`
}

// RawFrame is the wire form of one processed video frame.
type RawFrame struct {
	Width     float64      `json:"width" msgpack:"width"`
	Height    float64      `json:"height" msgpack:"height"`
	Timestamp int64        `json:"timestamp,omitempty" msgpack:"timestamp,omitempty"`
	Hands     [][]RawPoint `json:"hands" msgpack:"hands"`
}

// Source is the landmark source. All methods are safe for concurrent use.
type Source struct {
	out     *stream.Mailbox[types.HandFrame]
	camera  func(on bool)
	now     func() time.Time
	metrics *observe.Metrics

	mu         sync.Mutex
	enabled    bool
	modelReady bool
	lastW      float64
	lastH      float64
}

// Option configures a [Source].
type Option func(*Source)

// WithCameraControl installs the callback that asks the overlay to start or
// stop camera acquisition.
func WithCameraControl(fn func(on bool)) Option {
	return func(s *Source) { s.camera = fn }
}

// WithClock overrides the clock used for frames without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Source) { s.now = now }
}

// WithMetrics records dropped frames.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Source) { s.metrics = m }
}

// New creates a source. The model is assumed available until the overlay
// says otherwise.
func New(enabled bool, opts ...Option) *Source {
	s := &Source{
		out:        stream.NewMailbox[types.HandFrame](),
		now:        time.Now,
		enabled:    enabled,
		modelReady: true,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Frames is the mailbox the event loop reads.
func (s *Source) Frames() *stream.Mailbox[types.HandFrame] { return s.out }

// Enabled reports whether acquisition is on.
func (s *Source) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SetEnabled starts or stops acquisition. Disabling emits one empty frame so
// the recognizer returns to idle.
func (s *Source) SetEnabled(on bool) {
	s.mu.Lock()
	if s.enabled == on {
		s.mu.Unlock()
		return
	}
	s.enabled = on
	w, h := s.lastW, s.lastH
	s.mu.Unlock()

	slog.Info("landmark source toggled", "enabled", on)
	if s.camera != nil {
		s.camera(on)
	}
	if !on {
		s.put(types.HandFrame{Width: w, Height: h, At: s.now()})
	}
}

// SetModelAvailable records whether the overlay has a model instance. While
// none is available every frame is delivered without hands.
func (s *Source) SetModelAvailable(ok bool) {
	s.mu.Lock()
	changed := s.modelReady != ok
	s.modelReady = ok
	w, h := s.lastW, s.lastH
	s.mu.Unlock()
	if !changed {
		return
	}
	slog.Info("landmark model availability changed", "available", ok)
	if !ok {
		s.put(types.HandFrame{Width: w, Height: h, At: s.now()})
	}
}

// Ingest converts and delivers one raw frame. Frames are dropped while the
// source is disabled.
func (s *Source) Ingest(raw RawFrame) error {
	if raw.Width <= 0 || raw.Height <= 0 {
		return fmt.Errorf("%w: got %vx%v", ErrBadFrameSize, raw.Width, raw.Height)
	}

	s.mu.Lock()
	enabled, ready := s.enabled, s.modelReady
	s.lastW, s.lastH = raw.Width, raw.Height
	s.mu.Unlock()
	if !enabled {
		return nil
	}

	f := types.HandFrame{Width: raw.Width, Height: raw.Height, At: s.now()}
	if raw.Timestamp > 0 {
		f.At = time.UnixMilli(raw.Timestamp)
	}
	if ready {
		f.Hands = Denormalize(raw)
	}
	s.put(f)
	return nil
}

func (s *Source) put(f types.HandFrame) {
	if s.out.Put(f) && s.metrics != nil {
		s.metrics.RecordDropped(context.Background(), "frame")
	}
}

// Denormalize scales the hands of raw into pixel space. Hands without
// exactly [types.LandmarksPerHand] points are skipped and at most
// [MaxHands] are kept.
func Denormalize(raw RawFrame) []types.Hand {
	var hands []types.Hand
	for _, pts := range raw.Hands {
		if len(hands) == MaxHands {
			break
		}
		if len(pts) != types.LandmarksPerHand {
			continue
		}
		var h types.Hand
		for i, p := range pts {
			h[i] = types.Point{X: p.X * raw.Width, Y: p.Y * raw.Height}
		}
		hands = append(hands, h)
	}
	return hands
}
