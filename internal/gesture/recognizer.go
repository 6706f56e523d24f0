// Package gesture converts a stream of hand-landmark frames into discrete
// drag and swipe events.
//
// A pinch (thumb tip close to index tip) drags: every pinching frame after
// the first yields the pixel delta of the fingertip centroid. An open hand
// moving quickly to the right swipes, at most once per cooldown window.
// All thresholds scale with the smaller frame dimension so the gestures
// behave the same at any camera resolution.
//
// A Recognizer is not safe for concurrent use. It is owned by the event loop.
package gesture

import (
	"math"
	"time"

	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/pkg/types"
)

// Config holds the recognizer thresholds.
type Config struct {
	// PinchRatio is the pinch threshold as a fraction of the smaller frame side.
	PinchRatio float64

	// SwipeRatio is the minimum rightward centroid motion between two frames,
	// as a fraction of the smaller frame side.
	SwipeRatio float64

	// SwipeCooldown is the minimum time between two swipes.
	SwipeCooldown time.Duration

	// DeadZone is the per-axis drag jitter filter in pixels.
	DeadZone float64
}

// DefaultConfig returns the built-in thresholds.
func DefaultConfig() Config {
	return Config{PinchRatio: 0.08, SwipeRatio: 0.15, SwipeCooldown: 800 * time.Millisecond, DeadZone: 2}
}

// ConfigFrom converts the gesture config section.
func ConfigFrom(c config.GestureConfig) Config {
	return Config{
		PinchRatio:    c.PinchRatio,
		SwipeRatio:    c.SwipeRatio,
		SwipeCooldown: c.SwipeCooldown,
		DeadZone:      c.DeadZone,
	}
}

// State is the coarse recognizer state.
type State int

const (
	Idle State = iota
	Tracking
	Pinching
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Tracking:
		return "tracking"
	case Pinching:
		return "pinching"
	default:
		return "unknown"
	}
}

// Delta is a drag displacement in pixels.
type Delta struct {
	DX, DY float64
}

// Result is what one frame produced. A frame yields a drag or a swipe or
// nothing, never both.
type Result struct {
	Drag  *Delta
	Swipe bool
}

// Empty reports whether the frame produced no event.
func (r Result) Empty() bool { return r.Drag == nil && !r.Swipe }

// GestureState is a copy of the recognizer's temporal state.
// PinchCenter is non-nil only while IsPinching.
type GestureState struct {
	IsPinching     bool
	PinchCenter    *types.Point
	LastHandCenter *types.Point
	LastSwipe      time.Time
}

// Recognizer holds the temporal state between frames.
type Recognizer struct {
	cfg   Config
	state State

	pinchCenter    types.Point
	hasPinchCenter bool
	lastCenter     types.Point
	hasLastCenter  bool
	lastSwipe      time.Time
	hasSwiped      bool
}

// New returns an idle Recognizer.
func New(cfg Config) *Recognizer {
	return &Recognizer{cfg: cfg}
}

// SetConfig replaces the thresholds. Temporal state is kept.
func (r *Recognizer) SetConfig(cfg Config) { r.cfg = cfg }

// State returns the current coarse state.
func (r *Recognizer) State() State { return r.state }

// Snapshot returns a copy of the temporal state.
func (r *Recognizer) Snapshot() GestureState {
	s := GestureState{IsPinching: r.state == Pinching, LastSwipe: r.lastSwipe}
	if r.hasPinchCenter {
		p := r.pinchCenter
		s.PinchCenter = &p
	}
	if r.hasLastCenter {
		p := r.lastCenter
		s.LastHandCenter = &p
	}
	return s
}

// OnFrame advances the recognizer by one frame.
func (r *Recognizer) OnFrame(f types.HandFrame) Result {
	if len(f.Hands) == 0 {
		r.reset()
		return Result{}
	}

	hand := f.Hands[0]
	side := f.MinSide()
	center := centroid(hand)
	prev := r.state

	var res Result
	if distance(hand[types.ThumbTip], hand[types.IndexTip]) < r.cfg.PinchRatio*side {
		r.state = Pinching
		if r.hasPinchCenter {
			dx, dy := center.X-r.pinchCenter.X, center.Y-r.pinchCenter.Y
			if math.Abs(dx) > r.cfg.DeadZone || math.Abs(dy) > r.cfg.DeadZone {
				res.Drag = &Delta{DX: dx, DY: dy}
			}
		}
		r.pinchCenter, r.hasPinchCenter = center, true
	} else {
		r.state = Tracking
		r.hasPinchCenter = false
		if prev == Tracking && r.hasLastCenter {
			velocity := center.X - r.lastCenter.X
			if velocity > r.cfg.SwipeRatio*side && r.cooledDown(f.At) {
				res.Swipe = true
				r.lastSwipe, r.hasSwiped = f.At, true
			}
		}
	}
	r.lastCenter, r.hasLastCenter = center, true
	return res
}

// cooledDown is true for the first swipe and whenever at least the cooldown
// has passed since the previous one.
func (r *Recognizer) cooledDown(at time.Time) bool {
	return !r.hasSwiped || at.Sub(r.lastSwipe) >= r.cfg.SwipeCooldown
}

// reset returns to Idle. The swipe timestamp survives so a hand leaving and
// re-entering cannot bypass the cooldown.
func (r *Recognizer) reset() {
	r.state = Idle
	r.hasPinchCenter = false
	r.hasLastCenter = false
}

func centroid(h types.Hand) types.Point {
	var c types.Point
	for _, i := range types.Fingertips {
		c.X += h[i].X
		c.Y += h[i].Y
	}
	n := float64(len(types.Fingertips))
	return types.Point{X: c.X / n, Y: c.Y / n}
}

func distance(a, b types.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
