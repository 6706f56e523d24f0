// Package panel keeps the draggable overlay panel inside the viewport.
//
// The gesture recognizer produces pixel deltas; [Panel.Apply] turns them into
// an absolute position that always leaves the whole panel visible. The
// layout is persisted through the store so the panel reappears where the
// user left it.
package panel

import (
	"context"
	"fmt"

	"github.com/MrWong99/jarvis/internal/store"
)

// Position is the panel's top-left corner in viewport pixels.
type Position struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// Size is a width and height in pixels.
type Size struct {
	W float64 `json:"width" msgpack:"width"`
	H float64 `json:"height" msgpack:"height"`
}

// Layout is the persisted panel geometry.
type Layout struct {
	Position Position `json:"position" msgpack:"position"`
	Panel    Size     `json:"panel" msgpack:"panel"`
	Viewport Size     `json:"viewport" msgpack:"viewport"`
}

// DefaultLayout is used when nothing is persisted.
func DefaultLayout() Layout {
	return Layout{
		Position: Position{X: 40, Y: 40},
		Panel:    Size{W: 360, H: 240},
		Viewport: Size{W: 1280, H: 720},
	}
}

// Panel is the clamped panel position. It is owned by the event loop and not
// safe for concurrent use.
type Panel struct {
	l Layout
}

// New returns a panel with l, clamped.
func New(l Layout) *Panel {
	p := &Panel{l: l}
	p.clamp()
	return p
}

// Layout returns the current geometry.
func (p *Panel) Layout() Layout { return p.l }

// Position returns the current position.
func (p *Panel) Position() Position { return p.l.Position }

// Apply moves the panel by (dx, dy) and returns the clamped position.
func (p *Panel) Apply(dx, dy float64) Position {
	p.l.Position.X += dx
	p.l.Position.Y += dy
	p.clamp()
	return p.l.Position
}

// SetViewport updates the viewport size and re-clamps.
func (p *Panel) SetViewport(s Size) Position {
	p.l.Viewport = s
	p.clamp()
	return p.l.Position
}

// SetPanelSize updates the panel size and re-clamps.
func (p *Panel) SetPanelSize(s Size) Position {
	p.l.Panel = s
	p.clamp()
	return p.l.Position
}

// clamp keeps the panel fully inside the viewport. A panel larger than the
// viewport is pinned to the top-left corner.
func (p *Panel) clamp() {
	maxX := max(0, p.l.Viewport.W-p.l.Panel.W)
	maxY := max(0, p.l.Viewport.H-p.l.Panel.H)
	p.l.Position.X = min(max(p.l.Position.X, 0), maxX)
	p.l.Position.Y = min(max(p.l.Position.Y, 0), maxY)
}

// Load reads the persisted layout, falling back to [DefaultLayout].
func Load(ctx context.Context, s store.Store) (Layout, error) {
	l, ok, err := store.Load[Layout](ctx, s, store.KeyPanel)
	if err != nil {
		return DefaultLayout(), fmt.Errorf("panel: %w", err)
	}
	if !ok {
		return DefaultLayout(), nil
	}
	return l, nil
}

// Save persists l.
func Save(ctx context.Context, s store.Store, l Layout) error {
	if err := store.Save(ctx, s, store.KeyPanel, l); err != nil {
		return fmt.Errorf("panel: %w", err)
	}
	return nil
}
