package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/jarvis/internal/command"
	"github.com/MrWong99/jarvis/internal/gesture"
	"github.com/MrWong99/jarvis/internal/overlay"
	"github.com/MrWong99/jarvis/internal/panel"
	"github.com/MrWong99/jarvis/internal/store"
	"github.com/MrWong99/jarvis/pkg/types"
)

// Outbound event names published by the loop.
const (
	EventCamera  = "camera"
	EventGesture = "gesture"
	EventPanel   = "panel"
	EventDismiss = "dismiss"
)

// Toggle is the payload of on/off events.
type Toggle struct {
	Enabled bool `json:"enabled" msgpack:"enabled"`
}

// GestureEvent reports a change of the recognizer's coarse state.
type GestureEvent struct {
	State    string `json:"state" msgpack:"state"`
	Pinching bool   `json:"isPinching" msgpack:"isPinching"`
}

// PanelEvent carries the panel position after a move or clamp.
type PanelEvent struct {
	Position panel.Position `json:"position" msgpack:"position"`
	Dragging bool           `json:"dragging" msgpack:"dragging"`
}

// loop is the only goroutine that touches the session, the interpreter, the
// gesture recognizer and the panel. Each iteration handles exactly one event.
func (a *App) loop(ctx context.Context) error {
	updates := a.speech.Updates()
	frames := a.cams.Frames()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-updates.Ready():
			if u, ok := updates.Take(); ok {
				a.handle(ctx, "transcript", func() bool { return a.onTranscript(ctx, u) })
			}

		case <-frames.Ready():
			if f, ok := frames.Take(); ok {
				a.handle(ctx, "frame", func() bool { return a.onFrame(ctx, f) })
			}

		case fn := <-a.control:
			a.handle(ctx, "control", func() bool { return fn(ctx) })

		case done := <-a.dispatch.Completions():
			a.handle(ctx, "completion", func() bool {
				done(a.state)
				return true
			})
		}
	}
}

// handle runs one event handler and broadcasts the session if it changed.
func (a *App) handle(ctx context.Context, event string, fn func() bool) {
	start := time.Now()
	if fn() {
		a.publishState()
	}
	if a.metrics != nil {
		a.metrics.LoopDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("event", event)))
	}
}

func (a *App) onTranscript(ctx context.Context, u types.TranscriptUpdate) bool {
	act := a.interp.Interpret(u, a.state.Locked)
	if act.Kind == command.NoOp {
		return false
	}
	slog.Debug("interpreted update", "kind", act.Kind.String(), "final", u.IsFinal, "wake_word", act.WakeWord)
	a.dispatch.Dispatch(ctx, a.state, act)
	return act.Final()
}

func (a *App) onFrame(ctx context.Context, f types.HandFrame) bool {
	before := a.gestures.State()
	res := a.gestures.OnFrame(f)
	after := a.gestures.State()

	if after != before {
		a.pub.Publish(EventGesture, GestureEvent{State: after.String(), Pinching: after == gesture.Pinching})
		if before == gesture.Pinching {
			a.persistPanel(ctx)
		}
	}

	switch {
	case res.Drag != nil:
		pos := a.panel.Apply(res.Drag.DX, res.Drag.DY)
		a.pub.Publish(EventPanel, PanelEvent{Position: pos, Dragging: true})
		a.recordGesture(ctx, "drag")
		return false
	case res.Swipe:
		a.recordGesture(ctx, "swipe")
		if !a.state.PanelOpen {
			return false
		}
		a.state.SetPanelOpen(false)
		a.pub.Publish(EventDismiss, struct{}{})
		slog.Debug("panel dismissed by swipe")
		return true
	}
	return false
}

func (a *App) persistPanel(ctx context.Context) {
	if err := panel.Save(ctx, a.store, a.panel.Layout()); err != nil {
		slog.Warn("failed to persist panel layout", "err", err)
	}
}

func (a *App) recordGesture(ctx context.Context, name string) {
	if a.metrics != nil {
		a.metrics.RecordGesture(ctx, name)
	}
}

// publishState stores and broadcasts a snapshot of the session.
func (a *App) publishState() {
	a.storeSnapshot()
	a.pub.Publish(overlay.EventState, a.snapshot.Load())
}

func (a *App) storeSnapshot() {
	snap := a.state.Snapshot()
	a.snapshot.Store(&snap)
}

// saveSettings persists the user settings and the active language.
func (a *App) saveSettings(ctx context.Context) {
	if err := store.Save(ctx, a.store, store.KeySettings, a.state.Settings); err != nil {
		slog.Warn("failed to persist settings", "err", err)
	}
	if err := store.Save(ctx, a.store, store.KeyLanguage, a.state.Language); err != nil {
		slog.Warn("failed to persist language", "err", err)
	}
}
