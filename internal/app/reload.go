package app

import (
	"context"
	"log/slog"

	"github.com/MrWong99/jarvis/internal/command"
	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/internal/gesture"
)

// reload applies the hot-reloadable parts of a new config. It runs on the
// event loop and never changes the session itself.
func (a *App) reload(old, new *config.Config) bool {
	d := config.Diff(old, new)
	if d.Empty() {
		return false
	}

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.VocabularyChanged {
		interp, err := command.FromConfig(new)
		if err != nil {
			slog.Warn("keeping previous vocabulary", "err", err)
		} else {
			a.interp = interp
			slog.Info("command vocabulary reloaded", "wake_words", len(new.Assistant.WakeWords))
		}
	}
	if d.GestureChanged {
		a.gestures.SetConfig(gesture.ConfigFrom(new.Gesture))
		slog.Info("gesture thresholds reloaded")
	}
	if d.PersonaChanged {
		a.user = new.Assistant.UserName
		a.dispatch.SetUser(a.user)
		a.dispatch.SetPersona(new.Assistant.Persona)
		slog.Info("persona reloaded", "user", a.user)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}

	a.cfg = new
	return false
}

// Reload applies new as if the config watcher had observed it. It blocks
// until the event loop has applied the change and reports false if ctx ended
// first.
func (a *App) Reload(ctx context.Context, new *config.Config) bool {
	applied := make(chan struct{})
	ok := a.post(ctx, func(context.Context) bool {
		defer close(applied)
		return a.reload(a.cfg, new)
	})
	if !ok {
		return false
	}
	select {
	case <-applied:
		return true
	case <-ctx.Done():
		return false
	}
}
