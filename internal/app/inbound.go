package app

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/MrWong99/jarvis/internal/command"
	"github.com/MrWong99/jarvis/internal/dispatch"
	"github.com/MrWong99/jarvis/internal/landmark"
	"github.com/MrWong99/jarvis/internal/listen"
	"github.com/MrWong99/jarvis/internal/overlay"
	"github.com/MrWong99/jarvis/internal/panel"
	"github.com/MrWong99/jarvis/internal/speech"
	"github.com/MrWong99/jarvis/pkg/types"
)

// Transcript is the wire form of one pushed recognizer result.
type Transcript struct {
	Text     string `json:"text" msgpack:"text"`
	IsFinal  bool   `json:"isFinal" msgpack:"isFinal"`
	Language string `json:"language,omitempty" msgpack:"language,omitempty"`
}

// LanguageChange selects a new recognition and reply language.
type LanguageChange struct {
	Language string `json:"language" msgpack:"language"`
}

// PanelChange reports the secondary panel being shown or resized.
type PanelChange struct {
	Open *bool       `json:"open,omitempty" msgpack:"open,omitempty"`
	Size *panel.Size `json:"size,omitempty" msgpack:"size,omitempty"`
}

// ModelStatus reports whether the overlay has a landmark model instance.
type ModelStatus struct {
	Available bool `json:"available" msgpack:"available"`
}

// HandleInbound routes one overlay message. Sensor input goes straight to the
// adapters, which are safe for concurrent use; anything touching the session
// is posted to the event loop.
func (a *App) HandleInbound(ctx context.Context, in overlay.Inbound) {
	if err := a.route(ctx, in); err != nil {
		slog.Warn("dropping overlay message", "type", in.Type, "err", err)
	}
}

func (a *App) route(ctx context.Context, in overlay.Inbound) error {
	switch in.Type {
	case overlay.MsgTranscript:
		var t Transcript
		if err := in.Decode(&t); err != nil {
			return err
		}
		a.speech.Push(types.TranscriptUpdate{Text: t.Text, IsFinal: t.IsFinal, Language: t.Language, At: time.Now()})

	case overlay.MsgHands:
		var f landmark.RawFrame
		if err := in.Decode(&f); err != nil {
			return err
		}
		return a.cams.Ingest(f)

	case overlay.MsgAudio:
		var pcm []byte
		if err := in.Decode(&pcm); err != nil {
			return err
		}
		if err := a.speech.SendAudio(pcm); err != nil && !errors.Is(err, listen.ErrPushMode) {
			return err
		}

	case overlay.MsgVoices:
		var voices []speech.Voice
		if err := in.Decode(&voices); err != nil {
			return err
		}
		a.speaker.SetVoices(voices)

	case overlay.MsgCamera:
		var t Toggle
		if err := in.Decode(&t); err != nil {
			return err
		}
		a.cams.SetEnabled(t.Enabled)

	case overlay.MsgModel:
		var m ModelStatus
		if err := in.Decode(&m); err != nil {
			return err
		}
		a.cams.SetModelAvailable(m.Available)

	case overlay.MsgUnlock:
		a.post(ctx, a.unlock)

	case overlay.MsgSettings:
		var s types.UserSettings
		if err := in.Decode(&s); err != nil {
			return err
		}
		a.post(ctx, func(ctx context.Context) bool { return a.applySettings(ctx, s) })

	case overlay.MsgLanguage:
		var l LanguageChange
		if err := in.Decode(&l); err != nil {
			return err
		}
		a.post(ctx, func(ctx context.Context) bool { return a.setLanguage(ctx, l.Language) })

	case overlay.MsgViewport:
		var s panel.Size
		if err := in.Decode(&s); err != nil {
			return err
		}
		a.post(ctx, func(context.Context) bool {
			a.pub.Publish(EventPanel, PanelEvent{Position: a.panel.SetViewport(s)})
			return false
		})

	case overlay.MsgPanel:
		var p PanelChange
		if err := in.Decode(&p); err != nil {
			return err
		}
		a.post(ctx, func(context.Context) bool { return a.changePanel(p) })

	default:
		slog.Debug("ignoring unknown overlay message", "type", in.Type)
	}
	return nil
}

// unlock completes face authentication and greets the user.
func (a *App) unlock(ctx context.Context) bool {
	entry, ok := a.state.Unlock(a.user)
	if !ok {
		return false
	}
	a.pub.Publish(dispatch.EventLog, entry)
	lang := a.state.Language
	u := speech.Compose(command.Welcome(lang, a.user), lang, a.state.Settings.FastResponseMode)
	if err := a.speaker.Speak(ctx, u); err != nil {
		slog.Warn("failed to speak welcome", "err", err)
	}
	slog.Info("session unlocked", "user", a.user)
	return true
}

func (a *App) applySettings(ctx context.Context, s types.UserSettings) bool {
	if s.HologramIntensity < 0 || s.HologramIntensity > 100 {
		slog.Warn("rejecting settings", "hologram_intensity", s.HologramIntensity)
		return false
	}
	if s == a.state.Settings {
		return false
	}
	a.state.ApplySettings(s)
	a.saveSettings(ctx)
	return true
}

func (a *App) setLanguage(ctx context.Context, tag string) bool {
	if !slices.Contains(a.cfg.Assistant.Languages, tag) {
		slog.Warn("rejecting unsupported language", "language", tag, "supported", a.cfg.Assistant.Languages)
		return false
	}
	if !a.state.SetLanguage(tag) {
		return false
	}
	a.speech.SetLanguage(tag)
	a.saveSettings(ctx)
	return true
}

func (a *App) changePanel(p PanelChange) bool {
	if p.Size != nil {
		a.pub.Publish(EventPanel, PanelEvent{Position: a.panel.SetPanelSize(*p.Size)})
	}
	if p.Open == nil || *p.Open == a.state.PanelOpen {
		return false
	}
	a.state.SetPanelOpen(*p.Open)
	return true
}

var _ overlay.Handler = (*App)(nil)
