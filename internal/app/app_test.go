package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/jarvis/internal/app"
	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/internal/dispatch"
	"github.com/MrWong99/jarvis/internal/landmark"
	"github.com/MrWong99/jarvis/internal/overlay"
	"github.com/MrWong99/jarvis/internal/session"
	"github.com/MrWong99/jarvis/internal/speech"
	"github.com/MrWong99/jarvis/internal/store"
	"github.com/MrWong99/jarvis/pkg/provider/llm"
	llmmock "github.com/MrWong99/jarvis/pkg/provider/llm/mock"
	"github.com/MrWong99/jarvis/pkg/types"
)

// testConfig returns a defaulted config listening on an ephemeral port.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromBytes([]byte("server:\n  listen_addr: 127.0.0.1:0\n"))
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}
	return cfg
}

type event struct {
	name    string
	payload any
}

// recorder captures every published event.
type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) Publish(name string, payload any) {
	r.mu.Lock()
	r.events = append(r.events, event{name, payload})
	r.mu.Unlock()
}

func (r *recorder) named(name string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, e := range r.events {
		if e.name == name {
			out = append(out, e.payload)
		}
	}
	return out
}

func (r *recorder) spoken() []string {
	var out []string
	for _, p := range r.named(speech.EventSpeak) {
		out = append(out, p.(speech.Utterance).Text)
	}
	return out
}

// sink records device notifications.
type sink struct {
	mu     sync.Mutex
	states []types.DeviceState
}

func (s *sink) Notify(d types.DeviceState) {
	s.mu.Lock()
	s.states = append(s.states, d)
	s.mu.Unlock()
}

func (s *sink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

type fixture struct {
	app   *app.App
	store store.Store
	rec   *recorder
	sink  *sink
}

func newFixture(t *testing.T, cfg *config.Config, providers *app.Providers, st store.Store) *fixture {
	t.Helper()
	if st == nil {
		st = store.NewMemory()
	}
	f := &fixture{store: st, rec: &recorder{}, sink: &sink{}}
	a, err := app.New(context.Background(), cfg, providers,
		app.WithStore(st),
		app.WithSink(f.sink),
		app.WithObserver(f.rec),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.app = a
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := a.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return f
}

// run drives the app until the test ends.
func (f *fixture) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.app.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run did not return after cancel")
		}
	})
}

func (f *fixture) send(t *testing.T, typ string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	f.app.HandleInbound(context.Background(), overlay.NewInbound(typ, overlay.JSON, data))
}

func (f *fixture) state() *session.State {
	return f.app.Snapshot().(*session.State)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// unlocked persists settings with face detection off so the session starts
// unlocked.
func unlocked(t *testing.T) store.Store {
	t.Helper()
	st := store.NewMemory()
	s := types.DefaultSettings()
	s.EnableFaceDetection = false
	if err := store.Save(context.Background(), st, store.KeySettings, s); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestNewMissingModel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig(t), nil, nil)
	st := f.state()
	if !st.Locked {
		t.Error("session should start locked with face detection enabled")
	}
	last := st.Logs[len(st.Logs)-1]
	if last.Message != app.MsgMissingKey || last.Kind != types.LogError {
		t.Errorf("last log = %+v, want missing-key error", last)
	}
}

func TestNewRestoresPersistedSession(t *testing.T) {
	t.Parallel()

	st := unlocked(t)
	if err := store.Save(context.Background(), st, store.KeyLanguage, "hi-IN"); err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, testConfig(t), &app.Providers{LLM: &llmmock.Provider{}}, st)

	got := f.state()
	if got.Locked {
		t.Error("session should start unlocked")
	}
	if got.Language != "hi-IN" {
		t.Errorf("Language = %q, want hi-IN", got.Language)
	}
	for _, l := range got.Logs {
		if l.Message == app.MsgMissingKey {
			t.Error("missing-key error logged although a model is configured")
		}
	}
}

func TestLocalCommand(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig(t), nil, unlocked(t))
	f.run(t)

	f.send(t, overlay.MsgTranscript, app.Transcript{Text: "Jarvis turn on the lights", IsFinal: true})

	waitFor(t, "lights on", func() bool { return f.state().Devices.Lights })
	waitFor(t, "sink notification", func() bool { return f.sink.count() == 1 })
	waitFor(t, "confirmation", func() bool { return len(f.rec.spoken()) == 1 })
	if got := f.state().LastCommand; got != "turn on the lights" {
		t.Errorf("LastCommand = %q", got)
	}
	if len(f.rec.named(overlay.EventState)) == 0 {
		t.Error("no state event published")
	}
}

func TestInterimUpdateIsEchoedOnly(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig(t), nil, unlocked(t))
	f.run(t)

	f.send(t, overlay.MsgTranscript, app.Transcript{Text: "jarvis turn on the fan"})
	waitFor(t, "interim event", func() bool { return len(f.rec.named(dispatch.EventInterim)) == 1 })
	if f.state().Devices.Fan {
		t.Error("interim update toggled a device")
	}
}

func TestLockedIgnoresCommandsUntilUnlock(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig(t), nil, nil)
	f.run(t)

	f.send(t, overlay.MsgTranscript, app.Transcript{Text: "jarvis fan on", IsFinal: true})
	time.Sleep(100 * time.Millisecond)
	f.send(t, overlay.MsgUnlock, struct{}{})

	waitFor(t, "unlock", func() bool { return !f.state().Locked })
	if f.state().Devices.Fan {
		t.Error("command acted on while locked")
	}
	waitFor(t, "welcome", func() bool { return len(f.rec.spoken()) == 1 })
	if got := f.rec.spoken()[0]; !strings.HasPrefix(got, "Welcome back, Sir.") {
		t.Errorf("welcome = %q", got)
	}

	f.send(t, overlay.MsgTranscript, app.Transcript{Text: "jarvis fan on", IsFinal: true})
	waitFor(t, "fan on", func() bool { return f.state().Devices.Fan })
}

func TestRemoteCommand(t *testing.T) {
	t.Parallel()

	model := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Forty-two, sir."}}
	f := newFixture(t, testConfig(t), &app.Providers{LLM: model}, unlocked(t))
	f.run(t)

	f.send(t, overlay.MsgTranscript, app.Transcript{Text: "jarvis what is the answer", IsFinal: true})

	waitFor(t, "reply spoken", func() bool {
		s := f.rec.spoken()
		return len(s) == 1 && s[0] == "Forty-two, sir."
	})
	waitFor(t, "thinking cleared", func() bool { return !f.state().Thinking })
	if calls := model.Calls(); len(calls) != 1 {
		t.Fatalf("model calls = %d, want 1", len(calls))
	}
}

func TestRemoteCommandFailure(t *testing.T) {
	t.Parallel()

	model := &llmmock.Provider{CompleteErr: errors.New("boom")}
	f := newFixture(t, testConfig(t), &app.Providers{LLM: model}, unlocked(t))
	f.run(t)

	f.send(t, overlay.MsgTranscript, app.Transcript{Text: "jarvis tell me a joke", IsFinal: true})

	waitFor(t, "failure logged", func() bool {
		for _, l := range f.state().Logs {
			if l.Message == dispatch.MsgNeuralFailure {
				return true
			}
		}
		return false
	})
	if f.state().Thinking {
		t.Error("thinking flag still set after failure")
	}
}

// rawHand returns an open hand whose fingertip centroid is at normalized x.
func rawHand(x float64) [][]landmark.RawPoint {
	pts := make([]landmark.RawPoint, types.LandmarksPerHand)
	for i := range pts {
		pts[i] = landmark.RawPoint{X: x, Y: 0.5}
	}
	pts[types.ThumbTip].X = x - 0.1
	pts[types.IndexTip].X = x + 0.1
	return [][]landmark.RawPoint{pts}
}

func TestSwipeDismissesPanel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig(t), nil, unlocked(t))
	f.run(t)

	open := true
	f.send(t, overlay.MsgPanel, app.PanelChange{Open: &open})
	waitFor(t, "panel open", func() bool { return f.state().PanelOpen })

	f.send(t, overlay.MsgHands, landmark.RawFrame{Width: 640, Height: 480, Hands: rawHand(0.3)})
	waitFor(t, "tracking", func() bool { return len(f.rec.named(app.EventGesture)) == 1 })
	f.send(t, overlay.MsgHands, landmark.RawFrame{Width: 640, Height: 480, Hands: rawHand(0.6)})

	waitFor(t, "panel closed", func() bool { return !f.state().PanelOpen })
	if n := len(f.rec.named(app.EventDismiss)); n != 1 {
		t.Errorf("dismiss events = %d, want 1", n)
	}
}

func TestSettingsAndLanguagePersist(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig(t), nil, unlocked(t))
	f.run(t)

	s := types.DefaultSettings()
	s.HologramIntensity = 30
	f.send(t, overlay.MsgSettings, s)
	f.send(t, overlay.MsgLanguage, app.LanguageChange{Language: "fr-FR"})
	f.send(t, overlay.MsgLanguage, app.LanguageChange{Language: "gu-IN"})

	waitFor(t, "language", func() bool { return f.state().Language == "gu-IN" })
	if got := f.state().Settings.HologramIntensity; got != 30 {
		t.Errorf("HologramIntensity = %d, want 30", got)
	}

	ctx := context.Background()
	saved, ok, err := store.Load[types.UserSettings](ctx, f.store, store.KeySettings)
	if err != nil || !ok || saved.HologramIntensity != 30 {
		t.Errorf("persisted settings = %+v, %v, %v", saved, ok, err)
	}
	lang, ok, err := store.Load[string](ctx, f.store, store.KeyLanguage)
	if err != nil || !ok || lang != "gu-IN" {
		t.Errorf("persisted language = %q, %v, %v", lang, ok, err)
	}
}

func TestReloadSwapsVocabulary(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig(t), nil, unlocked(t))
	f.run(t)

	next := testConfig(t)
	next.Assistant.WakeWords = []string{"friday"}
	if !f.app.Reload(context.Background(), next) {
		t.Fatal("Reload was not accepted")
	}

	f.send(t, overlay.MsgTranscript, app.Transcript{Text: "friday turn on the ac", IsFinal: true})
	waitFor(t, "ac on", func() bool { return f.state().Devices.AC })
}
