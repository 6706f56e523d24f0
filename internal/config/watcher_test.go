package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/jarvis/internal/config"
)

const baseYAML = `
server:
  log_level: info
assistant:
  wake_words: [jarvis, jervis]
gesture:
  pinch_ratio: 0.08
`

type change struct{ old, new *config.Config }

// watchFile writes content to a temp config file and starts a fast-polling
// watcher on it. Every reload lands on the returned channel.
func watchFile(t *testing.T, content string) (string, *config.Watcher, <-chan change) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jarvis.yaml")
	rewrite(t, path, content, time.Now().Add(-time.Minute))

	changes := make(chan change, 8)
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		changes <- change{old, new}
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return path, w, changes
}

// rewrite replaces the file and pins its mtime so coarse filesystem clocks
// cannot hide the edit.
func rewrite(t *testing.T, path, content string, mod time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatalf("chtimes %q: %v", path, err)
	}
}

func nextChange(t *testing.T, changes <-chan change) change {
	t.Helper()
	select {
	case c := <-changes:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no reload within 2s")
		return change{}
	}
}

func expectQuiet(t *testing.T, changes <-chan change) {
	t.Helper()
	select {
	case c := <-changes:
		t.Fatalf("unexpected reload to log_level=%q", c.new.Server.LogLevel)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_LoadsOnStart(t *testing.T) {
	t.Parallel()
	_, w, _ := watchFile(t, baseYAML)

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() = nil")
	}
	if got := cfg.Assistant.WakeWords; len(got) != 2 || got[1] != "jervis" {
		t.Errorf("wake_words = %v", got)
	}
	if cfg.Assistant.UserName != "Sir" {
		t.Errorf("defaults not applied: user_name = %q", cfg.Assistant.UserName)
	}
}

func TestWatcher_StartErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	rewrite(t, bad, "gesture:\n  swipe_ratio: 4\n", time.Now())

	for name, path := range map[string]string{
		"missing": filepath.Join(dir, "absent.yaml"),
		"invalid": bad,
	} {
		if _, err := config.NewWatcher(path, nil); err == nil {
			t.Errorf("%s: NewWatcher succeeded, want error", name)
		}
	}
}

func TestWatcher_ReloadsVocabularyEdit(t *testing.T) {
	t.Parallel()
	path, w, changes := watchFile(t, baseYAML)

	rewrite(t, path, `
server:
  log_level: debug
assistant:
  wake_words: [jarvis, jervis, javiz]
gesture:
  pinch_ratio: 0.08
`, time.Now())

	c := nextChange(t, changes)
	if c.old.Server.LogLevel != config.LogInfo || c.new.Server.LogLevel != config.LogDebug {
		t.Errorf("log level %q -> %q, want info -> debug", c.old.Server.LogLevel, c.new.Server.LogLevel)
	}
	d := config.Diff(c.old, c.new)
	if !d.VocabularyChanged || !d.LogLevelChanged || d.GestureChanged {
		t.Errorf("Diff = %+v, want vocabulary and log level only", d)
	}
	if w.Current() != c.new {
		t.Error("Current() does not return the reloaded config")
	}
}

func TestWatcher_IgnoresNonChanges(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
	}{
		{name: "invalid edit", content: "server:\n  log_level: shouting\n"},
		{name: "unknown key", content: "assistant:\n  wake_word: jarvis\n"},
		{name: "touch only", content: baseYAML},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path, w, changes := watchFile(t, baseYAML)
			before := w.Current()

			rewrite(t, path, tt.content, time.Now())
			expectQuiet(t, changes)

			if w.Current() != before {
				t.Error("Current() changed")
			}
		})
	}
}

func TestWatcher_RecoversAfterInvalidEdit(t *testing.T) {
	t.Parallel()
	path, _, changes := watchFile(t, baseYAML)

	rewrite(t, path, "gesture:\n  dead_zone: -1\n", time.Now().Add(-30*time.Second))
	expectQuiet(t, changes)

	rewrite(t, path, "gesture:\n  dead_zone: 5\n", time.Now())
	c := nextChange(t, changes)
	if c.new.Gesture.DeadZone != 5 {
		t.Errorf("dead_zone = %v, want 5", c.new.Gesture.DeadZone)
	}
	if c.old.Gesture.DeadZone != 2 {
		t.Errorf("old dead_zone = %v, want the last valid value 2", c.old.Gesture.DeadZone)
	}
	if !config.Diff(c.old, c.new).GestureChanged {
		t.Error("Diff did not report the gesture change")
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	t.Parallel()
	_, w, _ := watchFile(t, baseYAML)
	w.Stop()
	w.Stop()
}
