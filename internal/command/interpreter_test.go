package command

import (
	"strings"
	"testing"

	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/pkg/types"
)

func final(text string) types.TranscriptUpdate {
	return types.TranscriptUpdate{Text: text, IsFinal: true, Language: "en-US"}
}

func interim(text string) types.TranscriptUpdate {
	return types.TranscriptUpdate{Text: text}
}

func TestInterpret(t *testing.T) {
	t.Parallel()

	in := New()

	tests := []struct {
		name   string
		update types.TranscriptUpdate
		locked bool
		want   Action
	}{
		{
			name:   "locked ignores everything",
			update: final("jarvis turn on the light"),
			locked: true,
			want:   Action{Kind: NoOp},
		},
		{
			name:   "no alias",
			update: final("turn on the light"),
			want:   Action{Kind: NoOp},
		},
		{
			name:   "wake word alone final",
			update: final("Jarvis"),
			want:   Action{Kind: NoOp, Command: Command{WakeWord: "jarvis"}},
		},
		{
			name:   "wake word alone interim",
			update: interim("jarvis   "),
			want:   Action{Kind: NoOp, Command: Command{WakeWord: "jarvis"}},
		},
		{
			name:   "interim echo",
			update: interim("Jarvis what is"),
			want:   Action{Kind: Interim, Command: Command{WakeWord: "jarvis", Body: "what is"}},
		},
		{
			name:   "interim with device keyword is still only an echo",
			update: interim("jarvis turn off the light"),
			want:   Action{Kind: Interim, Command: Command{WakeWord: "jarvis", Body: "turn off the light"}},
		},
		{
			name:   "local wins over remote",
			update: final("Jarvis turn off the light and tell me a joke"),
			want: Action{
				Kind:    Local,
				Command: Command{WakeWord: "jarvis", Body: "turn off the light and tell me a joke"},
				Device:  "lights",
				On:      false,
			},
		},
		{
			name:   "local on",
			update: final("jarvis switch on the fan"),
			want: Action{
				Kind:    Local,
				Command: Command{WakeWord: "jarvis", Body: "switch on the fan"},
				Device:  "fan",
				On:      true,
			},
		},
		{
			name:   "hindi device off",
			update: final("जार्विस jarvis पंखा बंद करो"),
			want: Action{
				Kind:    Local,
				Command: Command{WakeWord: "jarvis", Body: "पंखा बंद करो"},
				Device:  "fan",
				On:      false,
			},
		},
		{
			name:   "devices checked in order",
			update: final("jarvis bedroom light on"),
			want: Action{
				Kind:    Local,
				Command: Command{WakeWord: "jarvis", Body: "bedroom light on"},
				Device:  "lights",
				On:      true,
			},
		},
		{
			name:   "structured with argument",
			update: final("jarvis print report.pdf"),
			want: Action{
				Kind:    Structured,
				Command: Command{WakeWord: "jarvis", Body: "print report.pdf"},
				Verb:    "print",
				Arg:     "report.pdf",
			},
		},
		{
			name:   "structured fallback argument",
			update: final("jarvis print"),
			want: Action{
				Kind:    Structured,
				Command: Command{WakeWord: "jarvis", Body: "print"},
				Verb:    "print",
				Arg:     "test.txt",
			},
		},
		{
			name:   "open fallback",
			update: final("jarvis please open"),
			want: Action{
				Kind:    Structured,
				Command: Command{WakeWord: "jarvis", Body: "please open"},
				Verb:    "open",
				Arg:     "notepad",
			},
		},
		{
			name:   "remote carries language",
			update: types.TranscriptUpdate{Text: "Jarvis what is the weather", IsFinal: true, Language: "hi-IN"},
			want: Action{
				Kind:     Remote,
				Command:  Command{WakeWord: "jarvis", Body: "what is the weather"},
				Language: "hi-IN",
			},
		},
		{
			name:   "last occurrence splits the body",
			update: final("jarvis, no wait. jarvis   tell me a joke  "),
			want: Action{
				Kind:     Remote,
				Command:  Command{WakeWord: "jarvis", Body: "tell me a joke"},
				Language: "en-US",
			},
		},
		{
			name:   "wake word mid sentence",
			update: final("play some music jarvis"),
			want:   Action{Kind: NoOp, Command: Command{WakeWord: "jarvis"}},
		},
		{
			name:   "first alias in list order wins",
			update: final("travis open calculator"),
			want: Action{
				Kind:    Structured,
				Command: Command{WakeWord: "avis", Body: "open calculator"},
				Verb:    "open",
				Arg:     "calculator",
			},
		},
		{
			name:   "alias list order decides, not position in the text",
			update: final("jervis hello jarvis turn the lights on"),
			want: Action{
				Kind:    Local,
				Command: Command{WakeWord: "jarvis", Body: "turn the lights on"},
				Device:  "lights",
				On:      true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := in.Interpret(tt.update, tt.locked)
			if got != tt.want {
				t.Errorf("Interpret(%q) = %+v, want %+v", tt.update.Text, got, tt.want)
			}
		})
	}
}

func TestInterpretLockedNeverActs(t *testing.T) {
	t.Parallel()

	in := New()
	inputs := []string{"", "jarvis", "jarvis light on", "jarvis print x", "jarvis why", "avis fan"}
	for _, text := range inputs {
		for _, isFinal := range []bool{true, false} {
			got := in.Interpret(types.TranscriptUpdate{Text: text, IsFinal: isFinal}, true)
			if got.Kind != NoOp {
				t.Errorf("locked Interpret(%q, final=%v) = %v, want noop", text, isFinal, got.Kind)
			}
		}
	}
}

func TestInterpretExtractsTrimmedSuffix(t *testing.T) {
	t.Parallel()

	in := New()
	fillers := []string{"", "hey", "okay so", "jarvis jarvis"}
	commands := []string{"what time is it", "tell me a joke", "how far is the moon"}
	for _, f := range fillers {
		for _, c := range commands {
			text := f + " jarvis  " + c + "  "
			got := in.Interpret(final(text), false)
			if got.Body != c {
				t.Errorf("Interpret(%q).Body = %q, want %q", text, got.Body, c)
			}
			if got.Kind != Remote {
				t.Errorf("Interpret(%q).Kind = %v, want remote", text, got.Kind)
			}
		}
	}
}

func TestInterpretCustomVocabulary(t *testing.T) {
	t.Parallel()

	vocab, err := VocabularyFromConfig(config.InterpreterConfig{
		Devices:   []config.DeviceVocabulary{{Device: "heater", Tokens: []string{"Heater"}}},
		OffTokens: []string{"stop"},
		Verbs:     []config.VerbPattern{{Verb: "play", Pattern: `\bplay\b\s*(.*)$`, Fallback: "jazz"}},
	})
	if err != nil {
		t.Fatalf("VocabularyFromConfig: %v", err)
	}
	in := New(WithWakeWords("Friday"), WithVocabulary(vocab))

	if got := in.Interpret(final("friday stop the heater"), false); got.Kind != Local || got.Device != "heater" || got.On {
		t.Errorf("heater off: got %+v", got)
	}
	if got := in.Interpret(final("friday play"), false); got.Kind != Structured || got.Arg != "jazz" {
		t.Errorf("play fallback: got %+v", got)
	}
	if got := in.Interpret(final("jarvis play"), false); got.Kind != NoOp {
		t.Errorf("default alias still active: got %+v", got)
	}
	if got := in.Interpret(final("friday turn on the light"), false); got.Kind != Remote {
		t.Errorf("default devices still active: got %+v", got)
	}
}

func TestVocabularyFromConfigBadPattern(t *testing.T) {
	t.Parallel()

	_, err := VocabularyFromConfig(config.InterpreterConfig{
		Verbs: []config.VerbPattern{{Verb: "bad", Pattern: "("}},
	})
	if err == nil {
		t.Fatal("expected error for invalid pattern")
	}
	if !strings.Contains(err.Error(), `"bad"`) {
		t.Errorf("error %q does not name the verb", err)
	}
}

func TestPhoneticFallback(t *testing.T) {
	t.Parallel()

	t.Run("disabled by default", func(t *testing.T) {
		t.Parallel()
		in := New(WithWakeWords("jarvis"))
		if got := in.Interpret(final("jarvus turn on the fan"), false); got.Kind != NoOp {
			t.Errorf("got %+v, want noop", got)
		}
	})

	t.Run("matches a sound-alike", func(t *testing.T) {
		t.Parallel()
		in := New(WithWakeWords("jarvis"), WithPhoneticFallback(0))
		got := in.Interpret(final("jarvus turn on the fan"), false)
		if got.Kind != Local || got.Device != "fan" || !got.On {
			t.Fatalf("got %+v, want local fan on", got)
		}
		if got.WakeWord != "jarvus" {
			t.Errorf("WakeWord = %q, want jarvus", got.WakeWord)
		}
	})

	t.Run("rejects unrelated words", func(t *testing.T) {
		t.Parallel()
		in := New(WithWakeWords("jarvis"), WithPhoneticFallback(0))
		if got := in.Interpret(final("please turn on the fan"), false); got.Kind != NoOp {
			t.Errorf("got %+v, want noop", got)
		}
	})

	t.Run("literal alias takes precedence", func(t *testing.T) {
		t.Parallel()
		in := New(WithWakeWords("jarvis"), WithPhoneticFallback(0))
		got := in.Interpret(final("jarvus jarvis open notepad"), false)
		if got.WakeWord != "jarvis" || got.Body != "open notepad" {
			t.Errorf("got %+v", got)
		}
	})
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromBytes([]byte("assistant:\n  wake_words: [edith]\n"))
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}
	in, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if got := in.Interpret(final("EDITH lights off"), false); got.Kind != Local || got.On {
		t.Errorf("got %+v, want local off", got)
	}
}
