package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvAPIKey is consulted when a provider entry leaves api_key empty.
const EnvAPIKey = "JARVIS_API_KEY"

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"gemini", "openai", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"deepgram"},
}

// DefaultWakeWords is the canonical wake word followed by its common
// mis-transcriptions.
var DefaultWakeWords = []string{"jarvis", "jarvish", "jervis", "jarves", "jarwis", "javeez", "javiz", "avis"}

// DefaultLanguages are the selectable language tags.
var DefaultLanguages = []string{"en-US", "hi-IN", "gu-IN"}

// DefaultDevices is the built-in two-language device vocabulary.
func DefaultDevices() []DeviceVocabulary {
	return []DeviceVocabulary{
		{Device: "lights", Tokens: []string{"light", "लाइट", "प्रकाश"}},
		{Device: "fan", Tokens: []string{"fan", "पंखा"}},
		{Device: "ac", Tokens: []string{"air conditioner", "एसी"}},
		{Device: "bedroom", Tokens: []string{"bedroom", "बेडरूम"}},
	}
}

// DefaultOffTokens are the built-in negation tokens.
var DefaultOffTokens = []string{"off", "बंद", "निवाओ"}

// DefaultVerbs are the built-in imperative verb patterns.
func DefaultVerbs() []VerbPattern {
	return []VerbPattern{
		{Verb: "print", Pattern: `\bprint\b\s*(.*)$`, Fallback: "test.txt"},
		{Verb: "open", Pattern: `\bopen\b\s*(.*)$`, Fallback: "notepad"},
	}
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills defaults, and validates
// the result. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromBytes is [LoadFromReader] over an in-memory document.
func LoadFromBytes(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data))
}

// ApplyDefaults fills every unset field of cfg with its built-in default and
// resolves provider API keys from the environment.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8765"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	a := &cfg.Assistant
	if len(a.WakeWords) == 0 {
		a.WakeWords = slices.Clone(DefaultWakeWords)
	}
	if a.UserName == "" {
		a.UserName = "Sir"
	}
	if len(a.Languages) == 0 {
		a.Languages = slices.Clone(DefaultLanguages)
	}
	if a.Language == "" {
		a.Language = a.Languages[0]
	}
	if a.SpeechMode == "" {
		a.SpeechMode = SpeechPush
	}
	if a.Settings.EnableFaceDetection == nil {
		a.Settings.EnableFaceDetection = ptr(true)
	}
	if a.Settings.FastResponseMode == nil {
		a.Settings.FastResponseMode = ptr(true)
	}
	if a.Settings.UltraSensitiveVoice == nil {
		a.Settings.UltraSensitiveVoice = ptr(true)
	}
	if a.Settings.HologramIntensity == 0 {
		a.Settings.HologramIntensity = 80
	}

	in := &cfg.Interpreter
	if len(in.Devices) == 0 {
		in.Devices = DefaultDevices()
	}
	if len(in.OffTokens) == 0 {
		in.OffTokens = slices.Clone(DefaultOffTokens)
	}
	if len(in.Verbs) == 0 {
		in.Verbs = DefaultVerbs()
	}

	g := &cfg.Gesture
	if g.PinchRatio == 0 {
		g.PinchRatio = 0.08
	}
	if g.SwipeRatio == 0 {
		g.SwipeRatio = 0.15
	}
	if g.SwipeCooldown == 0 {
		g.SwipeCooldown = 800 * time.Millisecond
	}
	if g.DeadZone == 0 {
		g.DeadZone = 2
	}

	if cfg.Providers.LLM.Name == "" {
		cfg.Providers.LLM.Name = "gemini"
	}
	resolveAPIKey(&cfg.Providers.LLM)
	resolveAPIKey(&cfg.Providers.STT)

	if cfg.Devices.Timeout == 0 {
		cfg.Devices.Timeout = 3 * time.Second
	}
	if m := cfg.Devices.MQTT; m != nil {
		if m.ClientID == "" {
			m.ClientID = "jarvis"
		}
		if m.TopicPrefix == "" {
			m.TopicPrefix = "jarvis"
		}
	}
}

func resolveAPIKey(e *ProviderEntry) {
	if e.Name == "" || e.APIKey != "" {
		return
	}
	e.APIKey = os.Getenv(EnvAPIKey)
}

func ptr[T any](v T) *T { return &v }

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Assistant
	for i, w := range cfg.Assistant.WakeWords {
		if w == "" {
			errs = append(errs, fmt.Errorf("assistant.wake_words[%d] is empty", i))
		}
	}
	if cfg.Assistant.SpeechMode != "" && !cfg.Assistant.SpeechMode.IsValid() {
		errs = append(errs, fmt.Errorf("assistant.speech_mode %q is invalid; valid values: push, provider", cfg.Assistant.SpeechMode))
	}
	if cfg.Assistant.SpeechMode == SpeechProvider && cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("assistant.speech_mode \"provider\" requires providers.stt"))
	}
	if len(cfg.Assistant.Languages) > 0 && cfg.Assistant.Language != "" && !slices.Contains(cfg.Assistant.Languages, cfg.Assistant.Language) {
		errs = append(errs, fmt.Errorf("assistant.language %q is not listed in assistant.languages", cfg.Assistant.Language))
	}
	if hi := cfg.Assistant.Settings.HologramIntensity; hi < 0 || hi > 100 {
		errs = append(errs, fmt.Errorf("assistant.settings.hologram_intensity %d is out of range [0, 100]", hi))
	}

	// Interpreter
	devicesSeen := make(map[string]int, len(cfg.Interpreter.Devices))
	for i, d := range cfg.Interpreter.Devices {
		prefix := fmt.Sprintf("interpreter.devices[%d]", i)
		if d.Device == "" {
			errs = append(errs, fmt.Errorf("%s.device is required", prefix))
		} else {
			if prev, ok := devicesSeen[d.Device]; ok {
				errs = append(errs, fmt.Errorf("%s.device %q is a duplicate of interpreter.devices[%d]", prefix, d.Device, prev))
			}
			devicesSeen[d.Device] = i
		}
		if len(d.Tokens) == 0 {
			errs = append(errs, fmt.Errorf("%s.tokens must not be empty", prefix))
		}
	}
	for i, v := range cfg.Interpreter.Verbs {
		prefix := fmt.Sprintf("interpreter.verbs[%d]", i)
		if v.Verb == "" {
			errs = append(errs, fmt.Errorf("%s.verb is required", prefix))
		}
		re, err := regexp.Compile(v.Pattern)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s.pattern: %w", prefix, err))
			continue
		}
		if re.NumSubexp() < 1 {
			errs = append(errs, fmt.Errorf("%s.pattern must contain a capture group for the argument", prefix))
		}
	}

	// Gesture
	g := cfg.Gesture
	if g.PinchRatio < 0 || g.PinchRatio >= 1 {
		errs = append(errs, fmt.Errorf("gesture.pinch_ratio %.3f is out of range (0, 1)", g.PinchRatio))
	}
	if g.SwipeRatio < 0 || g.SwipeRatio >= 1 {
		errs = append(errs, fmt.Errorf("gesture.swipe_ratio %.3f is out of range (0, 1)", g.SwipeRatio))
	}
	if g.SwipeCooldown < 0 {
		errs = append(errs, errors.New("gesture.swipe_cooldown must not be negative"))
	}
	if g.DeadZone < 0 {
		errs = append(errs, errors.New("gesture.dead_zone must not be negative"))
	}

	// Unknown provider names only warn.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)

	if cfg.Providers.LLM.Name != "" && cfg.Providers.LLM.APIKey == "" && needsAPIKey(cfg.Providers.LLM.Name) {
		slog.Warn("providers.llm has no api key; remote queries will fail until one is configured",
			"provider", cfg.Providers.LLM.Name,
			"env", EnvAPIKey,
		)
	}

	// Devices
	if m := cfg.Devices.MQTT; m != nil && m.Broker == "" {
		errs = append(errs, errors.New("devices.mqtt.broker is required when devices.mqtt is set"))
	}
	if cfg.Devices.Timeout < 0 {
		errs = append(errs, errors.New("devices.timeout must not be negative"))
	}

	return errors.Join(errs...)
}

// needsAPIKey reports whether the named LLM provider requires credentials.
// Local runtimes do not.
func needsAPIKey(name string) bool {
	switch name {
	case "ollama", "llamacpp", "llamafile":
		return false
	}
	return true
}

// NeedsAPIKey reports whether the LLM provider in e requires credentials it
// does not have.
func (e ProviderEntry) NeedsAPIKey() bool {
	return e.Name != "" && e.APIKey == "" && needsAPIKey(e.Name)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
