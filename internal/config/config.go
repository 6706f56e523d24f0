// Package config provides the configuration schema, loader, and provider registry
// for the Jarvis assistant server.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/jarvis/pkg/types"
)

// LogLevel controls log verbosity for the Jarvis server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to an [slog.Level]. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Settings converts the configured defaults into user settings. Unset
// switches are treated as on.
func (s SettingsConfig) Settings() types.UserSettings {
	on := func(b *bool) bool { return b == nil || *b }
	return types.UserSettings{
		EnableFaceDetection: on(s.EnableFaceDetection),
		FastResponseMode:    on(s.FastResponseMode),
		UltraSensitiveVoice: on(s.UltraSensitiveVoice),
		HologramIntensity:   s.HologramIntensity,
	}
}

// SpeechMode selects where transcript updates come from.
type SpeechMode string

const (
	// SpeechPush accepts recognizer results pushed by the overlay.
	SpeechPush SpeechMode = "push"

	// SpeechProvider streams overlay audio into the configured STT provider.
	SpeechProvider SpeechMode = "provider"
)

// IsValid reports whether m is a recognised speech mode.
func (m SpeechMode) IsValid() bool {
	return m == SpeechPush || m == SpeechProvider
}

// Config is the root configuration structure for Jarvis.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Assistant   AssistantConfig   `yaml:"assistant"`
	Interpreter InterpreterConfig `yaml:"interpreter"`
	Gesture     GestureConfig     `yaml:"gesture"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Devices     DevicesConfig     `yaml:"devices"`
	Storage     StorageConfig     `yaml:"storage"`
	Journal     JournalConfig     `yaml:"journal"`
}

// ServerConfig holds network and logging settings for the Jarvis server.
type ServerConfig struct {
	// ListenAddr is the TCP address the overlay server listens on (e.g., ":8765").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// AllowedOrigins lists origin patterns accepted on the WebSocket endpoint.
	// Empty means same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// AssistantConfig describes who the assistant is and who it serves.
type AssistantConfig struct {
	// WakeWords lists the wake-word aliases, canonical spelling first,
	// followed by known mis-transcriptions. Order matters: the first alias
	// found in a transcript wins.
	WakeWords []string `yaml:"wake_words"`

	// UserName is how the assistant addresses its user.
	UserName string `yaml:"user_name"`

	// Language is the initial BCP-47 language tag when nothing is persisted.
	Language string `yaml:"language"`

	// Languages lists the selectable language tags.
	Languages []string `yaml:"languages"`

	// Persona overrides the built-in persona line of the remote prompt.
	Persona string `yaml:"persona"`

	// SpeechMode selects the transcript source.
	SpeechMode SpeechMode `yaml:"speech_mode"`

	// Settings are the defaults used when no settings are persisted.
	Settings SettingsConfig `yaml:"settings"`
}

// SettingsConfig mirrors the user-tunable settings.
type SettingsConfig struct {
	EnableFaceDetection *bool `yaml:"enable_face_detection"`
	FastResponseMode    *bool `yaml:"fast_response_mode"`
	UltraSensitiveVoice *bool `yaml:"ultra_sensitive_voice"`
	HologramIntensity   int   `yaml:"hologram_intensity"`
}

// InterpreterConfig holds the command vocabulary.
type InterpreterConfig struct {
	// Devices maps device names to their trigger tokens. Devices are checked
	// in the listed order.
	Devices []DeviceVocabulary `yaml:"devices"`

	// OffTokens flip a local command to "off" when present.
	OffTokens []string `yaml:"off_tokens"`

	// Verbs lists imperative verb patterns.
	Verbs []VerbPattern `yaml:"verbs"`

	// PhoneticFallback enables fuzzy wake-word matching when no alias is a
	// literal substring.
	PhoneticFallback bool `yaml:"phonetic_fallback"`
}

// DeviceVocabulary binds a device to its trigger tokens.
type DeviceVocabulary struct {
	Device string   `yaml:"device"`
	Tokens []string `yaml:"tokens"`
}

// VerbPattern is an imperative verb with a capture pattern for its argument.
type VerbPattern struct {
	Verb     string `yaml:"verb"`
	Pattern  string `yaml:"pattern"`
	Fallback string `yaml:"fallback"`
}

// GestureConfig holds gesture thresholds. Ratios are fractions of the smaller
// frame dimension.
type GestureConfig struct {
	PinchRatio    float64       `yaml:"pinch_ratio"`
	SwipeRatio    float64       `yaml:"swipe_ratio"`
	SwipeCooldown time.Duration `yaml:"swipe_cooldown"`
	DeadZone      float64       `yaml:"dead_zone"`
}

// ProvidersConfig declares which provider implementation to use for each
// external service. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// When empty, the JARVIS_API_KEY environment variable is consulted.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gemini-1.5-flash").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// DevicesConfig configures the side-effect sinks.
type DevicesConfig struct {
	// BridgeURL is the base URL of the local hardware bridge
	// (e.g., "http://localhost:5000"). Empty disables the bridge.
	BridgeURL string `yaml:"bridge_url"`

	// Timeout bounds each best-effort notification.
	Timeout time.Duration `yaml:"timeout"`

	// MQTT configures the optional MQTT device sink.
	MQTT *MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig holds MQTT broker settings.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// StorageConfig configures persistence of settings and panel position.
type StorageConfig struct {
	// Dir is the badger data directory. Empty keeps everything in memory.
	Dir string `yaml:"dir"`
}

// JournalConfig configures the optional command journal.
type JournalConfig struct {
	// PostgresDSN is the PostgreSQL connection string. Empty disables the journal.
	PostgresDSN string `yaml:"postgres_dsn"`
}
