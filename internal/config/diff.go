package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VocabularyChanged is true if wake words, devices, off tokens, verbs,
	// or the phonetic fallback switch changed.
	VocabularyChanged bool

	// GestureChanged is true if any gesture threshold changed.
	GestureChanged bool

	// PersonaChanged is true if the user name or persona line changed.
	PersonaChanged bool

	// RestartRequired lists top-level sections that changed but cannot be
	// applied without a restart.
	RestartRequired []string
}

// Empty reports whether d carries no changes at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.VocabularyChanged && !d.GestureChanged &&
		!d.PersonaChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !slices.Equal(old.Assistant.WakeWords, new.Assistant.WakeWords) ||
		!interpreterEqual(old.Interpreter, new.Interpreter) {
		d.VocabularyChanged = true
	}

	if old.Gesture != new.Gesture {
		d.GestureChanged = true
	}

	if old.Assistant.UserName != new.Assistant.UserName || old.Assistant.Persona != new.Assistant.Persona {
		d.PersonaChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !providerEqual(old.Providers.LLM, new.Providers.LLM) || !providerEqual(old.Providers.STT, new.Providers.STT) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Devices.BridgeURL != new.Devices.BridgeURL || (old.Devices.MQTT == nil) != (new.Devices.MQTT == nil) ||
		(old.Devices.MQTT != nil && *old.Devices.MQTT != *new.Devices.MQTT) {
		d.RestartRequired = append(d.RestartRequired, "devices")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	if old.Journal != new.Journal {
		d.RestartRequired = append(d.RestartRequired, "journal")
	}

	return d
}

func interpreterEqual(a, b InterpreterConfig) bool {
	if a.PhoneticFallback != b.PhoneticFallback {
		return false
	}
	if !slices.Equal(a.OffTokens, b.OffTokens) || !slices.Equal(a.Verbs, b.Verbs) {
		return false
	}
	return slices.EqualFunc(a.Devices, b.Devices, func(x, y DeviceVocabulary) bool {
		return x.Device == y.Device && slices.Equal(x.Tokens, y.Tokens)
	})
}

// providerEqual ignores Options, which holds provider-private values that
// are compared by the provider itself on restart.
func providerEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}
