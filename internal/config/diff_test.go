package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/jarvis/internal/config"
)

func baseConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromBytes(nil)
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(t), baseConfig(t))
	if !d.Empty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*config.Config)
		check  func(*testing.T, config.ConfigDiff)
	}{
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
					t.Errorf("got %+v", d)
				}
			},
		},
		{
			name:   "wake words",
			mutate: func(c *config.Config) { c.Assistant.WakeWords = append(c.Assistant.WakeWords, "jarbis") },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.VocabularyChanged {
					t.Errorf("got %+v", d)
				}
			},
		},
		{
			name:   "device token",
			mutate: func(c *config.Config) { c.Interpreter.Devices[1].Tokens = []string{"ceiling fan"} },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.VocabularyChanged {
					t.Errorf("got %+v", d)
				}
			},
		},
		{
			name:   "gesture cooldown",
			mutate: func(c *config.Config) { c.Gesture.SwipeCooldown = time.Second },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.GestureChanged || d.VocabularyChanged {
					t.Errorf("got %+v", d)
				}
			},
		},
		{
			name:   "persona",
			mutate: func(c *config.Config) { c.Assistant.UserName = "Tony" },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.PersonaChanged {
					t.Errorf("got %+v", d)
				}
			},
		},
		{
			name: "restart sections",
			mutate: func(c *config.Config) {
				c.Server.ListenAddr = ":1"
				c.Providers.LLM.Model = "other"
				c.Devices.MQTT = &config.MQTTConfig{Broker: "tcp://x:1883"}
				c.Storage.Dir = "/tmp/x"
			},
			check: func(t *testing.T, d config.ConfigDiff) {
				want := []string{"server", "providers", "devices", "storage"}
				if !slices.Equal(d.RestartRequired, want) {
					t.Errorf("RestartRequired: got %v, want %v", d.RestartRequired, want)
				}
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			old, new := baseConfig(t), baseConfig(t)
			tc.mutate(new)
			tc.check(t, config.Diff(old, new))
		})
	}
}
