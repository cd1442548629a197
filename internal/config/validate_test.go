package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Default()
	cfg.Microphone.PlayerName = "Steve"
	cfg.Minecraft.RconPassword = "secret"
	return cfg
}

func TestValidateDefaultsWarnAboutMissingCredentials(t *testing.T) {
	warnings, err := Validate(Default())
	require.NoError(t, err)

	messages := make([]string, 0, len(warnings))
	for _, w := range warnings {
		messages = append(messages, w.Message)
	}
	require.Len(t, messages, 2)
	require.Contains(t, messages[0], "player_name")
	require.Contains(t, messages[1], "rcon_password")
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	warnings, err := Validate(validConfig())
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ui mode", func(c *Config) { c.UI.Mode = "qt" }, "ui.mode"},
		{"no alias source", func(c *Config) { c.Blocks.File = "" }, "blocks"},
		{"samplerate", func(c *Config) { c.Microphone.SampleRate = 0 }, "microphone.samplerate"},
		{"model path", func(c *Config) { c.Speech.ModelPath = " " }, "speech.model_path"},
		{"fuzzy", func(c *Config) { c.Speech.FuzzyThreshold = 1 }, "speech.fuzzy_threshold"},
		{"cooldown", func(c *Config) { c.Speech.CooldownSeconds = -1 }, "speech.cooldown_seconds"},
		{"max age", func(c *Config) { c.Speech.PositionMaxAgeMS = 0 }, "position_max_age_ms"},
		{"port", func(c *Config) { c.Minecraft.RconPort = 70000 }, "rcon_port"},
		{"fill", func(c *Config) { c.Minecraft.FillMaxBlocks = 0 }, "fill_max_blocks"},
		{"dimension", func(c *Config) { c.Minecraft.DimensionYLimits["overworld"] = [2]int{0, 1} }, "namespaced"},
		{"inverted y limits", func(c *Config) { c.Minecraft.DimensionYLimits["minecraft:overworld"] = [2]int{319, -64} }, "min 319 is above max -64"},
		{"reconnect", func(c *Config) { c.Minecraft.ReconnectMaxMS = 1 }, "reconnect_max_ms"},
		{"timeout", func(c *Config) { c.Minecraft.CommandTimeoutMS = 0 }, "command_timeout_ms"},
		{"health", func(c *Config) { c.Minecraft.HealthListen = "nope" }, "health_listen"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateWarnsOnLowFuzzyThresholdAndRateMismatch(t *testing.T) {
	cfg := validConfig()
	cfg.Speech.FuzzyThreshold = 0.3
	cfg.Microphone.SampleRate = 16000

	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 2)
	require.Contains(t, warnings[0].Message, "sample_rate")
	require.Contains(t, warnings[1].Message, "raised to 0.50")
}
