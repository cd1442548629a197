package config

import (
	"fmt"
	"net"
	"sort"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	switch cfg.UI.Mode {
	case ModeTUI, ModeDesktop, ModeLog:
	default:
		return nil, fmt.Errorf("ui.mode must be one of: tui, desktop, log")
	}

	if strings.TrimSpace(cfg.Blocks.File) == "" && len(cfg.Blocks.ExtraAliases) == 0 && len(cfg.Blocks.SharedAliases) == 0 {
		return nil, fmt.Errorf("blocks: at least one of file, extra_aliases, shared_aliases is required")
	}

	if cfg.Microphone.PlayerName == "" {
		warnings = append(warnings, Warning{Message: "microphone.player_name is empty; voice commands will be refused until it is set"})
	}
	if cfg.Microphone.SampleRate <= 0 {
		return nil, fmt.Errorf("microphone.samplerate must be > 0")
	}
	if cfg.Microphone.Blocksize <= 0 {
		return nil, fmt.Errorf("microphone.blocksize must be > 0")
	}

	if strings.TrimSpace(cfg.Speech.ModelPath) == "" {
		return nil, fmt.Errorf("speech.model_path must not be empty")
	}
	if cfg.Speech.SampleRate <= 0 {
		return nil, fmt.Errorf("speech.sample_rate must be > 0")
	}
	if cfg.Speech.SampleRate != cfg.Microphone.SampleRate {
		warnings = append(warnings, Warning{Message: fmt.Sprintf(
			"speech.sample_rate=%d differs from microphone.samplerate=%d; capture uses the speech rate",
			cfg.Speech.SampleRate, cfg.Microphone.SampleRate)})
	}
	if cfg.Speech.CooldownSeconds < 0 {
		return nil, fmt.Errorf("speech.cooldown_seconds must be >= 0")
	}
	if t := cfg.Speech.FuzzyThreshold; t < 0 || t >= 1 {
		return nil, fmt.Errorf("speech.fuzzy_threshold must be 0 (disabled) or in (0, 1)")
	} else if t > 0 && t < 0.5 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("speech.fuzzy_threshold=%.2f is raised to 0.50", t)})
	}
	if cfg.Speech.MinPhraseChars < 0 {
		return nil, fmt.Errorf("speech.min_phrase_chars must be >= 0")
	}
	if cfg.Speech.PositionMaxAgeMS <= 0 {
		return nil, fmt.Errorf("speech.position_max_age_ms must be > 0")
	}

	mc := cfg.Minecraft
	if strings.TrimSpace(mc.RconHost) == "" {
		return nil, fmt.Errorf("minecraft.rcon_host must not be empty")
	}
	if mc.RconPort <= 0 || mc.RconPort > 65535 {
		return nil, fmt.Errorf("minecraft.rcon_port must be in 1..65535")
	}
	if mc.RconPassword == "" {
		warnings = append(warnings, Warning{Message: "minecraft.rcon_password is empty; most servers reject empty passwords"})
	}
	if mc.FillMaxBlocks <= 0 {
		return nil, fmt.Errorf("minecraft.fill_max_blocks must be > 0")
	}
	if mc.FillMaxBlocks < 256 {
		warnings = append(warnings, Warning{Message: "minecraft.fill_max_blocks is below one chunk layer; fills are split per layer"})
	}
	dims := make([]string, 0, len(mc.DimensionYLimits))
	for dim := range mc.DimensionYLimits {
		dims = append(dims, dim)
	}
	sort.Strings(dims)
	for _, dim := range dims {
		if !strings.Contains(dim, ":") {
			return nil, fmt.Errorf("minecraft.dimension_y_limits: %q must be a namespaced dimension id", dim)
		}
		if pair := mc.DimensionYLimits[dim]; pair[0] > pair[1] {
			return nil, fmt.Errorf("minecraft.dimension_y_limits: %q min %d is above max %d", dim, pair[0], pair[1])
		}
	}
	if mc.CommandIntervalMS < 0 {
		return nil, fmt.Errorf("minecraft.command_interval_ms must be >= 0")
	}
	if mc.CommandTimeoutMS <= 0 {
		return nil, fmt.Errorf("minecraft.command_timeout_ms must be > 0")
	}
	if mc.ReconnectMinMS <= 0 {
		return nil, fmt.Errorf("minecraft.reconnect_min_ms must be > 0")
	}
	if mc.ReconnectMaxMS < mc.ReconnectMinMS {
		return nil, fmt.Errorf("minecraft.reconnect_max_ms must be >= reconnect_min_ms")
	}
	if mc.PresenceIntervalMS <= 0 {
		return nil, fmt.Errorf("minecraft.presence_interval_ms must be > 0")
	}
	if mc.HealthListen != "" {
		if _, _, err := net.SplitHostPort(mc.HealthListen); err != nil {
			return nil, fmt.Errorf("minecraft.health_listen: %w", err)
		}
	}

	return warnings, nil
}
