package config

import "reflect"

// field names one dotted config key and reads its value.
type field struct {
	key string
	get func(Config) any
}

var fields = []field{
	{"ui.mode", func(c Config) any { return c.UI.Mode }},
	{"ui.notify_cmd", func(c Config) any { return c.UI.NotifyCmd.Raw }},
	{"blocks.file", func(c Config) any { return c.Blocks.File }},
	{"blocks.extra_aliases", func(c Config) any { return c.Blocks.ExtraAliases }},
	{"blocks.shared_aliases", func(c Config) any { return c.Blocks.SharedAliases }},
	{"microphone.enabled", func(c Config) any { return c.Microphone.Enabled }},
	{"microphone.player_name", func(c Config) any { return c.Microphone.PlayerName }},
	{"microphone.device", func(c Config) any { return c.Microphone.Device }},
	{"microphone.samplerate", func(c Config) any { return c.Microphone.SampleRate }},
	{"microphone.blocksize", func(c Config) any { return c.Microphone.Blocksize }},
	{"speech.model_path", func(c Config) any { return c.Speech.ModelPath }},
	{"speech.sample_rate", func(c Config) any { return c.Speech.SampleRate }},
	{"speech.cooldown_seconds", func(c Config) any { return c.Speech.CooldownSeconds }},
	{"speech.fuzzy_threshold", func(c Config) any { return c.Speech.FuzzyThreshold }},
	{"speech.use_grammar", func(c Config) any { return c.Speech.UseGrammar }},
	{"speech.log_partials", func(c Config) any { return c.Speech.LogPartials }},
	{"speech.log_recognized", func(c Config) any { return c.Speech.LogRecognized }},
	{"speech.min_phrase_chars", func(c Config) any { return c.Speech.MinPhraseChars }},
	{"speech.position_max_age_ms", func(c Config) any { return c.Speech.PositionMaxAgeMS }},
	{"minecraft.rcon_host", func(c Config) any { return c.Minecraft.RconHost }},
	{"minecraft.rcon_port", func(c Config) any { return c.Minecraft.RconPort }},
	{"minecraft.rcon_password", func(c Config) any { return c.Minecraft.RconPassword }},
	{"minecraft.fill_max_blocks", func(c Config) any { return c.Minecraft.FillMaxBlocks }},
	{"minecraft.dimension_y_limits", func(c Config) any { return c.Minecraft.DimensionYLimits }},
	{"minecraft.command_interval_ms", func(c Config) any { return c.Minecraft.CommandIntervalMS }},
	{"minecraft.command_timeout_ms", func(c Config) any { return c.Minecraft.CommandTimeoutMS }},
	{"minecraft.reconnect_min_ms", func(c Config) any { return c.Minecraft.ReconnectMinMS }},
	{"minecraft.reconnect_max_ms", func(c Config) any { return c.Minecraft.ReconnectMaxMS }},
	{"minecraft.presence_interval_ms", func(c Config) any { return c.Minecraft.PresenceIntervalMS }},
	{"minecraft.notify_player", func(c Config) any { return c.Minecraft.NotifyPlayer }},
	{"minecraft.health_listen", func(c Config) any { return c.Minecraft.HealthListen }},
}

// Keys lists every dotted key Diff can report, in document order.
func Keys() []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.key)
	}
	return out
}

// Diff returns the dotted keys whose values differ between old and next, in document order.
func Diff(old, next Config) []string {
	var changed []string
	for _, f := range fields {
		if !reflect.DeepEqual(f.get(old), f.get(next)) {
			changed = append(changed, f.key)
		}
	}
	return changed
}
