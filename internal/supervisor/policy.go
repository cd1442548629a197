package supervisor

import "strings"

// RestartPolicy classifies dotted config keys. Entries ending in ".*" match a whole section.
// Keys in neither set are restart-required.
type RestartPolicy struct {
	Live    map[string]struct{}
	Restart map[string]struct{}
}

// DefaultPolicy is the classification for the blockdelete config document.
func DefaultPolicy() RestartPolicy {
	return RestartPolicy{
		Live: set(
			"ui.*",
			"microphone.player_name",
			"minecraft.command_interval_ms",
			"minecraft.notify_player",
			"minecraft.fill_max_blocks",
			"minecraft.dimension_y_limits",
			"speech.cooldown_seconds",
			"speech.fuzzy_threshold",
			"speech.min_phrase_chars",
			"speech.log_partials",
			"speech.log_recognized",
			"speech.position_max_age_ms",
		),
		Restart: set(
			"minecraft.rcon_host",
			"minecraft.rcon_port",
			"minecraft.rcon_password",
			"minecraft.command_timeout_ms",
			"minecraft.reconnect_min_ms",
			"minecraft.reconnect_max_ms",
			"minecraft.presence_interval_ms",
			"minecraft.health_listen",
			"speech.model_path",
			"speech.sample_rate",
			"speech.use_grammar",
			"microphone.enabled",
			"microphone.device",
			"microphone.samplerate",
			"microphone.blocksize",
			"blocks.*",
		),
	}
}

func set(keys ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out
}

// Classify splits changed keys into live and restart-required, preserving input order.
// An explicit Restart entry wins over a Live one.
func (p RestartPolicy) Classify(keys []string) (live, restart []string) {
	for _, key := range keys {
		switch {
		case matches(p.Restart, key):
			restart = append(restart, key)
		case matches(p.Live, key):
			live = append(live, key)
		default:
			restart = append(restart, key)
		}
	}
	return live, restart
}

func matches(entries map[string]struct{}, key string) bool {
	if _, ok := entries[key]; ok {
		return true
	}
	for i := len(key) - 1; i > 0; i-- {
		if key[i] != '.' {
			continue
		}
		if _, ok := entries[key[:i]+".*"]; ok {
			return true
		}
	}
	return false
}

// RequiresRestart reports whether any key needs the ordered restart.
func (p RestartPolicy) RequiresRestart(keys []string) bool {
	_, restart := p.Classify(keys)
	return len(restart) > 0
}

func joinKeys(keys []string) string {
	return strings.Join(keys, ", ")
}
