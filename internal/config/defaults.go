package config

// UI modes.
const (
	ModeTUI     = "tui"
	ModeDesktop = "desktop"
	ModeLog     = "log"
)

// DefaultYLimits are the vanilla build heights per dimension.
func DefaultYLimits() map[string][2]int {
	return map[string][2]int{
		"minecraft:overworld":  {-64, 319},
		"minecraft:the_nether": {0, 127},
		"minecraft:the_end":    {0, 255},
	}
}

// Default returns the canonical runtime configuration used when no file is present.
// Relative paths are resolved against the config directory by Load.
func Default() Config {
	return Config{
		UI: UIConfig{Mode: ModeTUI},
		Blocks: BlocksConfig{
			File: "blocks.json",
		},
		Microphone: MicrophoneConfig{
			Enabled:    true,
			Device:     "default",
			SampleRate: 48000,
			Blocksize:  9600,
		},
		Speech: SpeechConfig{
			ModelPath:        "models/vosk-model-small-ru-0.22",
			SampleRate:       48000,
			CooldownSeconds:  2,
			FuzzyThreshold:   0.70,
			MinPhraseChars:   2,
			PositionMaxAgeMS: 5000,
		},
		Minecraft: MinecraftConfig{
			RconHost:           "127.0.0.1",
			RconPort:           25575,
			FillMaxBlocks:      32768,
			DimensionYLimits:   DefaultYLimits(),
			CommandIntervalMS:  100,
			CommandTimeoutMS:   3000,
			ReconnectMinMS:     500,
			ReconnectMaxMS:     10000,
			PresenceIntervalMS: 2000,
			NotifyPlayer:       true,
		},
	}
}
