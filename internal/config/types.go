// Package config resolves, parses, validates, and defaults blockdelete configuration.
package config

// Config is the fully materialized runtime configuration.
type Config struct {
	UI         UIConfig
	Blocks     BlocksConfig
	Microphone MicrophoneConfig
	Speech     SpeechConfig
	Minecraft  MinecraftConfig
}

// UIConfig selects the status frontend.
type UIConfig struct {
	// Mode is one of tui, desktop, log.
	Mode string
	// NotifyCmd replaces the desktop notification call when set; the message is appended.
	NotifyCmd CommandConfig
}

// BlocksConfig lists alias sources. Paths are absolute after Load.
type BlocksConfig struct {
	File          string
	ExtraAliases  []AliasGroup
	SharedAliases []AliasGroup
}

// AliasGroup is one alias map entry in file order.
type AliasGroup struct {
	Key    string
	Values []string
}

// MicrophoneConfig selects the capture device and the player voice commands target.
type MicrophoneConfig struct {
	Enabled    bool
	PlayerName string
	// Device is empty/"default", a device index, or a name substring.
	Device     string
	SampleRate int
	Blocksize  int
}

// SpeechConfig controls recognition and matching.
type SpeechConfig struct {
	ModelPath        string
	SampleRate       int
	CooldownSeconds  float64
	FuzzyThreshold   float64
	UseGrammar       bool
	LogPartials      bool
	LogRecognized    bool
	MinPhraseChars   int
	PositionMaxAgeMS int
}

// MinecraftConfig controls the RCON connection and fill generation.
type MinecraftConfig struct {
	RconHost           string
	RconPort           int
	RconPassword       string
	FillMaxBlocks      int
	DimensionYLimits   map[string][2]int
	CommandIntervalMS  int
	CommandTimeoutMS   int
	ReconnectMinMS     int
	ReconnectMaxMS     int
	PresenceIntervalMS int
	NotifyPlayer       bool
	// HealthListen is the gRPC health address; empty disables the server.
	HealthListen string
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
