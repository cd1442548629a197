package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/iancoleman/orderedmap"
)

type payload struct {
	UI         *uiPayload         `json:"ui"`
	Blocks     *blocksPayload     `json:"blocks"`
	Microphone *microphonePayload `json:"microphone"`
	Speech     *speechPayload     `json:"speech"`
	Minecraft  *minecraftPayload  `json:"minecraft"`
}

type uiPayload struct {
	Mode      *string `json:"mode"`
	NotifyCmd *string `json:"notify_cmd"`
}

type blocksPayload struct {
	File          *string   `json:"file"`
	ExtraAliases  *aliasMap `json:"extra_aliases"`
	SharedAliases *aliasMap `json:"shared_aliases"`
}

type microphonePayload struct {
	Enabled    *bool           `json:"enabled"`
	PlayerName *string         `json:"player_name"`
	Device     *deviceSelector `json:"device"`
	SampleRate *int            `json:"samplerate"`
	Blocksize  *int            `json:"blocksize"`
}

type speechPayload struct {
	ModelPath        *string  `json:"model_path"`
	SampleRate       *int     `json:"sample_rate"`
	CooldownSeconds  *float64 `json:"cooldown_seconds"`
	FuzzyThreshold   *float64 `json:"fuzzy_threshold"`
	UseGrammar       *bool    `json:"use_grammar"`
	LogPartials      *bool    `json:"log_partials"`
	LogRecognized    *bool    `json:"log_recognized"`
	MinPhraseChars   *int     `json:"min_phrase_chars"`
	PositionMaxAgeMS *int     `json:"position_max_age_ms"`
}

type minecraftPayload struct {
	RconHost           *string           `json:"rcon_host"`
	RconPort           *int              `json:"rcon_port"`
	RconPassword       *string           `json:"rcon_password"`
	FillMaxBlocks      *int              `json:"fill_max_blocks"`
	DimensionYLimits   map[string][2]int `json:"dimension_y_limits"`
	CommandIntervalMS  *int              `json:"command_interval_ms"`
	CommandTimeoutMS   *int              `json:"command_timeout_ms"`
	ReconnectMinMS     *int              `json:"reconnect_min_ms"`
	ReconnectMaxMS     *int              `json:"reconnect_max_ms"`
	PresenceIntervalMS *int              `json:"presence_interval_ms"`
	NotifyPlayer       *bool             `json:"notify_player"`
	HealthListen       *string           `json:"health_listen"`
}

// aliasMap decodes an object whose values are a string or a list of strings, in file order.
type aliasMap []AliasGroup

func (m *aliasMap) UnmarshalJSON(data []byte) error {
	doc := orderedmap.New()
	if err := json.Unmarshal(data, doc); err != nil {
		return err
	}

	groups := make([]AliasGroup, 0, len(doc.Keys()))
	for _, key := range doc.Keys() {
		value, _ := doc.Get(key)
		values, err := aliasValues(value)
		if err != nil {
			return fmt.Errorf("alias %q: %w", key, err)
		}

		key = strings.TrimSpace(key)
		if key == "" || len(values) == 0 {
			continue
		}
		groups = append(groups, AliasGroup{Key: key, Values: values})
	}
	if len(groups) == 0 {
		groups = nil
	}
	*m = groups
	return nil
}

func aliasValues(value any) ([]string, error) {
	var raw []string
	switch v := value.(type) {
	case string:
		raw = []string{v}
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string, got %T", item)
			}
			raw = append(raw, s)
		}
	default:
		return nil, fmt.Errorf("expected string or string array, got %T", value)
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// deviceSelector accepts either a device index or a name.
type deviceSelector string

func (d *deviceSelector) UnmarshalJSON(data []byte) error {
	var index int
	if err := json.Unmarshal(data, &index); err == nil {
		*d = deviceSelector(strconv.Itoa(index))
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*d = deviceSelector(strings.TrimSpace(name))
		return nil
	}
	return fmt.Errorf("expected device index or name")
}

// Parse decodes JSONC content over base and validates the result.
func Parse(content string, base Config) (Config, []Warning, error) {
	if strings.TrimSpace(content) == "" {
		warnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, warnings, nil
	}

	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var p payload
	if err := decoder.Decode(&p); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	cfg.Minecraft.DimensionYLimits = copyLimits(base.Minecraft.DimensionYLimits)
	warnings, err := p.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}

	validated, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, append(warnings, validated...), nil
}

func (p payload) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if p.UI != nil {
		if p.UI.Mode != nil {
			mode := strings.ToLower(strings.TrimSpace(*p.UI.Mode))
			if mode == "qt" {
				warnings = append(warnings, Warning{Message: `ui.mode "qt" is not available; using "desktop"`})
				mode = ModeDesktop
			}
			cfg.UI.Mode = mode
		}
		if p.UI.NotifyCmd != nil {
			argv, err := parseArgv(*p.UI.NotifyCmd)
			if err != nil {
				return nil, fmt.Errorf("invalid ui.notify_cmd: %w", err)
			}
			cfg.UI.NotifyCmd = CommandConfig{Raw: *p.UI.NotifyCmd, Argv: argv}
		}
	}

	if p.Blocks != nil {
		if p.Blocks.File != nil {
			cfg.Blocks.File = strings.TrimSpace(*p.Blocks.File)
		}
		if p.Blocks.ExtraAliases != nil {
			cfg.Blocks.ExtraAliases = []AliasGroup(*p.Blocks.ExtraAliases)
		}
		if p.Blocks.SharedAliases != nil {
			cfg.Blocks.SharedAliases = []AliasGroup(*p.Blocks.SharedAliases)
		}
	}

	if m := p.Microphone; m != nil {
		if m.Enabled != nil {
			cfg.Microphone.Enabled = *m.Enabled
		}
		if m.PlayerName != nil {
			cfg.Microphone.PlayerName = strings.TrimSpace(*m.PlayerName)
		}
		if m.Device != nil {
			cfg.Microphone.Device = string(*m.Device)
		}
		if m.SampleRate != nil {
			cfg.Microphone.SampleRate = *m.SampleRate
		}
		if m.Blocksize != nil {
			cfg.Microphone.Blocksize = *m.Blocksize
		}
	}

	if s := p.Speech; s != nil {
		if s.ModelPath != nil {
			cfg.Speech.ModelPath = strings.TrimSpace(*s.ModelPath)
		}
		if s.SampleRate != nil {
			cfg.Speech.SampleRate = *s.SampleRate
		}
		if s.CooldownSeconds != nil {
			cfg.Speech.CooldownSeconds = *s.CooldownSeconds
		}
		if s.FuzzyThreshold != nil {
			cfg.Speech.FuzzyThreshold = *s.FuzzyThreshold
		}
		if s.UseGrammar != nil {
			cfg.Speech.UseGrammar = *s.UseGrammar
		}
		if s.LogPartials != nil {
			cfg.Speech.LogPartials = *s.LogPartials
		}
		if s.LogRecognized != nil {
			cfg.Speech.LogRecognized = *s.LogRecognized
		}
		if s.MinPhraseChars != nil {
			cfg.Speech.MinPhraseChars = *s.MinPhraseChars
		}
		if s.PositionMaxAgeMS != nil {
			cfg.Speech.PositionMaxAgeMS = *s.PositionMaxAgeMS
		}
	}

	if m := p.Minecraft; m != nil {
		if m.RconHost != nil {
			cfg.Minecraft.RconHost = strings.TrimSpace(*m.RconHost)
		}
		if m.RconPort != nil {
			cfg.Minecraft.RconPort = *m.RconPort
		}
		if m.RconPassword != nil {
			cfg.Minecraft.RconPassword = strings.TrimSpace(*m.RconPassword)
		}
		if m.FillMaxBlocks != nil {
			cfg.Minecraft.FillMaxBlocks = *m.FillMaxBlocks
		}
		for dim, pair := range m.DimensionYLimits {
			dim = strings.TrimSpace(dim)
			if dim == "" {
				continue
			}
			if pair[0] > pair[1] {
				pair[0], pair[1] = pair[1], pair[0]
			}
			cfg.Minecraft.DimensionYLimits[dim] = pair
		}
		if m.CommandIntervalMS != nil {
			cfg.Minecraft.CommandIntervalMS = *m.CommandIntervalMS
		}
		if m.CommandTimeoutMS != nil {
			cfg.Minecraft.CommandTimeoutMS = *m.CommandTimeoutMS
		}
		if m.ReconnectMinMS != nil {
			cfg.Minecraft.ReconnectMinMS = *m.ReconnectMinMS
		}
		if m.ReconnectMaxMS != nil {
			cfg.Minecraft.ReconnectMaxMS = *m.ReconnectMaxMS
		}
		if m.PresenceIntervalMS != nil {
			cfg.Minecraft.PresenceIntervalMS = *m.PresenceIntervalMS
		}
		if m.NotifyPlayer != nil {
			cfg.Minecraft.NotifyPlayer = *m.NotifyPlayer
		}
		if m.HealthListen != nil {
			cfg.Minecraft.HealthListen = strings.TrimSpace(*m.HealthListen)
		}
	}

	return warnings, nil
}

func copyLimits(in map[string][2]int) map[string][2]int {
	out := make(map[string][2]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
