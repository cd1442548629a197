package app

import (
	"context"
	"fmt"
	"time"

	"github.com/blockdelete/blockdelete/internal/alias"
	"github.com/blockdelete/blockdelete/internal/audio"
	"github.com/blockdelete/blockdelete/internal/config"
	"github.com/blockdelete/blockdelete/internal/executor"
	"github.com/blockdelete/blockdelete/internal/rcon"
	"github.com/blockdelete/blockdelete/internal/recognition"
)

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func aliasSources(blocks config.BlocksConfig) alias.Sources {
	return alias.Sources{
		LanguageFile:  blocks.File,
		ExtraAliases:  aliasGroups(blocks.ExtraAliases),
		SharedAliases: aliasGroups(blocks.SharedAliases),
	}
}

func aliasGroups(in []config.AliasGroup) []alias.Group {
	out := make([]alias.Group, 0, len(in))
	for _, g := range in {
		out = append(out, alias.Group{Key: g.Key, Values: append([]string(nil), g.Values...)})
	}
	return out
}

func rconConfig(mc config.MinecraftConfig) rcon.Config {
	return rcon.Config{
		Host:           mc.RconHost,
		Port:           mc.RconPort,
		Password:       mc.RconPassword,
		CommandTimeout: millis(mc.CommandTimeoutMS),
		ReconnectMin:   millis(mc.ReconnectMinMS),
		ReconnectMax:   millis(mc.ReconnectMaxMS),
	}
}

func executorSettings(cfg config.Config) executor.Settings {
	settings := executor.DefaultSettings()
	settings.FillMaxBlocks = cfg.Minecraft.FillMaxBlocks
	settings.YLimits = yLimits(cfg.Minecraft.DimensionYLimits)
	settings.Interval = millis(cfg.Minecraft.CommandIntervalMS)
	settings.Cooldown = time.Duration(cfg.Speech.CooldownSeconds * float64(time.Second))
	settings.MaxAge = millis(cfg.Speech.PositionMaxAgeMS)
	settings.Notify = cfg.Minecraft.NotifyPlayer
	return settings
}

func yLimits(in map[string][2]int) map[string]executor.YRange {
	if len(in) == 0 {
		return executor.DefaultYLimits()
	}
	out := make(map[string]executor.YRange, len(in))
	for dim, pair := range in {
		out[dim] = executor.YRange{Min: pair[0], Max: pair[1]}
	}
	return out
}

func recognitionConfig(cfg config.Config, table *alias.Table) recognition.Config {
	rc := recognition.Config{
		ModelPath:      cfg.Speech.ModelPath,
		SampleRate:     cfg.Speech.SampleRate,
		MinPhraseChars: cfg.Speech.MinPhraseChars,
		LogPartials:    cfg.Speech.LogPartials,
		LogRecognized:  cfg.Speech.LogRecognized,
		Buffer:         eventBuffer,
	}
	if cfg.Speech.UseGrammar && table != nil {
		rc.Grammar = table.Phrases()
	}
	return rc
}

func recognitionOptions(cfg config.Config) recognition.Options {
	return recognition.Options{
		MinPhraseChars: cfg.Speech.MinPhraseChars,
		LogPartials:    cfg.Speech.LogPartials,
		LogRecognized:  cfg.Speech.LogRecognized,
	}
}

// pulseSources captures from the configured PulseAudio source at the recognizer's rate.
func pulseSources(cfg config.Config) recognition.SourceFactory {
	device := cfg.Microphone.Device
	format := audio.Format{SampleRate: cfg.Speech.SampleRate, Blocksize: cfg.Microphone.Blocksize}
	return func(ctx context.Context) (recognition.Source, error) {
		selection, err := audio.SelectDevice(ctx, device)
		if err != nil {
			return nil, fmt.Errorf("select audio device: %w", err)
		}
		capture, err := audio.StartCapture(ctx, selection.Device, format)
		if err != nil {
			return nil, err
		}
		return capture, nil
	}
}
