// Package doctor runs readiness diagnostics for config, alias table, model, audio, and RCON.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/blockdelete/blockdelete/internal/alias"
	"github.com/blockdelete/blockdelete/internal/audio"
	"github.com/blockdelete/blockdelete/internal/config"
	"github.com/blockdelete/blockdelete/internal/healthrpc"
	"github.com/blockdelete/blockdelete/internal/player"
	"github.com/blockdelete/blockdelete/internal/rcon"
)

const probeTimeout = 3 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Probes are the live checks that touch the outside world.
type Probes struct {
	SelectDevice func(ctx context.Context, device string) (audio.Selection, error)
	RCON         func(ctx context.Context, cfg rcon.Config) error
	Health       func(ctx context.Context, addr, service string, timeout time.Duration) (healthpb.HealthCheckResponse_ServingStatus, error)
}

// DefaultProbes talks to PulseAudio, the Minecraft server, and a running daemon.
func DefaultProbes() Probes {
	return Probes{
		SelectDevice: audio.SelectDevice,
		RCON:         rcon.Probe,
		Health:       healthrpc.Check,
	}
}

// Run executes every check for a loaded config.
func Run(ctx context.Context, loaded config.Loaded, probes Probes) Report {
	cfg := loaded.Config
	checks := []Check{checkConfig(loaded)}

	checks = append(checks, checkAliases(cfg.Blocks))
	checks = append(checks, checkModel(cfg.Speech.ModelPath))
	checks = append(checks, checkPlayerName(cfg.Microphone.PlayerName))
	if cfg.Microphone.Enabled {
		checks = append(checks, checkAudioSelection(ctx, probes, cfg.Microphone.Device))
	}
	checks = append(checks, checkRCON(ctx, probes, cfg.Minecraft))
	if strings.TrimSpace(cfg.Minecraft.HealthListen) != "" {
		checks = append(checks, checkHealth(ctx, probes, cfg.Minecraft.HealthListen))
	}

	return Report{Checks: checks}
}

func checkConfig(loaded config.Loaded) Check {
	if !loaded.Exists {
		return Check{Name: "config", Pass: true, Message: fmt.Sprintf("%q not found; using defaults", loaded.Path)}
	}
	message := fmt.Sprintf("loaded %q", loaded.Path)
	if n := len(loaded.Warnings); n > 0 {
		message += fmt.Sprintf(" (%d warnings)", n)
	}
	return Check{Name: "config", Pass: true, Message: message}
}

// checkAliases builds the alias table exactly as the pipeline would.
func checkAliases(blocks config.BlocksConfig) Check {
	table, err := alias.Load(alias.Sources{
		LanguageFile:  blocks.File,
		ExtraAliases:  groups(blocks.ExtraAliases),
		SharedAliases: groups(blocks.SharedAliases),
	})
	if err != nil {
		return Check{Name: "blocks", Pass: false, Message: err.Error()}
	}
	if table.Len() == 0 {
		return Check{Name: "blocks", Pass: false, Message: "alias table is empty"}
	}
	return Check{Name: "blocks", Pass: true, Message: fmt.Sprintf("%d phrases for %d blocks", table.Len(), len(table.Blocks()))}
}

func groups(in []config.AliasGroup) []alias.Group {
	out := make([]alias.Group, 0, len(in))
	for _, g := range in {
		out = append(out, alias.Group{Key: g.Key, Values: g.Values})
	}
	return out
}

func checkModel(modelPath string) Check {
	info, err := os.Stat(modelPath)
	if err != nil {
		return Check{Name: "speech.model_path", Pass: false, Message: err.Error()}
	}
	if !info.IsDir() {
		return Check{Name: "speech.model_path", Pass: false, Message: fmt.Sprintf("%s is not a directory", modelPath)}
	}
	entries, err := os.ReadDir(modelPath)
	if err != nil {
		return Check{Name: "speech.model_path", Pass: false, Message: err.Error()}
	}
	if len(entries) == 0 {
		return Check{Name: "speech.model_path", Pass: false, Message: fmt.Sprintf("%s is empty", modelPath)}
	}
	return Check{Name: "speech.model_path", Pass: true, Message: modelPath}
}

func checkPlayerName(name string) Check {
	if strings.TrimSpace(name) == "" {
		return Check{Name: "microphone.player_name", Pass: false, Message: "player_name is empty; commands will be refused"}
	}
	if err := player.ValidateName(name); err != nil {
		return Check{Name: "microphone.player_name", Pass: false, Message: err.Error()}
	}
	return Check{Name: "microphone.player_name", Pass: true, Message: name}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, probes Probes, device string) Check {
	if probes.SelectDevice == nil {
		return Check{Name: "microphone.device", Pass: false, Message: "no audio probe"}
	}
	selection, err := probes.SelectDevice(ctx, device)
	if err != nil {
		return Check{Name: "microphone.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "microphone.device", Pass: true, Message: message}
}

// checkRCON dials and authenticates once.
func checkRCON(ctx context.Context, probes Probes, mc config.MinecraftConfig) Check {
	cfg := rcon.Config{
		Host:           mc.RconHost,
		Port:           mc.RconPort,
		Password:       mc.RconPassword,
		DialTimeout:    probeTimeout,
		CommandTimeout: probeTimeout,
	}
	if probes.RCON == nil {
		return Check{Name: "minecraft.rcon", Pass: false, Message: "no rcon probe"}
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := probes.RCON(probeCtx, cfg); err != nil {
		message := fmt.Sprintf("%s: %v", cfg.Address(), err)
		if errors.Is(err, rcon.ErrAuthFailed) {
			message += " (check rcon.password in server.properties)"
		}
		return Check{Name: "minecraft.rcon", Pass: false, Message: message}
	}
	return Check{Name: "minecraft.rcon", Pass: true, Message: fmt.Sprintf("authenticated at %s", cfg.Address())}
}

// checkHealth passes when a daemon already answers on addr or when addr can be bound.
func checkHealth(ctx context.Context, probes Probes, addr string) Check {
	if probes.Health != nil {
		if state, err := probes.Health(ctx, addr, healthrpc.ServiceOverall, time.Second); err == nil {
			return Check{Name: "minecraft.health_listen", Pass: true, Message: fmt.Sprintf("daemon answering at %s: %s", addr, state)}
		}
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return Check{Name: "minecraft.health_listen", Pass: false, Message: err.Error()}
	}
	_ = lis.Close()
	return Check{Name: "minecraft.health_listen", Pass: true, Message: fmt.Sprintf("%s is free", addr)}
}
