// Package app maps parsed CLI commands onto the daemon, control-socket clients, and doctor.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/blockdelete/blockdelete/internal/cli"
	"github.com/blockdelete/blockdelete/internal/config"
	"github.com/blockdelete/blockdelete/internal/doctor"
	"github.com/blockdelete/blockdelete/internal/ipc"
	"github.com/blockdelete/blockdelete/internal/logging"
	"github.com/blockdelete/blockdelete/internal/recognition"
	"github.com/blockdelete/blockdelete/internal/version"
)

const binaryName = "blockdelete"

// Runner executes one CLI invocation. Zero-value fields fall back to the real system.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
	// Engines loads the speech model; required for run.
	Engines recognition.EngineFactory
	// Sources builds the audio capture for a config; defaults to PulseAudio.
	Sources func(config.Config) recognition.SourceFactory
	// Probes overrides doctor's live checks.
	Probes *doctor.Probes
	// SocketPath overrides $XDG_RUNTIME_DIR/blockdelete.sock.
	SocketPath string
}

// Execute runs args with the given engine factory and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer, engines recognition.EngineFactory) int {
	r := Runner{Stdout: stdout, Stderr: stderr, Engines: engines}
	return r.Execute(ctx, args)
}

// Execute returns 0 on success, 1 on runtime failure, and 2 on usage errors.
func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText(binaryName))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText(binaryName))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		probes := doctor.DefaultProbes()
		if r.Probes != nil {
			probes = *r.Probes
		}
		report := doctor.Run(ctx, cfgLoaded, probes)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandReload:
		return r.forwardOrFail(ctx, ipc.CommandReload)
	case cli.CommandStop:
		return r.forwardOrFail(ctx, ipc.CommandStop)
	case cli.CommandRun:
		return r.commandRun(ctx, parsed, cfgLoaded, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) socketPath() (string, error) {
	if r.SocketPath != "" {
		return r.SocketPath, nil
	}
	return ipc.RuntimeSocketPath()
}

func (r Runner) commandRun(ctx context.Context, parsed cli.Parsed, loaded config.Loaded, logger *slog.Logger) int {
	if r.Engines == nil {
		fmt.Fprintln(r.Stderr, "error: no speech engine available in this build")
		return 1
	}
	sources := r.Sources
	if sources == nil {
		sources = pulseSources
	}

	socketPath, err := r.socketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintln(r.Stderr, "error: blockdelete is already running; use `blockdelete reload` or `blockdelete stop`")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	d := newDaemon(loaded.Config, loaded.Path, parsed.UIMode, r.Engines, sources, r.Stderr, logger)
	if err := d.run(ctx, listener); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("run failed", "error", err.Error())
		return 1
	}
	logger.Info("run finished")
	return 0
}
