package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/blockdelete/blockdelete/internal/alias"
	"github.com/blockdelete/blockdelete/internal/config"
	"github.com/blockdelete/blockdelete/internal/executor"
	"github.com/blockdelete/blockdelete/internal/frontend"
	"github.com/blockdelete/blockdelete/internal/fsm"
	"github.com/blockdelete/blockdelete/internal/ipc"
	"github.com/blockdelete/blockdelete/internal/pipeline"
	"github.com/blockdelete/blockdelete/internal/player"
	"github.com/blockdelete/blockdelete/internal/rcon"
	"github.com/blockdelete/blockdelete/internal/recognition"
	"github.com/blockdelete/blockdelete/internal/status"
	"github.com/blockdelete/blockdelete/internal/supervisor"
)

var errStopRequested = errors.New("stop requested")

// daemon is one `run` invocation: supervisor, frontend, and control socket.
type daemon struct {
	configPath string
	uiOverride string
	engines    recognition.EngineFactory
	sources    func(config.Config) recognition.SourceFactory
	hub        *status.Hub
	health     *healthHost
	out        io.Writer
	logger     *slog.Logger
	sup        *supervisor.Supervisor

	genMu sync.Mutex
	gen   *generation

	// uiChanges carries the newest ui section to the frontend loop.
	uiChanges chan config.UIConfig
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func newDaemon(cfg config.Config, configPath, uiOverride string, engines recognition.EngineFactory, sources func(config.Config) recognition.SourceFactory, out io.Writer, logger *slog.Logger) *daemon {
	d := &daemon{
		configPath: configPath,
		uiOverride: uiOverride,
		engines:    engines,
		sources:    sources,
		hub:        status.NewHub(logger),
		out:        out,
		logger:     logger,
		uiChanges:  make(chan config.UIConfig, 1),
		stopCh:     make(chan struct{}),
	}
	d.health = &healthHost{hub: d.hub, logger: logger}
	d.sup = supervisor.New(d.withOverride(cfg), d.build, d.applyLive, d.hub, logger)
	return d
}

// run blocks until ctx ends, the frontend quits, or a stop request arrives.
func (d *daemon) run(ctx context.Context, listener net.Listener) error {
	defer func() {
		if err := d.health.close(); err != nil {
			d.log(slog.LevelWarn, "health server stop failed", "error", err.Error())
		}
	}()
	if err := d.sup.Start(ctx); err != nil {
		return err
	}
	defer d.sup.Stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return ipc.Serve(groupCtx, listener, d)
	})
	group.Go(func() error {
		return d.runFrontend(groupCtx, d.sup.Config().UI)
	})
	group.Go(func() error {
		select {
		case <-groupCtx.Done():
			return nil
		case <-d.stopCh:
			return errStopRequested
		}
	})

	err := group.Wait()
	if errors.Is(err, errStopRequested) || errors.Is(err, frontend.ErrQuit) {
		return nil
	}
	return err
}

func (d *daemon) requestStop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

func (d *daemon) withOverride(cfg config.Config) config.Config {
	if d.uiOverride != "" {
		cfg.UI.Mode = d.uiOverride
	}
	return cfg
}

// loadConfig re-reads the config file the daemon was started with.
func (d *daemon) loadConfig() (config.Config, error) {
	loaded, err := config.Load(d.configPath)
	if err != nil {
		return config.Config{}, err
	}
	for _, w := range loaded.Warnings {
		d.log(slog.LevelWarn, "config warning", "line", w.Line, "message", w.Message)
	}
	return d.withOverride(loaded.Config), nil
}

// apply hands cfg to the supervisor. With no changes, a component in error is restarted.
func (d *daemon) apply(cfg config.Config) (string, error) {
	outcome, err := d.sup.Apply(cfg)
	if err != nil {
		return "", err
	}
	switch {
	case outcome.Restarted:
		return "restarted: " + strings.Join(outcome.Restart, ", "), nil
	case len(outcome.Live) > 0:
		msg := "applied: " + strings.Join(outcome.Live, ", ")
		d.hub.Note(msg)
		return msg, nil
	}

	snap := d.hub.Snapshot()
	if snap.Mic == fsm.MicError || snap.Rec == fsm.RecError {
		if err := d.sup.Restart("recognition error"); err != nil {
			return "", err
		}
		return "restarted after recognition error", nil
	}
	return "no changes", nil
}

// runFrontend drives the active frontend, rebuilding it when the ui section changes.
func (d *daemon) runFrontend(ctx context.Context, ui config.UIConfig) error {
	snaps, unsubscribe := d.hub.Subscribe(8)
	defer unsubscribe()

	for {
		fe, err := frontend.New(frontend.Options{
			Mode:      ui.Mode,
			NotifyCmd: ui.NotifyCmd,
			Out:       d.out,
			Reload:    d.loadConfig,
			Logger:    d.logger,
		})
		if err != nil {
			return err
		}

		next, err := d.driveFrontend(ctx, fe, snaps)
		if err != nil || next == nil {
			return err
		}
		d.log(slog.LevelInfo, "switching frontend", "mode", next.Mode)
		ui = *next
	}
}

// driveFrontend returns the next ui section on a switch, or (nil, err) when the daemon should end.
func (d *daemon) driveFrontend(ctx context.Context, fe frontend.Frontend, snaps <-chan status.Snapshot) (*config.UIConfig, error) {
	feCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- fe.Run(feCtx) }()

	fe.RenderStatus(d.hub.Snapshot())
	for {
		select {
		case <-ctx.Done():
			<-done
			return nil, nil
		case err := <-done:
			if err == nil && ctx.Err() == nil {
				err = frontend.ErrQuit
			}
			return nil, err
		case snap, ok := <-snaps:
			if !ok {
				return nil, nil
			}
			fe.RenderStatus(snap)
		case cfg := <-fe.Configs():
			if msg, err := d.apply(cfg); err != nil {
				d.log(slog.LevelError, "apply config failed", "error", err.Error())
				d.hub.Note("reload failed: " + err.Error())
			} else {
				d.log(slog.LevelInfo, "config applied", "result", msg)
			}
		case ui := <-d.uiChanges:
			cancel()
			<-done
			return &ui, nil
		}
	}
}

// Handle serves control socket requests.
func (d *daemon) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return d.statusResponse()
	case ipc.CommandReload:
		cfg, err := d.loadConfig()
		if err != nil {
			return ipc.Response{OK: false, Error: err.Error()}
		}
		msg, err := d.apply(cfg)
		if err != nil {
			return ipc.Response{OK: false, Error: err.Error()}
		}
		resp := d.statusResponse()
		resp.Message = msg
		return resp
	case ipc.CommandStop:
		d.requestStop()
		return ipc.Response{OK: true, State: "stopping", Message: "stopping"}
	default:
		return ipc.Response{OK: false, Error: fmt.Sprintf("unknown command %q", req.Command)}
	}
}

func (d *daemon) statusResponse() ipc.Response {
	state, cause := d.sup.State()
	snap := d.hub.Snapshot()
	resp := ipc.Response{
		OK:    true,
		State: string(state),
		Status: &ipc.Status{
			Mic:        string(snap.Mic),
			Rec:        string(snap.Rec),
			Rcon:       string(snap.Rcon),
			Player:     string(snap.Player),
			Restarting: snap.Restarting,
			Detail:     snap.Detail,
		},
	}
	if cause != nil {
		resp.Message = cause.Error()
	}
	return resp
}

// build constructs one generation, leaves first, and moves the health server if its address changed.
func (d *daemon) build(cfg config.Config) ([]supervisor.Stage, error) {
	table, err := alias.Load(aliasSources(cfg.Blocks))
	if err != nil {
		return nil, err
	}
	if table.Len() == 0 {
		return nil, errors.New("alias table is empty; check blocks.file and blocks.extra_aliases")
	}

	client := rcon.NewClient(rconConfig(cfg.Minecraft), d.logger, d.hub)
	locator := player.NewLocator(client, cfg.Microphone.PlayerName, d.logger, d.hub)
	locator.SetMaxAge(millis(cfg.Speech.PositionMaxAgeMS))
	locator.SetNotify(cfg.Minecraft.NotifyPlayer)
	exec := executor.New(executorSettings(cfg), client, locator, d.hub, locator, d.logger)

	gen := &generation{
		table:    table,
		client:   client,
		locator:  locator,
		executor: exec,
		pipeline: pipeline.New(alias.NewMatcher(table, cfg.Speech.FuzzyThreshold), exec, d.hub, d.logger),
		events:   make(chan recognition.Event, eventBuffer),
	}

	if err := d.health.ensure(strings.TrimSpace(cfg.Minecraft.HealthListen)); err != nil {
		return nil, err
	}

	stages := []supervisor.Stage{
		&rconStage{client: client},
		&playerStage{locator: locator, interval: millis(cfg.Minecraft.PresenceIntervalMS)},
		&pipelineStage{gen: gen},
	}
	if cfg.Microphone.Enabled {
		gen.adapter = recognition.NewAdapter(recognitionConfig(cfg, table), d.engines, d.sources(cfg), d.logger, d.hub)
		stages = append(stages, &recognitionStage{gen: gen, logger: d.logger})
	}

	d.log(slog.LevelInfo, "pipeline built", "phrases", table.Len(), "blocks", len(table.Blocks()), "microphone", cfg.Microphone.Enabled)
	d.genMu.Lock()
	d.gen = gen
	d.genMu.Unlock()
	return stages, nil
}

func (d *daemon) generation() *generation {
	d.genMu.Lock()
	defer d.genMu.Unlock()
	return d.gen
}

// applyLive pushes live keys into the running generation.
func (d *daemon) applyLive(cfg config.Config, keys []string) {
	gen := d.generation()
	if gen == nil {
		return
	}

	executorChanged, adapterChanged, uiChanged := false, false, false
	for _, key := range keys {
		switch key {
		case "microphone.player_name":
			gen.locator.SetName(cfg.Microphone.PlayerName)
		case "minecraft.notify_player":
			gen.locator.SetNotify(cfg.Minecraft.NotifyPlayer)
			executorChanged = true
		case "speech.position_max_age_ms":
			gen.locator.SetMaxAge(millis(cfg.Speech.PositionMaxAgeMS))
			executorChanged = true
		case "minecraft.command_interval_ms", "minecraft.fill_max_blocks",
			"minecraft.dimension_y_limits", "speech.cooldown_seconds":
			executorChanged = true
		case "speech.fuzzy_threshold":
			gen.pipeline.SetMatcher(alias.NewMatcher(gen.table, cfg.Speech.FuzzyThreshold))
		case "speech.min_phrase_chars", "speech.log_partials", "speech.log_recognized":
			adapterChanged = true
		case "ui.mode", "ui.notify_cmd":
			uiChanged = true
		}
	}

	if executorChanged {
		gen.executor.Update(executorSettings(cfg))
	}
	if adapterChanged && gen.adapter != nil {
		gen.adapter.SetOptions(recognitionOptions(cfg))
	}
	if uiChanged {
		select {
		case <-d.uiChanges:
		default:
		}
		d.uiChanges <- cfg.UI
	}
}

func (d *daemon) log(level slog.Level, msg string, args ...any) {
	if d.logger != nil {
		d.logger.Log(context.Background(), level, msg, args...)
	}
}
