// Package supervisor applies configuration changes to a running pipeline, either live or
// through an ordered restart of its stages.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blockdelete/blockdelete/internal/config"
	"github.com/blockdelete/blockdelete/internal/fsm"
)

// State is the supervisor lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateRunning    State = "running"
	StateApplying   State = "applying"
	StateRestarting State = "restarting"
	StateFailed     State = "failed"
	StateStopped    State = "stopped"
)

// ErrNotRunning is returned by Apply before Start or after Stop.
var ErrNotRunning = errors.New("supervisor is not running")

// Stage is one restartable pipeline component. Stop must drain in-flight work before
// returning unless ctx expires.
type Stage interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Build constructs the restartable stages for cfg, leaves first. Stages start in
// that order and stop in reverse.
type Build func(cfg config.Config) ([]Stage, error)

// LiveApply pushes live-applicable keys of cfg into running components.
type LiveApply func(cfg config.Config, keys []string)

// StatusHub is the part of status.Hub the supervisor drives.
type StatusHub interface {
	Fire(fsm.Machine, fsm.Event, string)
	SetRestarting(restarting bool, detail string)
}

// Outcome describes what one Apply did.
type Outcome struct {
	Live      []string
	Restart   []string
	Restarted bool
}

// Supervisor owns the running stage generation.
type Supervisor struct {
	policy       RestartPolicy
	build        Build
	live         LiveApply
	hub          StatusHub
	logger       *slog.Logger
	drainTimeout time.Duration

	// mu serializes Start, Apply and Stop.
	mu     sync.Mutex
	cfg    config.Config
	parent context.Context
	stages []Stage
	cancel context.CancelFunc

	stateMu sync.Mutex
	state   State
	lastErr error
}

// New creates an idle supervisor. live, hub, and logger may be nil.
func New(cfg config.Config, build Build, live LiveApply, hub StatusHub, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		policy:       DefaultPolicy(),
		build:        build,
		live:         live,
		hub:          hub,
		logger:       logger,
		drainTimeout: 10 * time.Second,
		cfg:          cfg,
		state:        StateIdle,
	}
}

// SetPolicy replaces the key classification. Call before Start.
func (s *Supervisor) SetPolicy(p RestartPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = p
}

// State returns the lifecycle state and the error that caused StateFailed.
func (s *Supervisor) State() (State, error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state, s.lastErr
}

// Config returns the configuration the current generation was built from.
func (s *Supervisor) Config() config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Start builds and starts the first generation. Stage contexts derive from ctx.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, _ := s.State(); state != StateIdle {
		return fmt.Errorf("supervisor already %s", state)
	}
	s.parent = ctx
	if err := s.startGeneration(s.cfg); err != nil {
		s.setState(StateFailed, err)
		return err
	}
	s.setState(StateRunning, nil)
	return nil
}

// Apply moves the pipeline to next. Live-only changes never stop a stage; any
// restart-required key triggers the ordered restart. A failed supervisor always restarts.
func (s *Supervisor) Apply(next config.Config) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, _ := s.State()
	switch state {
	case StateRunning, StateFailed:
	default:
		return Outcome{}, ErrNotRunning
	}

	keys := config.Diff(s.cfg, next)
	live, restart := s.policy.Classify(keys)
	outcome := Outcome{Live: live, Restart: restart}

	if len(restart) == 0 && state == StateRunning {
		if len(live) == 0 {
			return outcome, nil
		}
		s.setState(StateApplying, nil)
		s.applyLive(next, live)
		s.cfg = next
		s.setState(StateRunning, nil)
		return outcome, nil
	}

	reason := "restarting: " + joinKeys(restart)
	if len(restart) == 0 {
		reason = "restarting after failure"
	}
	err := s.restartLocked(next, live, reason)
	outcome.Restarted = err == nil
	return outcome, err
}

// Restart stops and rebuilds the current generation with an unchanged config, for
// recovering stages that failed on their own.
func (s *Supervisor) Restart(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch state, _ := s.State(); state {
	case StateRunning, StateFailed:
	default:
		return ErrNotRunning
	}
	return s.restartLocked(s.cfg, nil, "restarting: "+reason)
}

// restartLocked runs the ordered restart into next, then applies live keys. s.mu is held.
func (s *Supervisor) restartLocked(next config.Config, live []string, reason string) error {
	s.setState(StateRestarting, nil)
	s.log(slog.LevelInfo, "restart required", "reason", reason, "live", live)
	if s.hub != nil {
		s.hub.SetRestarting(true, reason)
	}

	s.stopGeneration()
	s.resetStatus()

	if err := s.startGeneration(next); err != nil {
		s.setState(StateFailed, err)
		if s.hub != nil {
			s.hub.SetRestarting(false, "restart failed: "+err.Error())
		}
		s.log(slog.LevelError, "restart failed", "error", err.Error())
		return err
	}

	s.cfg = next
	if len(live) > 0 {
		s.applyLive(next, live)
	}
	s.setState(StateRunning, nil)
	if s.hub != nil {
		s.hub.SetRestarting(false, "restart complete")
	}
	return nil
}

// Stop stops every stage in reverse order. It is safe to call more than once.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopGeneration()
	s.setState(StateStopped, nil)
}

func (s *Supervisor) startGeneration(cfg config.Config) error {
	stages, err := s.build(cfg)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	parent := s.parent
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	for i, stage := range stages {
		if err := stage.Start(ctx); err != nil {
			s.stopStages(stages[:i])
			cancel()
			return fmt.Errorf("start %s: %w", stage.Name(), err)
		}
		s.log(slog.LevelDebug, "stage started", "stage", stage.Name())
	}

	s.stages = stages
	s.cancel = cancel
	return nil
}

func (s *Supervisor) stopGeneration() {
	if s.stages == nil {
		return
	}
	s.stopStages(s.stages)
	s.cancel()
	s.stages = nil
	s.cancel = nil
}

// stopStages stops in reverse order: adapter first so the matcher and executor drain.
func (s *Supervisor) stopStages(stages []Stage) {
	for i := len(stages) - 1; i >= 0; i-- {
		ctx, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
		if err := stages[i].Stop(ctx); err != nil {
			s.log(slog.LevelWarn, "stage stop failed", "stage", stages[i].Name(), "error", err.Error())
		} else {
			s.log(slog.LevelDebug, "stage stopped", "stage", stages[i].Name())
		}
		cancel()
	}
}

// resetStatus returns every machine to its initial state; invalid resets are ignored by the hub.
func (s *Supervisor) resetStatus() {
	if s.hub == nil {
		return
	}
	s.hub.Fire(fsm.MachineMic, fsm.EventReset, "")
	s.hub.Fire(fsm.MachineRec, fsm.EventReset, "")
	s.hub.Fire(fsm.MachineRcon, fsm.EventReset, "")
	s.hub.Fire(fsm.MachinePlayer, fsm.EventLost, "")
}

func (s *Supervisor) applyLive(cfg config.Config, keys []string) {
	s.log(slog.LevelInfo, "applying live settings", "keys", keys)
	if s.live != nil {
		s.live(cfg, keys)
	}
}

func (s *Supervisor) setState(state State, err error) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = state
	s.lastErr = err
}

func (s *Supervisor) log(level slog.Level, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Log(context.Background(), level, msg, args...)
	}
}
