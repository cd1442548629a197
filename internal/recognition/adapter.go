// Package recognition adapts a speech engine and an audio source into a stream of
// transcription events.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/blockdelete/blockdelete/internal/fsm"
	"github.com/blockdelete/blockdelete/internal/status"
	"github.com/blockdelete/blockdelete/internal/transcript"
)

var (
	// ErrModelLoad is fatal to pipeline start.
	ErrModelLoad = errors.New("recognition model load failed")
	// ErrRecognitionDevice ends the event stream and requires a restart.
	ErrRecognitionDevice = errors.New("recognition device error")
	// ErrAlreadyStarted guards against double Start.
	ErrAlreadyStarted = errors.New("recognition adapter already started")
)

// Event is one transcription. Partial events are advisory and never trigger commands.
type Event struct {
	Text       string
	Final      bool
	Confidence *float64
}

// Engine is the speech recognizer capability.
type Engine interface {
	FeedAudio(pcm []byte) error
	// NextEvent returns the next pending event, if any, without blocking.
	NextEvent() (Event, bool)
	Close()
}

// EngineFactory loads a model. grammar, when non-empty, restricts the vocabulary.
type EngineFactory func(modelPath string, sampleRate int, grammar []string) (Engine, error)

// Source is a scoped audio capture. Chunks closes when the source stops or fails.
type Source interface {
	Chunks() <-chan []byte
	Stop() error
	Err() error
}

// SourceFactory acquires the capture device.
type SourceFactory func(ctx context.Context) (Source, error)

// Config selects the model and event filtering.
type Config struct {
	ModelPath      string
	SampleRate     int
	Grammar        []string
	MinPhraseChars int
	LogPartials    bool
	LogRecognized  bool
	// Buffer is the event channel capacity.
	Buffer int
}

// Options are the live-applicable filters.
type Options struct {
	MinPhraseChars int
	LogPartials    bool
	LogRecognized  bool
}

// Adapter owns one engine and one source for its lifetime.
type Adapter struct {
	cfg      Config
	engines  EngineFactory
	sources  SourceFactory
	logger   *slog.Logger
	reporter status.Reporter

	mu      sync.Mutex
	opts    Options
	started bool
	engine  Engine
	source  Source
	cancel  context.CancelFunc
	events  chan Event
	done    chan struct{}
	err     error
}

// NewAdapter creates a stopped adapter. logger and reporter may be nil.
func NewAdapter(cfg Config, engines EngineFactory, sources SourceFactory, logger *slog.Logger, reporter status.Reporter) *Adapter {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	return &Adapter{
		cfg:      cfg,
		engines:  engines,
		sources:  sources,
		logger:   logger,
		reporter: reporter,
		opts: Options{
			MinPhraseChars: cfg.MinPhraseChars,
			LogPartials:    cfg.LogPartials,
			LogRecognized:  cfg.LogRecognized,
		},
	}
}

// SetOptions updates event filtering without restarting capture.
func (a *Adapter) SetOptions(opts Options) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.opts = opts
}

func (a *Adapter) options() Options {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opts
}

// Start loads the model, then acquires the audio source, then begins producing events.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.started = true
	a.mu.Unlock()

	engine, err := a.engines(a.cfg.ModelPath, a.cfg.SampleRate, a.cfg.Grammar)
	if err != nil {
		a.fire(fsm.MachineRec, fsm.EventFail, err.Error())
		return fmt.Errorf("%w: %s: %v", ErrModelLoad, a.cfg.ModelPath, err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	source, err := a.sources(workerCtx)
	if err != nil {
		cancel()
		engine.Close()
		a.fire(fsm.MachineMic, fsm.EventFail, err.Error())
		return fmt.Errorf("%w: %v", ErrRecognitionDevice, err)
	}

	a.mu.Lock()
	a.engine = engine
	a.source = source
	a.cancel = cancel
	a.events = make(chan Event, a.cfg.Buffer)
	a.done = make(chan struct{})
	events, done := a.events, a.done
	a.mu.Unlock()

	a.fire(fsm.MachineMic, fsm.EventStart, "")
	go a.run(workerCtx, engine, source, events, done)
	return nil
}

// Events returns the transcription stream. It closes when the adapter stops or fails.
func (a *Adapter) Events() <-chan Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.events
}

// Err returns the failure that ended the stream, if any.
func (a *Adapter) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Stop releases the source and the engine and waits for the worker.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	cancel, source, done := a.cancel, a.source, a.done
	a.mu.Unlock()
	if done == nil {
		return nil
	}

	cancel()
	var stopErr error
	if err := source.Stop(); err != nil {
		stopErr = fmt.Errorf("stop audio source: %w", err)
	}
	<-done
	return stopErr
}

func (a *Adapter) run(ctx context.Context, engine Engine, source Source, events chan<- Event, done chan<- struct{}) {
	defer close(done)
	defer close(events)
	defer engine.Close()

	var st utteranceState
	for {
		var chunk []byte
		var ok bool
		select {
		case <-ctx.Done():
			a.stopped()
			return
		case chunk, ok = <-source.Chunks():
		}
		if !ok {
			if err := source.Err(); err != nil && ctx.Err() == nil {
				a.fail(fsm.MachineMic, fmt.Errorf("%w: %v", ErrRecognitionDevice, err))
				return
			}
			a.stopped()
			return
		}

		a.fire(fsm.MachineMic, fsm.EventFrame, "")
		if err := engine.FeedAudio(chunk); err != nil {
			a.fail(fsm.MachineRec, fmt.Errorf("feed audio: %w", err))
			return
		}
		for {
			ev, ok := engine.NextEvent()
			if !ok {
				break
			}
			if !a.handle(ctx, &st, ev, events) {
				return
			}
		}
	}
}

// utteranceState suppresses repeated partials and duplicate finals.
type utteranceState struct {
	lastPartial string
	lastFinal   string
	sawPartial  bool
}

func (a *Adapter) handle(ctx context.Context, st *utteranceState, ev Event, events chan<- Event) bool {
	ev.Text = strings.TrimSpace(ev.Text)
	opts := a.options()

	if !ev.Final {
		if ev.Text == "" || ev.Text == st.lastPartial {
			return true
		}
		st.lastPartial = ev.Text
		st.sawPartial = true
		a.fire(fsm.MachineRec, fsm.EventPartial, "")
		if opts.LogPartials {
			a.log(slog.LevelInfo, "partial", "text", ev.Text)
		}
		return a.emit(ctx, ev, events)
	}

	hadPartial := st.sawPartial
	st.lastPartial = ""
	st.sawPartial = false

	if ev.Text == "" {
		if hadPartial {
			a.fire(fsm.MachineRec, fsm.EventFinal, "")
			a.fire(fsm.MachineRec, fsm.EventSettle, "")
		}
		return true
	}
	if ev.Text == st.lastFinal && !hadPartial {
		a.log(slog.LevelDebug, "duplicate final suppressed", "text", ev.Text)
		return true
	}
	st.lastFinal = ev.Text

	a.fire(fsm.MachineRec, fsm.EventFinal, ev.Text)
	defer a.fire(fsm.MachineRec, fsm.EventSettle, "")

	if transcript.RuneLen(transcript.Normalize(ev.Text)) < opts.MinPhraseChars {
		a.log(slog.LevelDebug, "final below min_phrase_chars", "text", ev.Text)
		return true
	}
	if opts.LogRecognized {
		a.log(slog.LevelInfo, "recognized", "text", ev.Text)
	}
	return a.emit(ctx, ev, events)
}

// emit blocks until the consumer takes ev so order is preserved.
func (a *Adapter) emit(ctx context.Context, ev Event, events chan<- Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (a *Adapter) stopped() {
	a.fire(fsm.MachineMic, fsm.EventStop, "")
	a.fire(fsm.MachineRec, fsm.EventStop, "")
}

func (a *Adapter) fail(m fsm.Machine, err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
	a.log(slog.LevelError, "recognition stopped", "error", err.Error())
	a.fire(m, fsm.EventFail, err.Error())
}

func (a *Adapter) fire(m fsm.Machine, event fsm.Event, detail string) {
	if a.reporter != nil {
		a.reporter.Fire(m, event, detail)
	}
}

func (a *Adapter) log(level slog.Level, msg string, args ...any) {
	if a.logger != nil {
		a.logger.Log(context.Background(), level, msg, args...)
	}
}
