package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/blockdelete/blockdelete/internal/alias"
	"github.com/blockdelete/blockdelete/internal/executor"
	"github.com/blockdelete/blockdelete/internal/healthrpc"
	"github.com/blockdelete/blockdelete/internal/pipeline"
	"github.com/blockdelete/blockdelete/internal/player"
	"github.com/blockdelete/blockdelete/internal/rcon"
	"github.com/blockdelete/blockdelete/internal/recognition"
	"github.com/blockdelete/blockdelete/internal/status"
)

const (
	eventBuffer       = 64
	healthStopTimeout = 5 * time.Second
)

// generation is one set of components built from a single config.
type generation struct {
	table    *alias.Table
	client   *rcon.Client
	locator  *player.Locator
	executor *executor.Executor
	pipeline *pipeline.Pipeline
	// adapter is nil when the microphone is disabled.
	adapter *recognition.Adapter

	// events carries transcriptions from the adapter into the pipeline. Closing it drains
	// the pipeline.
	events    chan recognition.Event
	closeOnce sync.Once
}

func (g *generation) closeEvents() {
	g.closeOnce.Do(func() { close(g.events) })
}

// worker runs one goroutine for a stage's lifetime.
type worker struct {
	cancel context.CancelFunc
	done   chan error
}

func startWorker(ctx context.Context, fn func(context.Context) error) *worker {
	ctx, cancel := context.WithCancel(ctx)
	w := &worker{cancel: cancel, done: make(chan error, 1)}
	go func() { w.done <- fn(ctx) }()
	return w
}

// wait blocks until the goroutine returns or ctx ends; on ctx end it cancels and still waits.
func (w *worker) wait(ctx context.Context) error {
	select {
	case err := <-w.done:
		w.cancel()
		return err
	case <-ctx.Done():
		w.cancel()
		<-w.done
		return ctx.Err()
	}
}

func (w *worker) stop(ctx context.Context) error {
	w.cancel()
	return w.wait(ctx)
}

// healthHost serves gRPC health for the daemon's lifetime, outside any generation, so a
// restart shows as NOT_SERVING instead of a refused connection.
type healthHost struct {
	hub    *status.Hub
	logger *slog.Logger

	mu   sync.Mutex
	addr string
	w    *worker
}

// ensure serves on addr, moving the listener when addr changed. An empty addr stops serving.
func (h *healthHost) ensure(addr string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if addr == h.addr {
		return nil
	}
	if err := h.stopLocked(); err != nil && h.logger != nil {
		h.logger.Warn("health server stop failed", "error", err.Error())
	}
	if addr == "" {
		return nil
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := healthrpc.New(h.logger)
	snaps, unsubscribe := h.hub.Subscribe(8)
	h.w = startWorker(context.Background(), func(ctx context.Context) error {
		defer unsubscribe()
		return srv.Serve(ctx, lis, snaps)
	})
	h.addr = addr
	return nil
}

func (h *healthHost) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopLocked()
}

func (h *healthHost) stopLocked() error {
	if h.w == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), healthStopTimeout)
	defer cancel()
	err := h.w.stop(ctx)
	h.w = nil
	h.addr = ""
	return err
}

// rconStage owns the connection loop.
type rconStage struct {
	client *rcon.Client
	w      *worker
}

func (s *rconStage) Name() string { return "rcon" }

func (s *rconStage) Start(ctx context.Context) error {
	s.w = startWorker(ctx, s.client.Run)
	return nil
}

func (s *rconStage) Stop(ctx context.Context) error {
	s.w.cancel()
	_ = s.client.Close()
	if err := s.w.wait(ctx); err != nil && !errors.Is(err, rcon.ErrClosed) {
		return err
	}
	return nil
}

// playerStage polls the player's presence.
type playerStage struct {
	locator  *player.Locator
	interval time.Duration
	w        *worker
}

func (s *playerStage) Name() string { return "player" }

func (s *playerStage) Start(ctx context.Context) error {
	s.w = startWorker(ctx, func(ctx context.Context) error {
		return s.locator.Watch(ctx, s.interval)
	})
	return nil
}

func (s *playerStage) Stop(ctx context.Context) error {
	return s.w.stop(ctx)
}

// pipelineStage runs matcher and executor over the generation's event channel.
type pipelineStage struct {
	gen *generation
	w   *worker
}

func (s *pipelineStage) Name() string { return "pipeline" }

func (s *pipelineStage) Start(ctx context.Context) error {
	s.w = startWorker(ctx, func(ctx context.Context) error {
		return s.gen.pipeline.Run(ctx, s.gen.events)
	})
	return nil
}

// Stop closes the event channel and lets queued matches finish unless ctx expires.
func (s *pipelineStage) Stop(ctx context.Context) error {
	s.gen.closeEvents()
	return s.w.wait(ctx)
}

// recognitionStage owns the adapter and forwards its events into the pipeline.
type recognitionStage struct {
	gen    *generation
	logger *slog.Logger
	w      *worker
}

func (s *recognitionStage) Name() string { return "recognition" }

func (s *recognitionStage) Start(ctx context.Context) error {
	adapter := s.gen.adapter
	if err := adapter.Start(ctx); err != nil {
		if !errors.Is(err, recognition.ErrRecognitionDevice) {
			return err
		}
		// MIC is already in error; the rest of the generation keeps serving until a restart.
		if s.logger != nil {
			s.logger.Error("microphone unavailable", "error", err.Error())
		}
		return nil
	}
	events := adapter.Events()
	s.w = startWorker(ctx, func(ctx context.Context) error {
		for ev := range events {
			select {
			case s.gen.events <- ev:
			case <-ctx.Done():
				return nil
			}
		}
		if err := adapter.Err(); err != nil && s.logger != nil {
			s.logger.Error("recognition stopped", "error", err.Error())
		}
		return nil
	})
	return nil
}

func (s *recognitionStage) Stop(ctx context.Context) error {
	stopErr := s.gen.adapter.Stop()
	var waitErr error
	if s.w != nil {
		waitErr = s.w.wait(ctx)
	}
	s.gen.closeEvents()
	return errors.Join(stopErr, waitErr)
}
