// Package pipeline wires transcription events through the alias matcher into the
// command executor.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/blockdelete/blockdelete/internal/alias"
	"github.com/blockdelete/blockdelete/internal/executor"
	"github.com/blockdelete/blockdelete/internal/recognition"
)

// DefaultMatchBuffer bounds matches waiting for the executor.
const DefaultMatchBuffer = 16

// Matcher resolves a final transcript.
type Matcher interface {
	Match(text string) alias.MatchResult
}

// Executor runs one match against the server.
type Executor interface {
	Execute(ctx context.Context, match alias.MatchResult) (executor.Report, error)
}

// Notes receives human-readable outcome lines for the status Detail field.
type Notes interface {
	Note(detail string)
}

// Pipeline runs two stages: match finals, then execute matches, both in arrival order.
type Pipeline struct {
	logger *slog.Logger
	notes  Notes
	buffer int

	mu      sync.RWMutex
	matcher Matcher
	exec    Executor
}

// New constructs a pipeline. notes and logger may be nil.
func New(matcher Matcher, exec Executor, notes Notes, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger:  logger,
		notes:   notes,
		buffer:  DefaultMatchBuffer,
		matcher: matcher,
		exec:    exec,
	}
}

// SetMatcher swaps the matcher for subsequent finals.
func (p *Pipeline) SetMatcher(m Matcher) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.matcher = m
}

func (p *Pipeline) currentMatcher() Matcher {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.matcher
}

// Run consumes events until the channel closes, then drains queued matches through the
// executor before returning. Cancelling ctx abandons queued work.
func (p *Pipeline) Run(ctx context.Context, events <-chan recognition.Event) error {
	group, groupCtx := errgroup.WithContext(ctx)
	matches := make(chan alias.MatchResult, p.buffer)

	group.Go(func() error {
		defer close(matches)
		return p.matchLoop(groupCtx, events, matches)
	})
	group.Go(func() error {
		return p.executeLoop(groupCtx, matches)
	})

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (p *Pipeline) matchLoop(ctx context.Context, events <-chan recognition.Event, matches chan<- alias.MatchResult) error {
	for {
		var ev recognition.Event
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok = <-events:
		}
		if !ok {
			return nil
		}
		if !ev.Final {
			continue
		}

		result := p.currentMatcher().Match(ev.Text)
		if !result.Matched {
			p.log(slog.LevelDebug, "no alias matched", "text", ev.Text)
			p.note(fmt.Sprintf("no block matched %q", ev.Text))
			continue
		}
		p.log(slog.LevelInfo, "alias matched", "text", ev.Text, "phrases", result.Phrases, "blocks", result.Blocks)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case matches <- result:
		}
	}
}

func (p *Pipeline) executeLoop(ctx context.Context, matches <-chan alias.MatchResult) error {
	for match := range matches {
		report, err := p.exec.Execute(ctx, match)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log(slog.LevelWarn, "request dropped", "text", match.SourceText, "error", err.Error())
			p.note("dropped: " + err.Error())
			continue
		}
		p.report(report)
	}
	return nil
}

func (p *Pipeline) report(report executor.Report) {
	var cleared, failed, skipped []string
	for _, block := range report.Blocks {
		switch {
		case block.Err != nil:
			failed = append(failed, block.Block)
		case block.Skipped != "":
			skipped = append(skipped, block.Block)
		default:
			cleared = append(cleared, block.Block)
		}
	}

	p.log(slog.LevelInfo, "request complete",
		"player", report.Player,
		"dimension", report.Dimension,
		"chunk_x", report.ChunkX,
		"chunk_z", report.ChunkZ,
		"commands", report.Sent(),
		"cleared", cleared,
		"failed", failed,
		"skipped", skipped,
	)

	parts := make([]string, 0, 3)
	if len(cleared) > 0 {
		parts = append(parts, "cleared "+strings.Join(cleared, ", "))
	}
	if len(failed) > 0 {
		parts = append(parts, "failed "+strings.Join(failed, ", "))
	}
	if len(skipped) > 0 {
		parts = append(parts, "skipped "+strings.Join(skipped, ", "))
	}
	if len(parts) > 0 {
		p.note(fmt.Sprintf("chunk %d,%d: %s", report.ChunkX, report.ChunkZ, strings.Join(parts, "; ")))
	}
}

func (p *Pipeline) note(detail string) {
	if p.notes != nil {
		p.notes.Note(detail)
	}
}

func (p *Pipeline) log(level slog.Level, msg string, args ...any) {
	if p.logger != nil {
		p.logger.Log(context.Background(), level, msg, args...)
	}
}
