package frontend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/blockdelete/blockdelete/internal/config"
	"github.com/blockdelete/blockdelete/internal/status"
)

// Log is the headless frontend: one line per distinct snapshot.
type Log struct {
	out      io.Writer
	logger   *slog.Logger
	messages messages
	configs  chan config.Config

	mu   sync.Mutex
	last string
}

// NewLog writes status lines to opts.Out.
func NewLog(opts Options) *Log {
	return &Log{
		out:      opts.Out,
		logger:   opts.Logger,
		messages: messagesFromEnv(),
		configs:  make(chan config.Config),
	}
}

// RenderStatus prints snap unless it reads the same as the previous line.
func (l *Log) RenderStatus(snap status.Snapshot) {
	line := l.format(snap)

	l.mu.Lock()
	defer l.mu.Unlock()
	if line == l.last {
		return
	}
	l.last = line
	stamp := snap.At
	if stamp.IsZero() {
		stamp = time.Now()
	}
	if _, err := fmt.Fprintf(l.out, "%s %s\n", stamp.Format("15:04:05"), line); err != nil {
		logAt(l.logger, slog.LevelDebug, "status line write failed", "error", err.Error())
	}
}

func (l *Log) format(snap status.Snapshot) string {
	parts := append([]string{l.messages.headline(snap)}, l.messages.lines(snap)...)
	line := strings.Join(parts, " | ")
	if detail := strings.TrimSpace(snap.Detail); detail != "" {
		line += " | " + detail
	}
	return line
}

// Configs never sends; the log frontend has no input.
func (l *Log) Configs() <-chan config.Config {
	return l.configs
}

// Run blocks until ctx ends.
func (l *Log) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}
