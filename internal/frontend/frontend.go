// Package frontend renders status snapshots and hands configuration edits back to the app.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/blockdelete/blockdelete/internal/config"
	"github.com/blockdelete/blockdelete/internal/status"
)

// ErrQuit is returned by Run when the user asked the frontend to exit.
var ErrQuit = errors.New("frontend quit")

// Frontend is the UI capability. RenderStatus never blocks the caller.
type Frontend interface {
	RenderStatus(status.Snapshot)
	// Configs yields configurations the user submitted; it may never send.
	Configs() <-chan config.Config
	// Run drives the frontend until ctx ends or the user quits.
	Run(ctx context.Context) error
}

// ReloadFunc re-reads the configuration from disk.
type ReloadFunc func() (config.Config, error)

// Options are shared by every frontend mode.
type Options struct {
	Mode      string
	NotifyCmd config.CommandConfig
	Out       io.Writer
	Reload    ReloadFunc
	Logger    *slog.Logger
}

// New builds the frontend named by opts.Mode.
func New(opts Options) (Frontend, error) {
	if opts.Out == nil {
		opts.Out = os.Stderr
	}
	switch strings.ToLower(strings.TrimSpace(opts.Mode)) {
	case config.ModeTUI:
		return NewTUI(opts), nil
	case config.ModeDesktop:
		return NewDesktop(opts), nil
	case config.ModeLog:
		return NewLog(opts), nil
	default:
		return nil, fmt.Errorf("unsupported ui mode %q", opts.Mode)
	}
}

func logAt(logger *slog.Logger, level slog.Level, msg string, args ...any) {
	if logger == nil {
		return
	}
	logger.Log(context.Background(), level, msg, args...)
}
