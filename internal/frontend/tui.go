package frontend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gdamore/tcell/v2"

	"github.com/blockdelete/blockdelete/internal/config"
	"github.com/blockdelete/blockdelete/internal/fsm"
	"github.com/blockdelete/blockdelete/internal/status"
)

type keyAction int

const (
	actionNone keyAction = iota
	actionQuit
	actionReload
)

// TUI is the terminal frontend. 'r' re-reads the config file, 'q' quits.
type TUI struct {
	newScreen func() (tcell.Screen, error)
	reload    ReloadFunc
	logger    *slog.Logger
	messages  messages
	configs   chan config.Config
	pending   chan status.Snapshot

	// initialized closes once the screen accepts events.
	initialized chan struct{}
	// note is the last reload outcome; owned by Run.
	note string
}

// NewTUI creates a terminal frontend on the controlling terminal.
func NewTUI(opts Options) *TUI {
	return &TUI{
		newScreen:   tcell.NewScreen,
		reload:      opts.Reload,
		logger:      opts.Logger,
		messages:    messagesFromEnv(),
		configs:     make(chan config.Config, 1),
		pending:     make(chan status.Snapshot, 1),
		initialized: make(chan struct{}),
	}
}

// RenderStatus queues snap for the next redraw.
func (t *TUI) RenderStatus(snap status.Snapshot) {
	status.Offer(t.pending, snap)
}

// Configs yields configurations re-read with the reload key.
func (t *TUI) Configs() <-chan config.Config {
	return t.configs
}

// Run owns the terminal until ctx ends (nil) or the user quits (ErrQuit).
func (t *TUI) Run(ctx context.Context) error {
	screen, err := t.newScreen()
	if err != nil {
		return fmt.Errorf("create terminal screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("init terminal screen: %w", err)
	}
	defer screen.Fini()
	screen.SetStyle(tcell.StyleDefault.
		Background(tcell.ColorReset).
		Foreground(tcell.ColorReset))

	done := make(chan struct{})
	defer close(done)
	events := make(chan tcell.Event, 8)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-done:
				return
			}
		}
	}()
	close(t.initialized)

	var snap status.Snapshot
	have := false
	for {
		t.render(screen, snap, have)
		screen.Show()

		select {
		case <-ctx.Done():
			return nil
		case snap = <-t.pending:
			have = true
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventResize:
				screen.Sync()
			case *tcell.EventKey:
				switch actionFor(ev) {
				case actionQuit:
					return ErrQuit
				case actionReload:
					t.reloadConfig()
				}
			}
		}
	}
}

// actionFor maps a key press; Cyrillic layout keys on the same physical keys count too.
func actionFor(ev *tcell.EventKey) keyAction {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return actionQuit
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q', 'Q', 'й', 'Й':
			return actionQuit
		case 'r', 'R', 'к', 'К':
			return actionReload
		}
	}
	return actionNone
}

func (t *TUI) reloadConfig() {
	if t.reload == nil {
		return
	}
	cfg, err := t.reload()
	if err != nil {
		t.note = err.Error()
		logAt(t.logger, slog.LevelWarn, "config reload failed", "error", err.Error())
		return
	}
	// Keep only the newest submission when the app has not consumed the previous one.
	for {
		select {
		case t.configs <- cfg:
			t.note = t.messages.reloaded
			return
		default:
		}
		select {
		case <-t.configs:
		default:
		}
	}
}

func (t *TUI) render(screen tcell.Screen, snap status.Snapshot, have bool) {
	screen.Clear()
	width, height := screen.Size()

	styleHeader := tcell.StyleDefault.Bold(true).Reverse(true)
	styleHelp := tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleDetail := tcell.StyleDefault.Foreground(tcell.ColorTeal)

	title := " blockdelete"
	if have {
		title += " - " + t.messages.headline(snap)
	}
	drawText(screen, 0, 0, width, styleHeader, title)

	if have {
		for i, machine := range machineOrder {
			state := snap.State(machine)
			label := fmt.Sprintf(" %-14s ", t.messages.machines[machine])
			drawText(screen, 0, 2+i, len([]rune(label)), tcell.StyleDefault.Bold(true), label)
			drawText(screen, len([]rune(label)), 2+i, width, stateStyle(state), t.messages.state(state))
		}
		if detail := strings.TrimSpace(snap.Detail); detail != "" {
			drawText(screen, 1, 7, width-1, styleDetail, detail)
		}
	}
	if t.note != "" {
		drawText(screen, 1, 8, width-1, styleHelp, t.note)
	}
	if height > 0 {
		drawText(screen, 0, height-1, width, styleHelp, " "+t.messages.help)
	}
}

func stateStyle(state fsm.State) tcell.Style {
	switch state {
	case fsm.MicListening, fsm.RconConnected, fsm.PlayerLocated, fsm.RecFinal:
		return tcell.StyleDefault.Foreground(tcell.ColorGreen)
	case fsm.MicError, fsm.PlayerUnknown:
		return tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
	case fsm.RecPartial, fsm.RconConnecting, fsm.PlayerStale:
		return tcell.StyleDefault.Foreground(tcell.ColorYellow)
	default:
		return tcell.StyleDefault
	}
}

// drawText draws text at x,y and pads the rest of maxWidth with spaces.
func drawText(screen tcell.Screen, x, y, maxWidth int, style tcell.Style, text string) {
	col := 0
	for _, r := range text {
		if col >= maxWidth {
			break
		}
		screen.SetContent(x+col, y, r, nil, style)
		col++
	}
	for col < maxWidth {
		screen.SetContent(x+col, y, ' ', nil, style)
		col++
	}
}
