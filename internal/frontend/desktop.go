package frontend

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/blockdelete/blockdelete/internal/config"
	"github.com/blockdelete/blockdelete/internal/fsm"
	"github.com/blockdelete/blockdelete/internal/status"
)

const (
	desktopAppName   = "blockdelete"
	dispatchTimeout  = 400 * time.Millisecond
	readyTimeoutMS   = 5000
	problemTimeoutMS = 15000
)

// Desktop shows status as one replaceable freedesktop notification, or runs ui.notify_cmd
// when configured.
type Desktop struct {
	notifyCmd []string
	logger    *slog.Logger
	messages  messages
	configs   chan config.Config
	pending   chan status.Snapshot

	mu             sync.Mutex
	notificationID uint32
	lastSummary    string
	lastBody       string
}

// NewDesktop creates a desktop notifier.
func NewDesktop(opts Options) *Desktop {
	return &Desktop{
		notifyCmd: append([]string(nil), opts.NotifyCmd.Argv...),
		logger:    opts.Logger,
		messages:  messagesFromEnv(),
		configs:   make(chan config.Config),
		pending:   make(chan status.Snapshot, 1),
	}
}

// RenderStatus queues snap for the Run loop; only the newest queued snapshot is shown.
func (d *Desktop) RenderStatus(snap status.Snapshot) {
	status.Offer(d.pending, snap)
}

// Configs never sends; notifications take no input.
func (d *Desktop) Configs() <-chan config.Config {
	return d.configs
}

// Run dispatches queued snapshots and dismisses the notification on exit.
func (d *Desktop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.run(context.Background(), d.dismiss)
			return nil
		case snap := <-d.pending:
			d.show(ctx, snap)
		}
	}
}

func (d *Desktop) show(ctx context.Context, snap status.Snapshot) {
	summary := d.messages.headline(snap)
	body := d.body(snap)

	d.mu.Lock()
	unchanged := summary == d.lastSummary && body == d.lastBody
	d.lastSummary, d.lastBody = summary, body
	d.mu.Unlock()
	if unchanged {
		return
	}

	timeout := readyTimeoutMS
	if !snap.Ready() || hasError(snap) {
		timeout = problemTimeoutMS
	}
	d.run(ctx, func(ctx context.Context) error {
		if len(d.notifyCmd) > 0 {
			return runNotifyCommand(ctx, d.notifyCmd, summary+": "+strings.ReplaceAll(body, "\n", "; "))
		}
		return d.notifyDesktop(ctx, summary, body, timeout)
	})
}

func (d *Desktop) body(snap status.Snapshot) string {
	lines := d.messages.lines(snap)
	if detail := strings.TrimSpace(snap.Detail); detail != "" {
		lines = append(lines, detail)
	}
	return strings.Join(lines, "\n")
}

// notifyDesktop sends a replaceable desktop notification and stores its ID.
func (d *Desktop) notifyDesktop(ctx context.Context, summary, body string, timeoutMS int) error {
	d.mu.Lock()
	replaceID := d.notificationID
	d.mu.Unlock()

	id, err := desktopNotify(ctx, desktopAppName, replaceID, summary, body, timeoutMS)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.notificationID = id
	d.mu.Unlock()
	return nil
}

// dismiss closes the current desktop notification ID when present.
func (d *Desktop) dismiss(ctx context.Context) error {
	d.mu.Lock()
	id := d.notificationID
	d.notificationID = 0
	d.mu.Unlock()

	if id == 0 {
		return nil
	}
	return desktopDismiss(ctx, id)
}

// run executes one dispatch with a bounded timeout.
func (d *Desktop) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	if err := fn(runCtx); err != nil {
		logAt(d.logger, slog.LevelDebug, "desktop notification failed", "error", err.Error())
	}
}

func hasError(snap status.Snapshot) bool {
	return snap.Mic == fsm.MicError || snap.Rec == fsm.RecError || snap.Rcon == fsm.RconError
}
