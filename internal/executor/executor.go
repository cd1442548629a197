// Package executor turns matched block ids into rate-limited fill commands around the player.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/blockdelete/blockdelete/internal/alias"
	"github.com/blockdelete/blockdelete/internal/player"
	"github.com/blockdelete/blockdelete/internal/status"
)

var (
	// ErrPlayerUnknown drops a request because no fresh player position is known.
	ErrPlayerUnknown = errors.New("player position unknown")
	// ErrNotReady drops a request while RCON is not connected or the player is not located.
	ErrNotReady = errors.New("pipeline not ready")
	// ErrInvalidBlock rejects ids that are not namespaced block ids.
	ErrInvalidBlock = errors.New("invalid block id")
	// ErrEmptyRegion means the vertical range produced no fill commands.
	ErrEmptyRegion = errors.New("empty fill region")
)

// Commander runs one console command.
type Commander interface {
	Execute(ctx context.Context, command string) (string, error)
}

// Players yields the player's current context, refreshing it when needed.
type Players interface {
	Locate(ctx context.Context) (player.Context, error)
}

// Readiness exposes the aggregated status; *status.Hub satisfies it.
type Readiness interface {
	Snapshot() status.Snapshot
}

// Notifier delivers a private message to the player.
type Notifier interface {
	Tell(ctx context.Context, message string) error
}

// Settings are the live-applicable knobs.
type Settings struct {
	FillMaxBlocks int
	YLimits       map[string]YRange
	Interval      time.Duration
	RetryBackoff  time.Duration
	Cooldown      time.Duration
	MaxAge        time.Duration
	Notify        bool
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		FillMaxBlocks: DefaultFillMaxBlocks,
		YLimits:       DefaultYLimits(),
		Interval:      100 * time.Millisecond,
		RetryBackoff:  250 * time.Millisecond,
		Cooldown:      2 * time.Second,
		MaxAge:        5 * time.Second,
	}
}

// BlockResult is the outcome for one block id.
type BlockResult struct {
	Block    string
	Commands int
	Skipped  string
	Err      error
}

// Report summarizes one executed MatchResult.
type Report struct {
	Player    string
	Dimension string
	ChunkX    int
	ChunkZ    int
	Blocks    []BlockResult
}

// Sent returns the number of fill commands that succeeded.
func (r Report) Sent() int {
	n := 0
	for _, b := range r.Blocks {
		n += b.Commands
	}
	return n
}

// Executor issues one command at a time. It never sends a fill without a fresh position.
type Executor struct {
	cmd      Commander
	players  Players
	ready    Readiness
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error

	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter

	// runMu keeps fills strictly sequential across callers.
	runMu sync.Mutex

	mu          sync.Mutex
	settings    Settings
	lastTrigger map[cooldownKey]time.Time
}

type cooldownKey struct {
	player string
	block  string
}

// New creates an executor. ready and notifier may be nil.
func New(settings Settings, cmd Commander, players Players, ready Readiness, notifier Notifier, logger *slog.Logger) *Executor {
	settings = normalizeSettings(settings)
	e := &Executor{
		cmd:         cmd,
		players:     players,
		ready:       ready,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
		sleep:       sleepContext,
		limiter:     rate.NewLimiter(limitFor(settings.Interval), 1),
		settings:    settings,
		lastTrigger: make(map[cooldownKey]time.Time),
	}
	e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "rcon-fill",
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.log(slog.LevelWarn, "circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return e
}

func normalizeSettings(s Settings) Settings {
	if s.FillMaxBlocks <= 0 {
		s.FillMaxBlocks = DefaultFillMaxBlocks
	}
	if len(s.YLimits) == 0 {
		s.YLimits = DefaultYLimits()
	}
	if s.Interval < 0 {
		s.Interval = 0
	}
	if s.RetryBackoff < 0 {
		s.RetryBackoff = 0
	}
	if s.MaxAge <= 0 {
		s.MaxAge = DefaultSettings().MaxAge
	}
	return s
}

func limitFor(interval time.Duration) rate.Limit {
	if interval <= 0 {
		return rate.Inf
	}
	return rate.Every(interval)
}

// Update replaces the live settings without interrupting in-flight work.
func (e *Executor) Update(settings Settings) {
	settings = normalizeSettings(settings)
	e.mu.Lock()
	e.settings = settings
	e.mu.Unlock()
	e.limiter.SetLimit(limitFor(settings.Interval))
}

// SetInterval changes the minimum gap between commands.
func (e *Executor) SetInterval(interval time.Duration) {
	e.mu.Lock()
	e.settings.Interval = interval
	e.mu.Unlock()
	e.limiter.SetLimit(limitFor(interval))
}

// Settings returns the current live settings.
func (e *Executor) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// Execute clears every matched block from the player's current chunk, in match order.
// Per-block failures are reported in the Report and never abort the remaining blocks.
func (e *Executor) Execute(ctx context.Context, match alias.MatchResult) (Report, error) {
	if !match.Matched || len(match.Blocks) == 0 {
		return Report{}, nil
	}

	e.runMu.Lock()
	defer e.runMu.Unlock()

	settings := e.Settings()

	pc, err := e.players.Locate(ctx)
	if err != nil {
		e.log(slog.LevelWarn, "dropping request: player lookup failed", "text", match.SourceText, "error", err.Error())
		return Report{}, fmt.Errorf("%w: %v", ErrPlayerUnknown, err)
	}
	if !pc.Fresh(e.now(), settings.MaxAge) {
		e.log(slog.LevelWarn, "dropping request: no fresh player position", "text", match.SourceText, "player", pc.Name)
		return Report{}, ErrPlayerUnknown
	}
	if e.ready != nil {
		if snap := e.ready.Snapshot(); !snap.Ready() {
			e.log(slog.LevelWarn, "dropping request: pipeline not ready", "text", match.SourceText, "status", snap.String())
			return Report{}, fmt.Errorf("%w: %s", ErrNotReady, snap.String())
		}
	}

	region := ChunkRegion(*pc.Position, pc.Dimension, settings.YLimits, settings.FillMaxBlocks)
	report := Report{Player: pc.Name, Dimension: region.Dimension, ChunkX: region.ChunkX, ChunkZ: region.ChunkZ}

	for _, block := range match.Blocks {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		result := e.clearBlock(ctx, pc.Name, block, region, settings)
		report.Blocks = append(report.Blocks, result)
	}
	return report, nil
}

func (e *Executor) clearBlock(ctx context.Context, playerName, block string, region Region, settings Settings) BlockResult {
	result := BlockResult{Block: block}
	if !ValidBlockID(block) {
		result.Err = fmt.Errorf("%w %q", ErrInvalidBlock, block)
		e.log(slog.LevelWarn, "skipping invalid block id", "block", block)
		return result
	}
	commands := region.Commands(block)
	if len(commands) == 0 {
		result.Err = fmt.Errorf("%w in %s", ErrEmptyRegion, region.Dimension)
		e.log(slog.LevelError, "no fill commands for block", "block", block, "dimension", region.Dimension)
		return result
	}
	if !e.claimCooldown(playerName, block, settings.Cooldown) {
		result.Skipped = "cooldown"
		e.log(slog.LevelDebug, "skipping block on cooldown", "block", block)
		return result
	}

	for _, command := range commands {
		if err := e.send(ctx, command, settings.RetryBackoff); err != nil {
			result.Err = err
			e.log(slog.LevelError, "fill failed", "block", block, "command", command, "error", err.Error())
			return result
		}
		result.Commands++
	}

	e.log(slog.LevelInfo, "block cleared",
		"player", playerName,
		"block", block,
		"dimension", region.Dimension,
		"chunk_x", region.ChunkX,
		"chunk_z", region.ChunkZ,
		"fill_commands", result.Commands,
	)
	if settings.Notify && e.notifier != nil {
		msg := fmt.Sprintf("[BlockDelete] %s удален в чанке (%d, %d)", block, region.ChunkX, region.ChunkZ)
		if err := e.notifier.Tell(ctx, msg); err != nil {
			e.log(slog.LevelWarn, "player notification failed", "error", err.Error())
		}
	}
	return result
}

// send runs command through the limiter and breaker, retrying once after backoff.
func (e *Executor) send(ctx context.Context, command string, backoff time.Duration) error {
	err := e.attempt(ctx, command)
	if err == nil || errors.Is(err, gobreaker.ErrOpenState) || ctx.Err() != nil {
		return err
	}
	e.log(slog.LevelWarn, "retrying command", "command", command, "error", err.Error())
	if serr := e.sleep(ctx, backoff); serr != nil {
		return serr
	}
	return e.attempt(ctx, command)
}

func (e *Executor) attempt(ctx context.Context, command string) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := e.breaker.Execute(func() (interface{}, error) {
		return e.cmd.Execute(ctx, command)
	})
	return err
}

// claimCooldown records a trigger unless the same (player, block) fired within cooldown.
func (e *Executor) claimCooldown(playerName, block string, cooldown time.Duration) bool {
	key := cooldownKey{player: playerName, block: block}
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()
	if prev, ok := e.lastTrigger[key]; ok && cooldown > 0 && now.Sub(prev) < cooldown {
		return false
	}
	e.lastTrigger[key] = now
	return true
}

func (e *Executor) log(level slog.Level, msg string, args ...any) {
	if e.logger != nil {
		e.logger.Log(context.Background(), level, msg, args...)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
