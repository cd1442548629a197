package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/blockdelete/blockdelete/internal/fsm"
	"github.com/blockdelete/blockdelete/internal/status"
)

const (
	// DefaultCacheTTL bounds how long Locate reuses a previous answer.
	DefaultCacheTTL = 700 * time.Millisecond
	// DefaultPresenceInterval is how often Watch polls the server.
	DefaultPresenceInterval = 2 * time.Second

	greeting = "[BlockDelete] все успешно работает"
)

var (
	// ErrInvalidName rejects names the server would not accept.
	ErrInvalidName = errors.New("invalid player name")
	// ErrLookup means the server answered but the player could not be located.
	ErrLookup = errors.New("player lookup failed")
)

var (
	namePattern      = regexp.MustCompile(`^[A-Za-z0-9_]{1,16}$`)
	bracketPattern   = regexp.MustCompile(`\[([^\]]+)\]`)
	nbtPosPattern    = regexp.MustCompile(`Pos:\s*\[([^\]]+)\]`)
	floatPattern     = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	dimensionPattern = regexp.MustCompile(`(minecraft:[a-z0-9_./-]+)`)
	nbtDimPattern    = regexp.MustCompile(`Dimension:\s*"(minecraft:[a-z0-9_./-]+)"`)
)

// Commander runs one console command.
type Commander interface {
	Execute(ctx context.Context, command string) (string, error)
}

// ValidateName checks a Minecraft account name.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w %q: only letters, digits and _ (max 16)", ErrInvalidName, name)
	}
	return nil
}

// Locator queries the server for the player's position and dimension and owns the
// resulting Context.
type Locator struct {
	cmd      Commander
	logger   *slog.Logger
	reporter status.Reporter
	now      func() time.Time

	mu       sync.RWMutex
	name     string
	current  Context
	cacheTTL time.Duration
	maxAge   time.Duration
	notify   bool
}

// NewLocator creates a locator for name. reporter and logger may be nil.
func NewLocator(cmd Commander, name string, logger *slog.Logger, reporter status.Reporter) *Locator {
	return &Locator{
		cmd:      cmd,
		logger:   logger,
		reporter: reporter,
		now:      time.Now,
		name:     strings.TrimSpace(name),
		current:  Context{Name: strings.TrimSpace(name)},
		cacheTTL: DefaultCacheTTL,
		maxAge:   5 * time.Second,
		notify:   true,
	}
}

// Name returns the tracked player.
func (l *Locator) Name() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.name
}

// SetName switches the tracked player and forgets the previous position.
func (l *Locator) SetName(name string) {
	name = strings.TrimSpace(name)
	l.mu.Lock()
	if name == l.name {
		l.mu.Unlock()
		return
	}
	l.name = name
	l.current = Context{Name: name}
	l.mu.Unlock()
	l.fire(fsm.EventLost, "player changed to "+name)
}

// SetMaxAge sets the age after which Watch reports the position as stale.
func (l *Locator) SetMaxAge(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxAge = maxAge
}

// SetNotify toggles the private join message.
func (l *Locator) SetNotify(notify bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notify = notify
}

// Current returns a copy of the last known context.
func (l *Locator) Current() Context {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current.clone()
}

// Locate returns the cached context when it is younger than the cache TTL and refreshes it
// otherwise.
func (l *Locator) Locate(ctx context.Context) (Context, error) {
	l.mu.RLock()
	cached := l.current.clone()
	ttl := l.cacheTTL
	l.mu.RUnlock()

	if cached.Fresh(l.now(), ttl) {
		return cached, nil
	}
	return l.Refresh(ctx)
}

// Refresh queries position and dimension. A lookup failure clears the position and reports
// PLAYER unknown; a transport failure keeps the old context and leaves freshness to age it.
func (l *Locator) Refresh(ctx context.Context) (Context, error) {
	name := l.Name()
	if err := ValidateName(name); err != nil {
		l.forget(name, err)
		return l.Current(), err
	}

	pos, err := l.position(ctx, name)
	if err == nil {
		var dim string
		dim, err = l.dimension(ctx, name)
		if err == nil {
			next := Context{Name: name, Position: &pos, Dimension: dim, LastUpdated: l.now()}
			l.mu.Lock()
			if l.name == name {
				l.current = next
			}
			l.mu.Unlock()
			cx, cz := pos.Chunk()
			l.fire(fsm.EventLocate, fmt.Sprintf("%s in %s chunk (%d,%d)", name, dim, cx, cz))
			return next.clone(), nil
		}
	}

	if errors.Is(err, ErrLookup) {
		l.forget(name, err)
	}
	return l.Current(), err
}

func (l *Locator) forget(name string, cause error) {
	l.mu.Lock()
	if l.name == name {
		l.current = Context{Name: name}
	}
	l.mu.Unlock()
	l.fire(fsm.EventLost, cause.Error())
}

// Watch polls presence until ctx ends. The first successful lookup after the player was
// absent sends a private greeting when notifications are enabled.
func (l *Locator) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPresenceInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	online := false
	for {
		_, err := l.Refresh(ctx)
		switch {
		case err == nil:
			if !online {
				online = true
				l.log(slog.LevelInfo, "player joined", "player", l.Name())
				l.greet(ctx)
			}
		case errors.Is(err, ErrLookup) || errors.Is(err, ErrInvalidName):
			if online {
				l.log(slog.LevelInfo, "player left", "player", l.Name())
			}
			online = false
		default:
			if ctx.Err() != nil {
				return nil
			}
			l.log(slog.LevelDebug, "presence check failed", "error", err.Error())
			l.ageIfStale()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (l *Locator) ageIfStale() {
	l.mu.RLock()
	cur := l.current
	maxAge := l.maxAge
	l.mu.RUnlock()
	if cur.Position != nil && !cur.Fresh(l.now(), maxAge) {
		l.fire(fsm.EventAge, "position is stale")
	}
}

func (l *Locator) greet(ctx context.Context) {
	l.mu.RLock()
	notify := l.notify
	l.mu.RUnlock()
	if !notify {
		return
	}
	if err := l.Tell(ctx, greeting); err != nil {
		l.log(slog.LevelWarn, "player notification failed", "error", err.Error())
	}
}

// Tell sends a private chat message to the tracked player.
func (l *Locator) Tell(ctx context.Context, message string) error {
	name := l.Name()
	if err := ValidateName(name); err != nil {
		return err
	}
	message = strings.ReplaceAll(message, "\n", " ")
	_, err := l.cmd.Execute(ctx, "tell "+name+" "+message)
	return err
}

func (l *Locator) position(ctx context.Context, name string) (Position, error) {
	resp, err := l.cmd.Execute(ctx, "data get entity "+name+" Pos")
	if err != nil {
		return Position{}, err
	}
	if pos, ok := ParsePosition(resp); ok {
		return pos, nil
	}
	l.log(slog.LevelDebug, "unparsed Pos response", "response", resp)

	if pos, ok := l.positionByIndex(ctx, name); ok {
		return pos, nil
	}

	full, err := l.cmd.Execute(ctx, "data get entity "+name)
	if err != nil {
		return Position{}, err
	}
	if pos, ok := ParseNBTPosition(full); ok {
		return pos, nil
	}
	return Position{}, fmt.Errorf("%w: cannot parse coordinates for %s: %s", ErrLookup, name, resp)
}

// positionByIndex covers servers that mangle the list form of Pos.
func (l *Locator) positionByIndex(ctx context.Context, name string) (Position, bool) {
	var coords [3]float64
	for i := range coords {
		resp, err := l.cmd.Execute(ctx, fmt.Sprintf("data get entity %s Pos[%d]", name, i))
		if err != nil {
			return Position{}, false
		}
		values := parseFloats(resp)
		if len(values) == 0 {
			return Position{}, false
		}
		coords[i] = values[0]
	}
	return Position{X: coords[0], Y: coords[1], Z: coords[2]}, true
}

func (l *Locator) dimension(ctx context.Context, name string) (string, error) {
	resp, err := l.cmd.Execute(ctx, "data get entity "+name+" Dimension")
	if err != nil {
		return "", err
	}
	if m := dimensionPattern.FindStringSubmatch(resp); m != nil {
		return m[1], nil
	}

	full, err := l.cmd.Execute(ctx, "data get entity "+name)
	if err != nil {
		return "", err
	}
	if m := nbtDimPattern.FindStringSubmatch(full); m != nil {
		return m[1], nil
	}
	return "", fmt.Errorf("%w: cannot parse dimension for %s: %s", ErrLookup, name, resp)
}

// ParsePosition reads the first bracketed coordinate triple, e.g.
// "Steve has the following entity data: [70.3d, 64.0d, 100.9d]".
func ParsePosition(resp string) (Position, bool) {
	m := bracketPattern.FindStringSubmatch(resp)
	if m == nil {
		return Position{}, false
	}
	return triplet(m[1])
}

// ParseNBTPosition reads Pos out of a full entity NBT dump.
func ParseNBTPosition(resp string) (Position, bool) {
	m := nbtPosPattern.FindStringSubmatch(resp)
	if m == nil {
		return Position{}, false
	}
	return triplet(m[1])
}

func triplet(text string) (Position, bool) {
	values := parseFloats(text)
	if len(values) < 3 {
		return Position{}, false
	}
	return Position{X: values[0], Y: values[1], Z: values[2]}, true
}

func parseFloats(text string) []float64 {
	var out []float64
	for _, raw := range floatPattern.FindAllString(text, -1) {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

func (l *Locator) fire(event fsm.Event, detail string) {
	if l.reporter != nil {
		l.reporter.Fire(fsm.MachinePlayer, event, detail)
	}
}

func (l *Locator) log(level slog.Level, msg string, args ...any) {
	if l.logger != nil {
		l.logger.Log(context.Background(), level, msg, args...)
	}
}
