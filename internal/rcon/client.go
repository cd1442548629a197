package rcon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/blockdelete/blockdelete/internal/fsm"
	"github.com/blockdelete/blockdelete/internal/status"
)

var (
	ErrAuthFailed     = errors.New("rcon authentication failed")
	ErrCommandTimeout = errors.New("rcon command timed out")
	ErrNotConnected   = errors.New("rcon not connected")
	ErrClosed         = errors.New("rcon client closed")
	ErrCommandTooLong = errors.New("rcon command too long")
)

// Config holds connection and lifecycle settings for a Client.
type Config struct {
	Host           string
	Port           int
	Password       string
	DialTimeout    time.Duration
	CommandTimeout time.Duration
	ReconnectMin   time.Duration
	ReconnectMax   time.Duration
}

// Address returns host:port.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 3 * time.Second
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 3 * time.Second
	}
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = 500 * time.Millisecond
	}
	if c.ReconnectMax < c.ReconnectMin {
		c.ReconnectMax = c.ReconnectMin
	}
	return c
}

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Client owns the RCON socket. Run maintains the connection; Execute issues commands over
// whatever session is current. At most one command is in flight.
type Client struct {
	cfg      Config
	logger   *slog.Logger
	reporter status.Reporter

	dial dialFunc
	// onBackoff observes every reconnect delay.
	onBackoff func(time.Duration)

	execMu sync.Mutex

	mu   sync.Mutex
	sess *session
	ids  idAllocator

	closed atomic.Bool
}

// NewClient creates a disconnected client. reporter may be nil.
func NewClient(cfg Config, logger *slog.Logger, reporter status.Reporter) *Client {
	cfg = cfg.withDefaults()
	dialer := &net.Dialer{Timeout: cfg.DialTimeout}
	return &Client{
		cfg:      cfg,
		logger:   logger,
		reporter: reporter,
		dial:     dialer.DialContext,
	}
}

// Connected reports whether an authenticated session exists.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil
}

// Execute runs one console command and returns the reassembled response text.
func (c *Client) Execute(ctx context.Context, command string) (string, error) {
	if len(command) > MaxCommandLength {
		return "", fmt.Errorf("%w: %d bytes", ErrCommandTooLong, len(command))
	}
	if c.closed.Load() {
		return "", ErrClosed
	}

	c.execMu.Lock()
	defer c.execMu.Unlock()

	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return "", ErrNotConnected
	}

	resp, err := sess.execute(ctx, command, c.cfg.CommandTimeout)
	if err != nil {
		return "", err
	}
	c.fire(fsm.EventOK, "")
	return resp, nil
}

// Run connects, authenticates and reconnects with exponential backoff until ctx ends.
// Authentication failures are reported as RCON error and retried the same way.
func (c *Client) Run(ctx context.Context) error {
	policy := c.newBackoff()

	for {
		if c.closed.Load() {
			return ErrClosed
		}

		c.fire(fsm.EventDial, c.cfg.Address())
		sess, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.fire(fsm.EventDrop, "")
				return nil
			}
			c.log(slog.LevelWarn, "rcon connect failed", "address", c.cfg.Address(), "error", err.Error())
			if errors.Is(err, ErrAuthFailed) {
				c.fire(fsm.EventFail, err.Error())
			} else {
				c.fire(fsm.EventDrop, err.Error())
			}
			if !c.wait(ctx, policy.NextBackOff()) {
				return nil
			}
			continue
		}

		policy.Reset()
		c.install(sess)
		c.fire(fsm.EventAuthed, c.cfg.Address())
		c.log(slog.LevelInfo, "rcon connected", "address", c.cfg.Address())

		select {
		case <-ctx.Done():
			c.drop(sess, ctx.Err())
			c.fire(fsm.EventDrop, "")
			return nil
		case <-sess.done:
		}

		c.drop(sess, nil)
		cause := sess.cause()
		detail := ""
		if cause != nil {
			detail = cause.Error()
		}
		c.log(slog.LevelWarn, "rcon session closed", "error", detail)
		c.fire(fsm.EventDrop, detail)

		if !c.wait(ctx, policy.NextBackOff()) {
			return nil
		}
	}
}

// Close drops the current session; Run returns at its next iteration.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()
	if sess != nil {
		sess.close(ErrClosed)
	}
	return nil
}

func (c *Client) connect(ctx context.Context) (*session, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	conn, err := c.dial(dialCtx, "tcp", c.cfg.Address())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.Address(), err)
	}

	c.mu.Lock()
	ids := c.ids
	c.mu.Unlock()

	if err := authenticate(conn, c.cfg.Password, time.Now().Add(c.cfg.DialTimeout), &ids); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return newSession(conn, ids, c.logger), nil
}

func (c *Client) install(sess *session) {
	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()
	if c.closed.Load() {
		c.drop(sess, ErrClosed)
	}
}

// drop closes sess and carries its id sequence forward so ids keep increasing across
// reconnects.
func (c *Client) drop(sess *session, cause error) {
	if cause != nil {
		sess.close(cause)
	}
	c.mu.Lock()
	if c.sess == sess {
		c.sess = nil
	}
	sess.mu.Lock()
	c.ids = sess.ids
	sess.mu.Unlock()
	c.mu.Unlock()
}

func (c *Client) newBackoff() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.ReconnectMin
	policy.MaxInterval = c.cfg.ReconnectMax
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0
	policy.Reset()
	return policy
}

func (c *Client) wait(ctx context.Context, delay time.Duration) bool {
	if c.onBackoff != nil {
		c.onBackoff(delay)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return !c.closed.Load()
	}
}

func (c *Client) fire(event fsm.Event, detail string) {
	if c.reporter != nil {
		c.reporter.Fire(fsm.MachineRcon, event, detail)
	}
}

func (c *Client) log(level slog.Level, msg string, args ...any) {
	if c.logger != nil {
		c.logger.Log(context.Background(), level, msg, args...)
	}
}

// Probe dials and authenticates once, then disconnects.
func Probe(ctx context.Context, cfg Config) error {
	client := NewClient(cfg, nil, nil)
	sess, err := client.connect(ctx)
	if err != nil {
		return err
	}
	sess.close(ErrClosed)
	return nil
}
