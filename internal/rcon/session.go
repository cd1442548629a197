package rcon

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"strings"
	"sync"
	"time"
)

// maxConsecutiveTimeouts closes a session whose server stopped answering.
const maxConsecutiveTimeouts = 2

// idAllocator hands out request ids in (0, MaxInt32], wrapping back to 1.
type idAllocator struct {
	last int32
}

func (a *idAllocator) next(inUse func(int32) bool) int32 {
	for {
		if a.last <= 0 || a.last == math.MaxInt32 {
			a.last = 0
		}
		a.last++
		if inUse == nil || !inUse(a.last) {
			return a.last
		}
	}
}

type request struct {
	id       int32
	sentinel int32
	body     strings.Builder
	err      error
	done     chan struct{}
}

// session is one authenticated connection. A reader goroutine owns all reads and routes
// fragments to the single in-flight request by id.
type session struct {
	conn   net.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	ids      idAllocator
	inflight *request
	timeouts int
	err      error

	done      chan struct{}
	closeOnce sync.Once
}

// authenticate performs the login exchange synchronously, before the reader starts.
func authenticate(conn net.Conn, password string, deadline time.Time, ids *idAllocator) error {
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set auth deadline: %w", err)
	}
	defer conn.SetDeadline(time.Time{})

	authID := ids.next(nil)
	if err := WritePacket(conn, Packet{ID: authID, Type: TypeAuth, Body: password}); err != nil {
		return fmt.Errorf("write auth packet: %w", err)
	}

	for {
		p, err := ReadPacket(conn)
		if err != nil {
			return fmt.Errorf("read auth response: %w", err)
		}
		// some servers send an empty response value first
		if p.Type != TypeAuthResponse {
			continue
		}
		if p.ID == -1 {
			return ErrAuthFailed
		}
		if p.ID == authID {
			return nil
		}
	}
}

func newSession(conn net.Conn, ids idAllocator, logger *slog.Logger) *session {
	s := &session{
		conn:   conn,
		logger: logger,
		ids:    ids,
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *session) readLoop() {
	for {
		p, err := ReadPacket(s.conn)
		if err != nil {
			s.close(fmt.Errorf("read packet: %w", err))
			return
		}
		s.dispatch(p)
	}
}

func (s *session) dispatch(p Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req := s.inflight
	switch {
	case req != nil && p.ID == req.id:
		req.body.WriteString(p.Body)
	case req != nil && p.ID == req.sentinel:
		s.inflight = nil
		close(req.done)
	default:
		if s.logger != nil {
			s.logger.Debug("discarding unmatched rcon packet", "id", p.ID, "type", p.Type)
		}
	}
}

func (s *session) inUseLocked(id int32) bool {
	return s.inflight != nil && (s.inflight.id == id || s.inflight.sentinel == id)
}

// execute sends cmd followed by an empty response-value sentinel. The server answers in
// order, so the sentinel's echo marks the end of a fragmented response.
func (s *session) execute(ctx context.Context, cmd string, timeout time.Duration) (string, error) {
	req := &request{done: make(chan struct{})}

	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return "", ErrNotConnected
	}
	req.id = s.ids.next(s.inUseLocked)
	s.inflight = req
	req.sentinel = s.ids.next(s.inUseLocked)
	s.mu.Unlock()

	var frame bytes.Buffer
	frame.Write(Encode(Packet{ID: req.id, Type: TypeExecCommand, Body: cmd}))
	frame.Write(Encode(Packet{ID: req.sentinel, Type: TypeResponseValue}))

	s.writeMu.Lock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
	_, err := s.conn.Write(frame.Bytes())
	s.writeMu.Unlock()
	if err != nil {
		err = fmt.Errorf("write command: %w", err)
		s.close(err)
		return "", err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-req.done:
		if req.err != nil {
			return "", req.err
		}
		s.mu.Lock()
		s.timeouts = 0
		s.mu.Unlock()
		return strings.TrimSpace(req.body.String()), nil
	case <-timer.C:
		if s.abandon(req, true) {
			s.close(fmt.Errorf("%w: %d consecutive", ErrCommandTimeout, maxConsecutiveTimeouts))
		}
		return "", ErrCommandTimeout
	case <-ctx.Done():
		s.abandon(req, false)
		return "", ctx.Err()
	}
}

// abandon drops req so late fragments are discarded, and reports whether the session
// has now timed out too often to be trusted.
func (s *session) abandon(req *request, timedOut bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight == req {
		s.inflight = nil
	}
	if !timedOut {
		return false
	}
	s.timeouts++
	return s.timeouts >= maxConsecutiveTimeouts
}

func (s *session) close(cause error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = cause
		if req := s.inflight; req != nil {
			s.inflight = nil
			req.err = fmt.Errorf("%w: %v", ErrNotConnected, cause)
			close(req.done)
		}
		s.mu.Unlock()
		_ = s.conn.Close()
		close(s.done)
	})
}

func (s *session) cause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
