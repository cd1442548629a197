// Package status aggregates MIC/REC/RCON/PLAYER state and publishes immutable snapshots.
package status

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blockdelete/blockdelete/internal/fsm"
)

// Snapshot is one immutable view of the pipeline status.
type Snapshot struct {
	Mic        fsm.State
	Rec        fsm.State
	Rcon       fsm.State
	Player     fsm.State
	Restarting bool
	Detail     string
	At         time.Time
}

// Ready reports whether destructive commands may be issued.
func (s Snapshot) Ready() bool {
	return s.Rcon == fsm.RconConnected && s.Player == fsm.PlayerLocated
}

// State returns the sub-state for one machine.
func (s Snapshot) State(m fsm.Machine) fsm.State {
	switch m {
	case fsm.MachineMic:
		return s.Mic
	case fsm.MachineRec:
		return s.Rec
	case fsm.MachineRcon:
		return s.Rcon
	case fsm.MachinePlayer:
		return s.Player
	default:
		return ""
	}
}

func (s Snapshot) String() string {
	out := fmt.Sprintf("mic=%s rec=%s rcon=%s player=%s", s.Mic, s.Rec, s.Rcon, s.Player)
	if s.Restarting {
		out += " restarting"
	}
	return out
}

// Reporter is the producer-side subset of Hub used by pipeline components.
type Reporter interface {
	Fire(fsm.Machine, fsm.Event, string)
}

// Hub owns the latest snapshot and fans transitions out to subscribers.
type Hub struct {
	logger *slog.Logger
	now    func() time.Time

	current atomic.Pointer[Snapshot]

	// mu serializes producers; readers only touch current.
	mu   sync.Mutex
	subs map[int]chan Snapshot
	next int
}

// NewHub creates a hub with every machine in its initial state.
func NewHub(logger *slog.Logger) *Hub {
	h := &Hub{
		logger: logger,
		now:    time.Now,
		subs:   make(map[int]chan Snapshot),
	}
	h.current.Store(&Snapshot{
		Mic:    fsm.Initial(fsm.MachineMic),
		Rec:    fsm.Initial(fsm.MachineRec),
		Rcon:   fsm.Initial(fsm.MachineRcon),
		Player: fsm.Initial(fsm.MachinePlayer),
		At:     h.now(),
	})
	return h
}

// Snapshot returns the latest published snapshot.
func (h *Hub) Snapshot() Snapshot {
	return *h.current.Load()
}

// Fire applies one event to a sub-machine and publishes the result.
// Invalid transitions are logged and leave the snapshot untouched.
func (h *Hub) Fire(m fsm.Machine, event fsm.Event, detail string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev := *h.current.Load()
	next, err := fsm.Transition(m, prev.State(m), event)
	if err != nil {
		if h.logger != nil {
			h.logger.Debug("status transition rejected", "machine", m, "event", event, "error", err.Error())
		}
		return
	}

	snap := prev
	switch m {
	case fsm.MachineMic:
		snap.Mic = next
	case fsm.MachineRec:
		snap.Rec = next
	case fsm.MachineRcon:
		snap.Rcon = next
	case fsm.MachinePlayer:
		snap.Player = next
	}
	if detail != "" {
		snap.Detail = detail
	}
	if snap == prev {
		return
	}
	h.publishLocked(snap)
}

// SetRestarting toggles the restart overlay without touching sub-states.
func (h *Hub) SetRestarting(restarting bool, detail string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := *h.current.Load()
	snap.Restarting = restarting
	if detail != "" {
		snap.Detail = detail
	}
	h.publishLocked(snap)
}

// Note replaces Detail without a state transition.
func (h *Hub) Note(detail string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := *h.current.Load()
	if snap.Detail == detail {
		return
	}
	snap.Detail = detail
	h.publishLocked(snap)
}

// Subscribe returns a channel receiving every published snapshot, starting with the current one.
// Slow subscribers lose older snapshots, never the latest.
func (h *Hub) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	ch := make(chan Snapshot, buffer)
	ch <- *h.current.Load()
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

func (h *Hub) publishLocked(snap Snapshot) {
	snap.At = h.now()
	stored := snap
	h.current.Store(&stored)

	for _, ch := range h.subs {
		Offer(ch, snap)
	}
}

// Offer delivers snap without blocking, evicting the oldest queued value when full.
func Offer(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
