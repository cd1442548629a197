// Package fsm holds the pure transition tables for the MIC, REC, RCON, and PLAYER sub-states.
package fsm

import "fmt"

type State string

type Event string

// Machine names one of the four independent status sub-machines.
type Machine string

const (
	MachineMic    Machine = "mic"
	MachineRec    Machine = "rec"
	MachineRcon   Machine = "rcon"
	MachinePlayer Machine = "player"
)

const (
	MicIdle      State = "idle"
	MicListening State = "listening"
	MicError     State = "error"
)

const (
	RecIdle    State = "idle"
	RecPartial State = "partial"
	RecFinal   State = "final"
	RecError   State = "error"
)

const (
	RconDisconnected State = "disconnected"
	RconConnecting   State = "connecting"
	RconConnected    State = "connected"
	RconError        State = "error"
)

const (
	PlayerUnknown State = "unknown"
	PlayerLocated State = "located"
	PlayerStale   State = "stale"
)

const (
	EventStart   Event = "start"
	EventFrame   Event = "frame"
	EventStop    Event = "stop"
	EventPartial Event = "partial"
	EventFinal   Event = "final"
	EventSettle  Event = "settle"
	EventDial    Event = "dial"
	EventAuthed  Event = "authed"
	EventOK      Event = "ok"
	EventDrop    Event = "drop"
	EventLocate  Event = "locate"
	EventAge     Event = "age"
	EventLost    Event = "lost"
	EventFail    Event = "fail"
	EventReset   Event = "reset"
)

// Initial returns the starting state of a machine.
func Initial(m Machine) State {
	switch m {
	case MachineMic:
		return MicIdle
	case MachineRec:
		return RecIdle
	case MachineRcon:
		return RconDisconnected
	case MachinePlayer:
		return PlayerUnknown
	default:
		return ""
	}
}

// Transition applies one event to the named machine.
func Transition(m Machine, current State, event Event) (State, error) {
	switch m {
	case MachineMic:
		return micTransition(current, event)
	case MachineRec:
		return recTransition(current, event)
	case MachineRcon:
		return rconTransition(current, event)
	case MachinePlayer:
		return playerTransition(current, event)
	default:
		return current, fmt.Errorf("unknown machine %q", m)
	}
}

func micTransition(current State, event Event) (State, error) {
	if event == EventFail {
		return MicError, nil
	}

	switch current {
	case MicIdle:
		switch event {
		case EventStart:
			return MicListening, nil
		case EventStop:
			return MicIdle, nil
		}
	case MicListening:
		switch event {
		case EventFrame, EventStart:
			return MicListening, nil
		case EventStop:
			return MicIdle, nil
		}
	case MicError:
		// error is terminal until an explicit restart resets it
		if event == EventReset {
			return MicIdle, nil
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
	return current, invalidTransition(MachineMic, current, event)
}

func recTransition(current State, event Event) (State, error) {
	if event == EventFail {
		return RecError, nil
	}

	switch current {
	case RecIdle, RecPartial:
		switch event {
		case EventPartial:
			return RecPartial, nil
		case EventFinal:
			return RecFinal, nil
		case EventSettle, EventStop:
			return RecIdle, nil
		}
	case RecFinal:
		switch event {
		case EventSettle, EventStop:
			return RecIdle, nil
		case EventPartial:
			return RecPartial, nil
		case EventFinal:
			return RecFinal, nil
		}
	case RecError:
		if event == EventReset {
			return RecIdle, nil
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
	return current, invalidTransition(MachineRec, current, event)
}

func rconTransition(current State, event Event) (State, error) {
	switch event {
	case EventFail:
		return RconError, nil
	case EventReset:
		return RconDisconnected, nil
	}

	switch current {
	case RconDisconnected, RconError:
		if event == EventDial {
			return RconConnecting, nil
		}
		if event == EventDrop {
			return current, nil
		}
	case RconConnecting:
		switch event {
		case EventAuthed:
			return RconConnected, nil
		case EventDrop:
			return RconDisconnected, nil
		}
	case RconConnected:
		switch event {
		case EventOK:
			return RconConnected, nil
		case EventDrop:
			return RconDisconnected, nil
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
	return current, invalidTransition(MachineRcon, current, event)
}

func playerTransition(current State, event Event) (State, error) {
	if event == EventLost {
		return PlayerUnknown, nil
	}

	switch current {
	case PlayerUnknown, PlayerLocated, PlayerStale:
		switch event {
		case EventLocate:
			return PlayerLocated, nil
		case EventAge:
			if current == PlayerUnknown {
				return PlayerUnknown, nil
			}
			return PlayerStale, nil
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
	return current, invalidTransition(MachinePlayer, current, event)
}

func invalidTransition(m Machine, state State, event Event) error {
	return fmt.Errorf("invalid %s transition: %s --(%s)--> ?", m, state, event)
}
