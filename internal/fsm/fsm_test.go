package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecUtteranceCycle(t *testing.T) {
	s := Initial(MachineRec)
	require.Equal(t, RecIdle, s)

	next, err := Transition(MachineRec, s, EventPartial)
	require.NoError(t, err)
	require.Equal(t, RecPartial, next)

	next, err = Transition(MachineRec, next, EventFinal)
	require.NoError(t, err)
	require.Equal(t, RecFinal, next)

	next, err = Transition(MachineRec, next, EventSettle)
	require.NoError(t, err)
	require.Equal(t, RecIdle, next)
}

func TestRconReconnectCycle(t *testing.T) {
	s := Initial(MachineRcon)
	steps := []struct {
		event Event
		want  State
	}{
		{EventDial, RconConnecting},
		{EventAuthed, RconConnected},
		{EventOK, RconConnected},
		{EventDrop, RconDisconnected},
		{EventDial, RconConnecting},
		{EventFail, RconError},
		{EventDial, RconConnecting},
		{EventAuthed, RconConnected},
	}
	for _, step := range steps {
		next, err := Transition(MachineRcon, s, step.event)
		require.NoError(t, err, "event %s from %s", step.event, s)
		require.Equal(t, step.want, next)
		s = next
	}
}

func TestFailFromAnyStateGoesError(t *testing.T) {
	for _, state := range []State{MicIdle, MicListening, MicError} {
		next, err := Transition(MachineMic, state, EventFail)
		require.NoError(t, err)
		require.Equal(t, MicError, next)
	}
	for _, state := range []State{RecIdle, RecPartial, RecFinal, RecError} {
		next, err := Transition(MachineRec, state, EventFail)
		require.NoError(t, err)
		require.Equal(t, RecError, next)
	}
}

func TestPlayerStaleAndLost(t *testing.T) {
	next, err := Transition(MachinePlayer, PlayerLocated, EventAge)
	require.NoError(t, err)
	require.Equal(t, PlayerStale, next)

	next, err = Transition(MachinePlayer, next, EventLocate)
	require.NoError(t, err)
	require.Equal(t, PlayerLocated, next)

	next, err = Transition(MachinePlayer, next, EventLost)
	require.NoError(t, err)
	require.Equal(t, PlayerUnknown, next)

	next, err = Transition(MachinePlayer, PlayerUnknown, EventAge)
	require.NoError(t, err)
	require.Equal(t, PlayerUnknown, next)
}

func TestTransitionMatrixInvalidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		machine Machine
		state   State
		event   Event
		want    State
		wantErr bool
	}{
		{name: "mic error needs reset", machine: MachineMic, state: MicError, event: EventStart, want: MicError, wantErr: true},
		{name: "mic error reset valid", machine: MachineMic, state: MicError, event: EventReset, want: MicIdle},
		{name: "mic idle frame invalid", machine: MachineMic, state: MicIdle, event: EventFrame, want: MicIdle, wantErr: true},
		{name: "rec error partial invalid", machine: MachineRec, state: RecError, event: EventPartial, want: RecError, wantErr: true},
		{name: "rcon disconnected authed invalid", machine: MachineRcon, state: RconDisconnected, event: EventAuthed, want: RconDisconnected, wantErr: true},
		{name: "rcon connected dial invalid", machine: MachineRcon, state: RconConnected, event: EventDial, want: RconConnected, wantErr: true},
		{name: "rcon reset valid", machine: MachineRcon, state: RconConnected, event: EventReset, want: RconDisconnected},
		{name: "player frame invalid", machine: MachinePlayer, state: PlayerLocated, event: EventFrame, want: PlayerLocated, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Transition(tc.machine, tc.state, tc.event)
			require.Equal(t, tc.want, next)
			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), "invalid")
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestTransitionUnknownStateAndMachine(t *testing.T) {
	next, err := Transition(MachineMic, State("mystery"), EventStart)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown state")
	require.Equal(t, State("mystery"), next)

	_, err = Transition(Machine("radio"), MicIdle, EventStart)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown machine")
}
