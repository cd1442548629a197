package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blockdelete/blockdelete/internal/audio"
	"github.com/blockdelete/blockdelete/internal/ipc"
)

const (
	forwardTimeout = 2 * time.Second
	// reloadTimeout covers a full restart: stage drain plus model load.
	reloadTimeout = 90 * time.Second
)

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s %d: id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.Index,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := r.socketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "not running")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.CommandStatus, forwardTimeout)
	if !handled {
		fmt.Fprintln(r.Stdout, "not running")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	r.printStatus(resp)
	return 0
}

func (r Runner) printStatus(resp ipc.Response) {
	fmt.Fprintln(r.Stdout, resp.State)
	if resp.Status != nil {
		fmt.Fprintf(r.Stdout, "mic=%s rec=%s rcon=%s player=%s", resp.Status.Mic, resp.Status.Rec, resp.Status.Rcon, resp.Status.Player)
		if resp.Status.Restarting {
			fmt.Fprint(r.Stdout, " restarting")
		}
		fmt.Fprintln(r.Stdout)
		if resp.Status.Detail != "" {
			fmt.Fprintln(r.Stdout, resp.Status.Detail)
		}
	}
}

func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	socketPath, err := r.socketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	timeout := forwardTimeout
	if command == ipc.CommandReload {
		timeout = reloadTimeout
	}
	resp, handled, err := tryForward(ctx, socketPath, command, timeout)
	if !handled {
		fmt.Fprintln(r.Stderr, "error: blockdelete is not running")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// tryForward sends command to a running daemon. handled is false when none is listening.
func tryForward(ctx context.Context, socketPath, command string, timeout time.Duration) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, ipc.Request{Command: command}, timeout)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}
	if ipc.IsNotRunning(err) {
		return ipc.Response{}, false, nil
	}
	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", command, err)
}
