package frontend

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/require"

	"github.com/blockdelete/blockdelete/internal/config"
	"github.com/blockdelete/blockdelete/internal/fsm"
	"github.com/blockdelete/blockdelete/internal/status"
)

func readySnapshot() status.Snapshot {
	return status.Snapshot{
		Mic:    fsm.MicListening,
		Rec:    fsm.RecIdle,
		Rcon:   fsm.RconConnected,
		Player: fsm.PlayerLocated,
		At:     time.Date(2026, 10, 18, 12, 30, 0, 0, time.UTC),
	}
}

func TestNewRejectsUnknownMode(t *testing.T) {
	_, err := New(Options{Mode: "qt"})
	require.Error(t, err)

	fe, err := New(Options{Mode: " LOG "})
	require.NoError(t, err)
	require.IsType(t, &Log{}, fe)
}

func TestResolveLocale(t *testing.T) {
	require.Equal(t, localeRussian, resolveLocale("ru_RU.UTF-8"))
	require.Equal(t, localeEnglish, resolveLocale("en_US.UTF-8"))
	require.Equal(t, localeEnglish, resolveLocale(""))
}

func TestRussianMessages(t *testing.T) {
	msg := localMessages(localeRussian)
	require.Equal(t, "Готово к удалению блоков", msg.headline(readySnapshot()))
	require.Equal(t, []string{
		"Микрофон: слушает",
		"Распознавание: idle",
		"RCON: подключен",
		"Игрок: найден",
	}, msg.lines(readySnapshot()))

	snap := readySnapshot()
	snap.Restarting = true
	require.Equal(t, "Перезапуск…", msg.headline(snap))
}

func TestLogFrontendSkipsRepeatedLines(t *testing.T) {
	t.Setenv("LANG", "en_US.UTF-8")
	var out bytes.Buffer
	fe := NewLog(Options{Out: &out})

	fe.RenderStatus(readySnapshot())
	fe.RenderStatus(readySnapshot())

	stale := readySnapshot()
	stale.Player = fsm.PlayerStale
	stale.Detail = "position older than 5s"
	fe.RenderStatus(stale)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "12:30:00 Ready to delete blocks | Microphone: listening | Recognition: idle | RCON: connected | Player: located", lines[0])
	require.Equal(t, "12:30:00 Not ready | Microphone: listening | Recognition: idle | RCON: connected | Player: stale | position older than 5s", lines[1])
}

func TestLogFrontendRunReturnsOnCancel(t *testing.T) {
	fe := NewLog(Options{Out: &bytes.Buffer{}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, fe.Run(ctx))
}

func TestDesktopReplacesAndDismissesNotification(t *testing.T) {
	t.Setenv("LANG", "en_US.UTF-8")
	argsFile := filepath.Join(t.TempDir(), "busctl-args.log")
	t.Setenv("BUSCTL_ARGS_FILE", argsFile)
	installStub(t, "busctl", `
printf '%s' "$*" | tr '\n' '|' >> "${BUSCTL_ARGS_FILE}"
echo >> "${BUSCTL_ARGS_FILE}"
if [[ "$*" == *" Notify "* ]]; then
  echo 'u 7'
fi
`)

	fe := NewDesktop(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fe.Run(ctx) }()

	fe.RenderStatus(readySnapshot())
	require.Eventually(t, func() bool { return countLines(argsFile) == 1 }, 2*time.Second, 10*time.Millisecond)

	lost := readySnapshot()
	lost.Rcon = fsm.RconDisconnected
	fe.RenderStatus(lost)
	require.Eventually(t, func() bool { return countLines(argsFile) == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	lines := readLines(t, argsFile)
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "Notify susssasa{sv}i blockdelete 0  Ready to delete blocks")
	require.Contains(t, lines[0], " 5000")
	require.Contains(t, lines[1], "Notify susssasa{sv}i blockdelete 7  Not ready")
	require.Contains(t, lines[1], " 15000")
	require.Contains(t, lines[2], "CloseNotification u 7")
}

func TestDesktopUsesNotifyCommand(t *testing.T) {
	t.Setenv("LANG", "en_US.UTF-8")
	argsFile := filepath.Join(t.TempDir(), "notify-args.log")
	t.Setenv("NOTIFY_ARGS_FILE", argsFile)
	installStub(t, "my-notify", `
printf '%s\n' "$*" >> "${NOTIFY_ARGS_FILE}"
`)

	fe := NewDesktop(Options{NotifyCmd: config.CommandConfig{Raw: "my-notify --urgent", Argv: []string{"my-notify", "--urgent"}}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fe.Run(ctx) }()

	fe.RenderStatus(readySnapshot())
	require.Eventually(t, func() bool { return countLines(argsFile) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	lines := readLines(t, argsFile)
	require.Equal(t, []string{
		"--urgent Ready to delete blocks: Microphone: listening; Recognition: idle; RCON: connected; Player: located",
	}, lines)
}

func TestActionForKeys(t *testing.T) {
	require.Equal(t, actionQuit, actionFor(tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)))
	require.Equal(t, actionQuit, actionFor(tcell.NewEventKey(tcell.KeyRune, 'й', tcell.ModNone)))
	require.Equal(t, actionQuit, actionFor(tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone)))
	require.Equal(t, actionReload, actionFor(tcell.NewEventKey(tcell.KeyRune, 'r', tcell.ModNone)))
	require.Equal(t, actionReload, actionFor(tcell.NewEventKey(tcell.KeyRune, 'к', tcell.ModNone)))
	require.Equal(t, actionNone, actionFor(tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)))
}

func TestTUIReloadsAndQuits(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	reloaded := config.Default()
	reloaded.Microphone.PlayerName = "Steve"

	fe := NewTUI(Options{Reload: func() (config.Config, error) { return reloaded, nil }})
	fe.newScreen = func() (tcell.Screen, error) { return screen, nil }

	done := make(chan error, 1)
	go func() { done <- fe.Run(context.Background()) }()
	<-fe.initialized

	fe.RenderStatus(readySnapshot())
	screen.InjectKey(tcell.KeyRune, 'r', tcell.ModNone)

	select {
	case cfg := <-fe.Configs():
		require.Equal(t, "Steve", cfg.Microphone.PlayerName)
	case <-time.After(2 * time.Second):
		t.Fatal("no config submitted")
	}

	screen.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)
	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrQuit)
	case <-time.After(2 * time.Second):
		t.Fatal("tui did not quit")
	}
}

func TestTUIReloadErrorKeepsRunning(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	fe := NewTUI(Options{Reload: func() (config.Config, error) { return config.Config{}, errors.New("bad config") }})
	fe.newScreen = func() (tcell.Screen, error) { return screen, nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fe.Run(ctx) }()
	<-fe.initialized

	screen.InjectKey(tcell.KeyRune, 'r', tcell.ModNone)
	cancel()
	require.NoError(t, <-done)
	select {
	case <-fe.Configs():
		t.Fatal("failed reload must not submit a config")
	default:
	}
}

func installStub(t *testing.T, name, body string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, name)
	script := "#!/usr/bin/env bash\nset -euo pipefail\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}

func countLines(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	return strings.Count(string(data), "\n")
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}
