package executor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blockdelete/blockdelete/internal/alias"
	"github.com/blockdelete/blockdelete/internal/fsm"
	"github.com/blockdelete/blockdelete/internal/player"
	"github.com/blockdelete/blockdelete/internal/status"
)

type recordingCommander struct {
	mu       sync.Mutex
	commands []string
	fail     func(call int, command string) error
	calls    int
}

func (r *recordingCommander) Execute(_ context.Context, command string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.fail != nil {
		if err := r.fail(r.calls, command); err != nil {
			return "", err
		}
	}
	r.commands = append(r.commands, command)
	return "Successfully filled", nil
}

func (r *recordingCommander) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commands...)
}

type staticPlayers struct {
	ctx player.Context
	err error
}

func (s staticPlayers) Locate(context.Context) (player.Context, error) {
	return s.ctx, s.err
}

type staticReadiness struct{ snap status.Snapshot }

func (s staticReadiness) Snapshot() status.Snapshot { return s.snap }

type recordingNotifier struct{ messages []string }

func (n *recordingNotifier) Tell(_ context.Context, message string) error {
	n.messages = append(n.messages, message)
	return nil
}

var fixedNow = time.Unix(1_700_000_000, 0)

func locatedAt(x, y, z float64) staticPlayers {
	return staticPlayers{ctx: player.Context{
		Name:        "Steve",
		Position:    &player.Position{X: x, Y: y, Z: z},
		Dimension:   "minecraft:overworld",
		LastUpdated: fixedNow,
	}}
}

func newTestExecutor(settings Settings, cmd Commander, players Players) *Executor {
	e := New(settings, cmd, players, nil, nil, nil)
	e.now = func() time.Time { return fixedNow }
	e.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return e
}

func fastSettings() Settings {
	s := DefaultSettings()
	s.Interval = 0
	s.Cooldown = 0
	return s
}

func TestEndToEndTwoFillsInMatchOrder(t *testing.T) {
	b := alias.NewBuilder()
	b.Add("дубовые доски", "minecraft:oak_planks")
	b.Add("земля", "minecraft:dirt")
	matcher := alias.NewMatcher(b.Build(), 0.7)

	match := matcher.Match("удали дубовые доски и землю")
	require.True(t, match.Matched)

	settings := fastSettings()
	settings.FillMaxBlocks = 16 * 16 * 384
	cmd := &recordingCommander{}
	exec := newTestExecutor(settings, cmd, locatedAt(70.3, 64, 100.9))

	report, err := exec.Execute(context.Background(), match)
	require.NoError(t, err)
	require.Equal(t, 4, report.ChunkX)
	require.Equal(t, 6, report.ChunkZ)
	require.Equal(t, 2, report.Sent())
	require.Equal(t, []string{
		"execute in minecraft:overworld run fill 64 -64 96 79 319 111 air replace minecraft:oak_planks",
		"execute in minecraft:overworld run fill 64 -64 96 79 319 111 air replace minecraft:dirt",
	}, cmd.sent())
}

func TestNeverFillsWithoutFreshPosition(t *testing.T) {
	blocks := []string{"minecraft:dirt", "minecraft:stone", "minecraft:oak_planks", "BAD", "mod:ore", ""}
	rng := rand.New(rand.NewSource(42))

	sources := []staticPlayers{
		{ctx: player.Context{Name: "Steve"}},
		{ctx: player.Context{Name: "Steve", Dimension: "minecraft:overworld", LastUpdated: fixedNow}},
		{ctx: player.Context{
			Name:        "Steve",
			Position:    &player.Position{X: 1, Y: 2, Z: 3},
			LastUpdated: fixedNow.Add(-time.Hour),
		}},
		{err: errors.New("rcon not connected")},
	}

	cmd := &recordingCommander{}
	for i := 0; i < 500; i++ {
		n := rng.Intn(len(blocks) + 1)
		match := alias.MatchResult{SourceText: fmt.Sprintf("utterance %d", i), Matched: rng.Intn(4) != 0}
		for j := 0; j < n; j++ {
			match.Blocks = append(match.Blocks, blocks[rng.Intn(len(blocks))])
		}

		exec := newTestExecutor(fastSettings(), cmd, sources[i%len(sources)])
		report, err := exec.Execute(context.Background(), match)
		if match.Matched && len(match.Blocks) > 0 {
			require.ErrorIs(t, err, ErrPlayerUnknown)
		}
		require.Zero(t, report.Sent())
	}
	require.Empty(t, cmd.sent())
}

func TestRefusesWhileNotReady(t *testing.T) {
	cmd := &recordingCommander{}
	exec := New(fastSettings(), cmd, locatedAt(0, 64, 0), staticReadiness{snap: status.Snapshot{
		Rcon:   fsm.RconDisconnected,
		Player: fsm.PlayerLocated,
	}}, nil, nil)
	exec.now = func() time.Time { return fixedNow }

	_, err := exec.Execute(context.Background(), alias.MatchResult{Blocks: []string{"minecraft:dirt"}, Matched: true})
	require.ErrorIs(t, err, ErrNotReady)
	require.Empty(t, cmd.sent())
}

func TestUnmatchedResultIsNoop(t *testing.T) {
	cmd := &recordingCommander{}
	exec := newTestExecutor(fastSettings(), cmd, staticPlayers{})
	report, err := exec.Execute(context.Background(), alias.MatchResult{SourceText: "привет"})
	require.NoError(t, err)
	require.Zero(t, report.Sent())
}

func TestDefaultSegmentsStayWithinFillLimit(t *testing.T) {
	require.Equal(t, []YRange{{-64, 63}, {64, 191}, {192, 319}}, Segments(-64, 319, DefaultFillMaxBlocks))
	require.Equal(t, []YRange{{0, 127}}, Segments(0, 127, DefaultFillMaxBlocks))
	require.Equal(t, []YRange{{0, 0}, {1, 1}}, Segments(0, 1, 10))

	for _, seg := range Segments(-64, 319, 5000) {
		require.LessOrEqual(t, (seg.Max-seg.Min+1)*256, 5000)
	}
}

func TestChunkRegionUsesDimensionLimits(t *testing.T) {
	r := ChunkRegion(player.Position{X: -0.5, Z: 17}, "minecraft:the_nether", DefaultYLimits(), DefaultFillMaxBlocks)
	require.Equal(t, -16, r.X1)
	require.Equal(t, -1, r.X2)
	require.Equal(t, 16, r.Z1)
	require.Equal(t, 31, r.Z2)
	require.Equal(t, []YRange{{0, 127}}, r.Segments)

	unknown := ChunkRegion(player.Position{}, "custom:void", DefaultYLimits(), DefaultFillMaxBlocks)
	require.Len(t, unknown.Segments, 3)
	require.Equal(t, "custom:void", unknown.Dimension)
}

func TestRetriesOnceThenSucceeds(t *testing.T) {
	cmd := &recordingCommander{fail: func(call int, _ string) error {
		if call == 1 {
			return errors.New("rcon command timed out")
		}
		return nil
	}}
	settings := fastSettings()
	settings.FillMaxBlocks = 16 * 16 * 384
	exec := newTestExecutor(settings, cmd, locatedAt(0, 64, 0))

	report, err := exec.Execute(context.Background(), alias.MatchResult{Blocks: []string{"minecraft:dirt"}, Matched: true})
	require.NoError(t, err)
	require.Equal(t, 1, report.Sent())
	require.NoError(t, report.Blocks[0].Err)
	require.Equal(t, 2, cmd.calls)
}

func TestPersistentFailureReportedAndNextBlockProceeds(t *testing.T) {
	cmd := &recordingCommander{fail: func(_ int, command string) error {
		if command[len(command)-len("minecraft:dirt"):] == "minecraft:dirt" {
			return errors.New("boom")
		}
		return nil
	}}
	settings := fastSettings()
	settings.FillMaxBlocks = 16 * 16 * 384
	exec := newTestExecutor(settings, cmd, locatedAt(0, 64, 0))

	report, err := exec.Execute(context.Background(), alias.MatchResult{
		Blocks:  []string{"minecraft:dirt", "minecraft:stone"},
		Matched: true,
	})
	require.NoError(t, err)
	require.Len(t, report.Blocks, 2)
	require.Error(t, report.Blocks[0].Err)
	require.Zero(t, report.Blocks[0].Commands)
	require.NoError(t, report.Blocks[1].Err)
	require.Equal(t, 1, report.Blocks[1].Commands)
	require.Equal(t, 3, cmd.calls)
}

func TestInvalidBlockSkipped(t *testing.T) {
	cmd := &recordingCommander{}
	settings := fastSettings()
	settings.FillMaxBlocks = 16 * 16 * 384
	exec := newTestExecutor(settings, cmd, locatedAt(0, 64, 0))

	report, err := exec.Execute(context.Background(), alias.MatchResult{
		Blocks:  []string{"minecraft:dirt; op Steve", "OAK", "minecraft:sand"},
		Matched: true,
	})
	require.NoError(t, err)
	require.ErrorIs(t, report.Blocks[0].Err, ErrInvalidBlock)
	require.ErrorIs(t, report.Blocks[1].Err, ErrInvalidBlock)
	require.Len(t, cmd.sent(), 1)
}

func TestCooldownSkipsRepeatedBlock(t *testing.T) {
	cmd := &recordingCommander{}
	settings := fastSettings()
	settings.Cooldown = 2 * time.Second
	settings.FillMaxBlocks = 16 * 16 * 384
	exec := newTestExecutor(settings, cmd, locatedAt(0, 64, 0))
	now := fixedNow
	exec.now = func() time.Time { return now }

	match := alias.MatchResult{Blocks: []string{"minecraft:dirt"}, Matched: true}
	_, err := exec.Execute(context.Background(), match)
	require.NoError(t, err)

	now = now.Add(time.Second)
	report, err := exec.Execute(context.Background(), match)
	require.NoError(t, err)
	require.Equal(t, "cooldown", report.Blocks[0].Skipped)

	now = now.Add(2 * time.Second)
	exec.players = locatedAtTime(now)
	_, err = exec.Execute(context.Background(), match)
	require.NoError(t, err)
	require.Len(t, cmd.sent(), 2)
}

func locatedAtTime(at time.Time) staticPlayers {
	p := locatedAt(0, 64, 0)
	p.ctx.LastUpdated = at
	return p
}

func TestRateLimitSpacesCommands(t *testing.T) {
	cmd := &recordingCommander{}
	settings := fastSettings()
	settings.Interval = 20 * time.Millisecond
	exec := newTestExecutor(settings, cmd, locatedAt(0, 64, 0))

	start := time.Now()
	report, err := exec.Execute(context.Background(), alias.MatchResult{Blocks: []string{"minecraft:dirt"}, Matched: true})
	require.NoError(t, err)
	require.Equal(t, 3, report.Sent())
	require.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)

	exec.SetInterval(0)
	require.Equal(t, time.Duration(0), exec.Settings().Interval)
}

func TestNotifyAfterClear(t *testing.T) {
	cmd := &recordingCommander{}
	notifier := &recordingNotifier{}
	settings := fastSettings()
	settings.Notify = true
	settings.FillMaxBlocks = 16 * 16 * 384
	exec := New(settings, cmd, locatedAt(70.3, 64, 100.9), nil, notifier, nil)
	exec.now = func() time.Time { return fixedNow }

	_, err := exec.Execute(context.Background(), alias.MatchResult{Blocks: []string{"minecraft:dirt"}, Matched: true})
	require.NoError(t, err)
	require.Len(t, notifier.messages, 1)
	require.Contains(t, notifier.messages[0], "minecraft:dirt")
	require.Contains(t, notifier.messages[0], "(4, 6)")
}

func TestInvertedYLimitsReportFailure(t *testing.T) {
	cmd := &recordingCommander{}
	notifier := &recordingNotifier{}
	settings := fastSettings()
	settings.Notify = true
	settings.YLimits = map[string]YRange{"minecraft:overworld": {Min: 319, Max: -64}}
	exec := New(settings, cmd, locatedAt(0, 64, 0), nil, notifier, nil)
	exec.now = func() time.Time { return fixedNow }

	report, err := exec.Execute(context.Background(), alias.MatchResult{Blocks: []string{"minecraft:dirt"}, Matched: true})
	require.NoError(t, err)
	require.Len(t, report.Blocks, 1)
	require.ErrorIs(t, report.Blocks[0].Err, ErrEmptyRegion)
	require.Zero(t, report.Sent())
	require.Empty(t, cmd.sent())
	require.Empty(t, notifier.messages)
}
