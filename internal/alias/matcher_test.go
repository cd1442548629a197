package alias

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildTable(pairs ...[2]string) *Table {
	b := NewBuilder()
	for _, p := range pairs {
		b.Add(p[0], p[1])
	}
	return b.Build()
}

func TestLongestMatchWins(t *testing.T) {
	table := buildTable([2]string{"a", "A"}, [2]string{"a b", "AB"})
	m := NewMatcher(table, 0)

	result := m.Match("a b c")
	require.True(t, result.Matched)
	require.Equal(t, []string{"AB"}, result.Blocks)
	require.Equal(t, []string{"a b"}, result.Phrases)
}

func TestLongestMatchIndependentOfInsertionOrder(t *testing.T) {
	table := buildTable([2]string{"a b", "AB"}, [2]string{"a", "A"})
	result := NewMatcher(table, 0).Match("a b c")
	require.Equal(t, []string{"AB"}, result.Blocks)
}

func TestNonOverlappingMatchesUnionInOrder(t *testing.T) {
	table := buildTable(
		[2]string{"камень", "minecraft:stone"},
		[2]string{"дубовые доски", "minecraft:oak_planks"},
		[2]string{"доски", "minecraft:spruce_planks"},
	)
	result := NewMatcher(table, 0).Match("Дубовые доски, камень и доски и камень")
	require.Equal(t, []string{"minecraft:oak_planks", "minecraft:stone", "minecraft:spruce_planks"}, result.Blocks)
	require.Equal(t, []string{"дубовые доски", "камень", "доски", "камень"}, result.Phrases)
}

func TestMatchRequiresWordBoundaries(t *testing.T) {
	table := buildTable([2]string{"лед", "minecraft:ice"})
	result := NewMatcher(table, 0).Match("следующий")
	require.False(t, result.Matched)
	require.Empty(t, result.Blocks)
}

func TestNoMatch(t *testing.T) {
	table := buildTable([2]string{"земля", "minecraft:dirt"})
	result := NewMatcher(table, 0).Match("привет мир")
	require.False(t, result.Matched)
	require.Equal(t, "привет мир", result.SourceText)

	require.False(t, NewMatcher(table, 0).Match("").Matched)
	require.False(t, NewMatcher(nil, 0.7).Match("земля").Matched)
}

func TestOneAliasManyBlocks(t *testing.T) {
	b := NewBuilder()
	b.Add("доски", "minecraft:oak_planks", "minecraft:birch_planks")
	b.Add("Доски", "minecraft:oak_planks", "minecraft:spruce_planks")
	table := b.Build()

	require.Equal(t, 1, table.Len())
	result := NewMatcher(table, 0).Match("доски")
	require.Equal(t, []string{"minecraft:oak_planks", "minecraft:birch_planks", "minecraft:spruce_planks"}, result.Blocks)
}

func TestEndToEndPhrase(t *testing.T) {
	table := buildTable(
		[2]string{"дубовые доски", "OAK_PLANKS"},
		[2]string{"земля", "DIRT"},
	)
	result := NewMatcher(table, 0.7).Match("удали дубовые доски и землю")
	require.True(t, result.Matched)
	require.Equal(t, []string{"OAK_PLANKS", "DIRT"}, result.Blocks)
}

func TestFuzzyDisabledKeepsExactOnly(t *testing.T) {
	table := buildTable([2]string{"земля", "DIRT"})
	require.False(t, NewMatcher(table, 0).Match("землю").Matched)
}

func TestFuzzySkipsShortAliases(t *testing.T) {
	table := buildTable([2]string{"лед", "minecraft:ice"})
	require.False(t, NewMatcher(table, 0.5).Match("лес").Matched)
}

func TestFuzzyJoinsSplitCompound(t *testing.T) {
	table := buildTable([2]string{"песчаник", "minecraft:sandstone"})
	result := NewMatcher(table, 0.8).Match("песча ник")
	require.Equal(t, []string{"minecraft:sandstone"}, result.Blocks)
}

func TestFuzzyDoesNotSwallowExactMatch(t *testing.T) {
	table := buildTable(
		[2]string{"каменный кирпич", "minecraft:stone_bricks"},
		[2]string{"кирпич", "minecraft:bricks"},
	)
	result := NewMatcher(table, 0.6).Match("каменные кирпич")
	require.Contains(t, result.Blocks, "minecraft:stone_bricks")
}

func TestThresholdClamp(t *testing.T) {
	require.Equal(t, 0.0, NewMatcher(nil, -1).FuzzyThreshold())
	require.Equal(t, 0.5, NewMatcher(nil, 0.1).FuzzyThreshold())
	require.Equal(t, 0.99, NewMatcher(nil, 1.5).FuzzyThreshold())
	require.Equal(t, 0.7, NewMatcher(nil, 0.7).FuzzyThreshold())
}

func TestSimilarity(t *testing.T) {
	require.Equal(t, 1.0, Similarity("", ""))
	require.Equal(t, 1.0, Similarity("земля", "земля"))
	require.InDelta(t, 0.8, Similarity("земля", "землю"), 1e-9)
	require.Equal(t, 0.0, Similarity("abc", ""))
}

func TestMatchDeterministicAcrossCallOrder(t *testing.T) {
	table := buildTable(
		[2]string{"дубовые доски", "minecraft:oak_planks"},
		[2]string{"доски", "minecraft:spruce_planks"},
		[2]string{"земля", "minecraft:dirt"},
		[2]string{"каменный кирпич", "minecraft:stone_bricks"},
		[2]string{"камень", "minecraft:stone"},
	)
	vocabulary := []string{"удали", "дубовые", "доски", "и", "землю", "земля", "камень", "каменный", "кирпич", "шум"}

	rng := rand.New(rand.NewSource(7))
	inputs := make([]string, 200)
	for i := range inputs {
		n := 1 + rng.Intn(6)
		text := ""
		for w := 0; w < n; w++ {
			text += vocabulary[rng.Intn(len(vocabulary))] + " "
		}
		inputs[i] = text
	}

	first := NewMatcher(table, 0.7)
	want := make(map[string]MatchResult, len(inputs))
	for _, in := range inputs {
		want[in] = first.Match(in)
	}

	second := NewMatcher(table, 0.7)
	rng.Shuffle(len(inputs), func(i, j int) { inputs[i], inputs[j] = inputs[j], inputs[i] })
	for _, in := range inputs {
		require.Equal(t, want[in], second.Match(in), fmt.Sprintf("input %q", in))
	}
}
