package alias

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const languageFixture = `{
  "block.minecraft.oak_planks": "Дубовые доски",
  "block.minecraft.spruce_planks": "Еловые доски",
  "block.minecraft.dirt": ["Земля", "Грунт"],
  "block.minecraft.banner.base.white": "Белое основание",
  "item.minecraft.stick": "Палка",
  "block.minecraft.stone": "Камень"
}`

func writeLanguage(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ru_ru.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadLanguageFileKeepsFileOrder(t *testing.T) {
	table, err := Load(Sources{LanguageFile: writeLanguage(t, languageFixture)})
	require.NoError(t, err)

	require.Equal(t, []string{"дубовые доски", "еловые доски", "земля", "грунт", "камень"}, table.Phrases())
	require.Equal(t, []string{"minecraft:oak_planks", "minecraft:spruce_planks", "minecraft:dirt", "minecraft:stone"}, table.Blocks())
}

func TestLoadExtraAndSharedAliases(t *testing.T) {
	table, err := Load(Sources{
		LanguageFile: writeLanguage(t, languageFixture),
		ExtraAliases: []Group{
			{Key: "dirt", Values: []string{"землю", "  "}},
			{Key: "block.minecraft.stone", Values: []string{"булыжник"}},
		},
		SharedAliases: []Group{
			{Key: "доски", Values: []string{"minecraft:*_planks"}},
			{Key: "всё", Values: []string{"dirt", "minecraft:stone"}},
		},
	})
	require.NoError(t, err)

	m := NewMatcher(table, 0)
	require.Equal(t, []string{"minecraft:dirt"}, m.Match("землю").Blocks)
	require.Equal(t, []string{"minecraft:stone"}, m.Match("булыжник").Blocks)
	require.Equal(t, []string{"minecraft:oak_planks", "minecraft:spruce_planks"}, m.Match("доски").Blocks)
	require.Equal(t, []string{"minecraft:dirt", "minecraft:stone"}, m.Match("все").Blocks)
}

func TestLoadMissingLanguageFile(t *testing.T) {
	_, err := Load(Sources{LanguageFile: filepath.Join(t.TempDir(), "missing.json")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "read blocks file")
}

func TestLoadInvalidLanguageFile(t *testing.T) {
	_, err := Load(Sources{LanguageFile: writeLanguage(t, `["not", "an", "object"]`)})
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse blocks file")
}

func TestLoadWithoutLanguageFile(t *testing.T) {
	table, err := Load(Sources{ExtraAliases: []Group{{Key: "sand", Values: []string{"песок"}}}})
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	require.Equal(t, []string{"minecraft:sand"}, table.Entries()[0].Blocks)
}

func TestBlockIDFromLanguageKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
		ok   bool
	}{
		{key: "block.minecraft.oak_planks", want: "minecraft:oak_planks", ok: true},
		{key: "block.minecraft.", ok: false},
		{key: "block.minecraft.banner.base", ok: false},
		{key: "block.minecraft.Oak", ok: false},
		{key: "item.minecraft.stick", ok: false},
	}
	for _, tc := range tests {
		got, ok := BlockIDFromLanguageKey(tc.key)
		require.Equal(t, tc.ok, ok, tc.key)
		require.Equal(t, tc.want, got, tc.key)
	}
}

func TestNormalizeTarget(t *testing.T) {
	require.Equal(t, "minecraft:dirt", NormalizeTarget(" dirt "))
	require.Equal(t, "minecraft:dirt", NormalizeTarget("block.minecraft.dirt"))
	require.Equal(t, "mod:ore", NormalizeTarget("mod:ore"))
	require.Equal(t, "*_planks", NormalizeTarget("*_planks"))
	require.Equal(t, "", NormalizeTarget("  "))
}
