package alias

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"

	"github.com/iancoleman/orderedmap"
)

const blockKeyPrefix = "block.minecraft."

var blockPathPattern = regexp.MustCompile(`^[a-z0-9_/-]+$`)

// Group is one ordered key with its list of values, as written in config.
type Group struct {
	Key    string
	Values []string
}

// Sources lists where aliases come from, applied in this order.
type Sources struct {
	// LanguageFile is a Minecraft language JSON whose block.minecraft.* keys map to localized names.
	LanguageFile string
	// ExtraAliases maps a block id to additional spoken phrases.
	ExtraAliases []Group
	// SharedAliases maps one phrase to several targets; targets may be glob patterns.
	SharedAliases []Group
}

// Load builds a Table from the configured sources.
func Load(src Sources) (*Table, error) {
	b := NewBuilder()
	known := make([]string, 0, 512)
	knownSet := make(map[string]struct{})
	remember := func(id string) {
		if _, ok := knownSet[id]; ok {
			return
		}
		knownSet[id] = struct{}{}
		known = append(known, id)
	}

	if strings.TrimSpace(src.LanguageFile) != "" {
		entries, err := readLanguageFile(src.LanguageFile)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			remember(e.block)
			for _, name := range e.names {
				b.Add(name, e.block)
			}
		}
	}

	for _, g := range src.ExtraAliases {
		block := NormalizeTarget(g.Key)
		if block == "" {
			continue
		}
		remember(block)
		for _, phrase := range g.Values {
			b.Add(phrase, block)
		}
	}

	for _, g := range src.SharedAliases {
		for _, raw := range g.Values {
			target := NormalizeTarget(raw)
			if target == "" {
				continue
			}
			if !isGlob(target) {
				b.Add(g.Key, target)
				continue
			}
			for _, id := range known {
				if ok, err := path.Match(target, id); err == nil && ok {
					b.Add(g.Key, id)
				}
			}
		}
	}

	return b.Build(), nil
}

type languageEntry struct {
	block string
	names []string
}

func readLanguageFile(file string) ([]languageEntry, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read blocks file %q: %w", file, err)
	}
	entries, err := parseLanguage(data)
	if err != nil {
		return nil, fmt.Errorf("parse blocks file %q: %w", file, err)
	}
	return entries, nil
}

// parseLanguage keeps the file's key order so alias insertion order is reproducible.
func parseLanguage(data []byte) ([]languageEntry, error) {
	doc := orderedmap.New()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, err
	}

	out := make([]languageEntry, 0, len(doc.Keys()))
	for _, key := range doc.Keys() {
		block, ok := BlockIDFromLanguageKey(key)
		if !ok {
			continue
		}
		value, _ := doc.Get(key)
		out = append(out, languageEntry{block: block, names: stringValues(value)})
	}
	return out, nil
}

func stringValues(value any) []string {
	switch v := value.(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	case nil:
		return nil
	default:
		return []string{fmt.Sprint(v)}
	}
}

// BlockIDFromLanguageKey turns "block.minecraft.oak_planks" into "minecraft:oak_planks".
// Nested keys such as "block.minecraft.banner.base.white" are not blocks.
func BlockIDFromLanguageKey(key string) (string, bool) {
	if !strings.HasPrefix(key, blockKeyPrefix) {
		return "", false
	}
	p := key[len(blockKeyPrefix):]
	if p == "" || strings.Contains(p, ".") || !blockPathPattern.MatchString(p) {
		return "", false
	}
	return "minecraft:" + p, true
}

// NormalizeTarget resolves language keys and adds the minecraft namespace to bare ids.
// Glob patterns and already-namespaced ids pass through.
func NormalizeTarget(raw string) string {
	target := strings.TrimSpace(raw)
	if target == "" {
		return ""
	}
	if strings.HasPrefix(target, blockKeyPrefix) {
		if id, ok := BlockIDFromLanguageKey(target); ok {
			return id
		}
		return target
	}
	if !strings.Contains(target, ":") && !isGlob(target) {
		return "minecraft:" + target
	}
	return target
}

func isGlob(s string) bool {
	return strings.ContainsAny(s, "*?[")
}
