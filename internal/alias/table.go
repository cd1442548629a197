// Package alias maps spoken phrases to block identifiers and resolves transcripts against them.
package alias

import (
	"github.com/blockdelete/blockdelete/internal/transcript"
)

// Entry is one normalized phrase and the ordered set of blocks it names.
type Entry struct {
	Phrase string
	Blocks []string

	words []string
	runes int
}

// Table is an immutable, insertion-ordered alias table.
type Table struct {
	entries []Entry
	byFirst map[string][]int
	byWords map[int][]int
	blocks  []string
}

// Builder accumulates aliases before freezing them into a Table.
// Re-adding a phrase appends new blocks to the existing entry and keeps its original position.
type Builder struct {
	entries []Entry
	index   map[string]int
}

func NewBuilder() *Builder {
	return &Builder{index: make(map[string]int)}
}

// Add registers blocks under phrase. Empty phrases and empty block ids are ignored.
func (b *Builder) Add(phrase string, blocks ...string) {
	normalized := transcript.Normalize(phrase)
	if normalized == "" {
		return
	}

	idx, ok := b.index[normalized]
	if !ok {
		idx = len(b.entries)
		b.index[normalized] = idx
		words := transcript.Words(normalized)
		b.entries = append(b.entries, Entry{
			Phrase: normalized,
			words:  words,
			runes:  transcript.RuneLen(normalized),
		})
	}

	entry := &b.entries[idx]
	for _, block := range blocks {
		if block == "" || contains(entry.Blocks, block) {
			continue
		}
		entry.Blocks = append(entry.Blocks, block)
	}
}

// Build freezes the builder. Entries without blocks are dropped.
func (b *Builder) Build() *Table {
	t := &Table{
		byFirst: make(map[string][]int),
		byWords: make(map[int][]int),
	}
	seenBlocks := make(map[string]struct{})

	for _, entry := range b.entries {
		if len(entry.Blocks) == 0 {
			continue
		}
		e := Entry{
			Phrase: entry.Phrase,
			Blocks: append([]string(nil), entry.Blocks...),
			words:  append([]string(nil), entry.words...),
			runes:  entry.runes,
		}
		idx := len(t.entries)
		t.entries = append(t.entries, e)
		t.byFirst[e.words[0]] = append(t.byFirst[e.words[0]], idx)
		t.byWords[len(e.words)] = append(t.byWords[len(e.words)], idx)

		for _, block := range e.Blocks {
			if _, ok := seenBlocks[block]; ok {
				continue
			}
			seenBlocks[block] = struct{}{}
			t.blocks = append(t.blocks, block)
		}
	}
	return t
}

// Len returns the number of alias phrases.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Entries returns a copy of all entries in insertion order.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = Entry{Phrase: e.Phrase, Blocks: append([]string(nil), e.Blocks...)}
	}
	return out
}

// Phrases returns every alias phrase in insertion order, e.g. for recognizer grammars.
func (t *Table) Phrases() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Phrase
	}
	return out
}

// Blocks returns every distinct block id referenced by the table.
func (t *Table) Blocks() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.blocks...)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
