package alias

import "github.com/blockdelete/blockdelete/internal/transcript"

// MatchResult is the outcome of resolving one final transcript.
type MatchResult struct {
	SourceText string
	Blocks     []string
	Phrases    []string
	Matched    bool
}

// Matcher resolves transcript text against a Table. It performs no I/O and is safe for
// concurrent use; identical (table, text, threshold) inputs always yield identical results.
type Matcher struct {
	table          *Table
	fuzzyThreshold float64
}

// NewMatcher creates a matcher. A fuzzyThreshold of 0 disables approximate matching;
// positive values are clamped to [0.5, 0.99].
func NewMatcher(table *Table, fuzzyThreshold float64) *Matcher {
	if table == nil {
		table = NewBuilder().Build()
	}
	return &Matcher{table: table, fuzzyThreshold: clampThreshold(fuzzyThreshold)}
}

// Table returns the table the matcher resolves against.
func (m *Matcher) Table() *Table {
	return m.table
}

// FuzzyThreshold returns the effective similarity threshold.
func (m *Matcher) FuzzyThreshold() float64 {
	return m.fuzzyThreshold
}

// Match scans the normalized text left to right. At each word it takes the longest alias
// starting there (ties go to the earliest inserted alias), consumes its words, and continues,
// so matches never overlap. Block sets of all matches are unioned in first-match order.
func (m *Matcher) Match(text string) MatchResult {
	result := MatchResult{SourceText: text}
	normalized := transcript.Normalize(text)
	if normalized == "" || m.table.Len() == 0 {
		return result
	}

	words := transcript.Words(normalized)
	seen := make(map[string]struct{})

	for i := 0; i < len(words); {
		idx, span := m.exactAt(words, i)
		if idx < 0 && m.fuzzyThreshold > 0 {
			idx, span = m.fuzzyAt(words, i)
		}
		if idx < 0 {
			i++
			continue
		}

		entry := m.table.entries[idx]
		result.Phrases = append(result.Phrases, entry.Phrase)
		for _, block := range entry.Blocks {
			if _, ok := seen[block]; ok {
				continue
			}
			seen[block] = struct{}{}
			result.Blocks = append(result.Blocks, block)
		}
		i += span
	}

	result.Matched = len(result.Blocks) > 0
	return result
}

// exactAt returns the longest alias whose words equal words[i:i+n].
func (m *Matcher) exactAt(words []string, i int) (int, int) {
	best, bestWords, bestRunes := -1, 0, 0
	for _, idx := range m.table.byFirst[words[i]] {
		entry := m.table.entries[idx]
		n := len(entry.words)
		if i+n > len(words) || !equalWords(entry.words, words[i:i+n]) {
			continue
		}
		if n > bestWords || (n == bestWords && entry.runes > bestRunes) {
			best, bestWords, bestRunes = idx, n, entry.runes
		}
	}
	return best, bestWords
}

func equalWords(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func clampThreshold(v float64) float64 {
	if v <= 0 {
		return 0
	}
	if v < 0.5 {
		return 0.5
	}
	if v > 0.99 {
		return 0.99
	}
	return v
}
