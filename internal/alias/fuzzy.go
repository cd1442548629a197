package alias

import "strings"

// minFuzzyRunes is the shortest alias eligible for approximate matching.
const minFuzzyRunes = 5

// fuzzyAt looks for an approximate alias starting at words[i]. Longer spans are tried first;
// within a span the most similar alias wins and ties go to the earliest inserted alias.
// Single-word aliases are also compared against two or three adjacent words written
// together, since the recognizer sometimes splits compounds; such a join never swallows the
// start of an exact alias.
func (m *Matcher) fuzzyAt(words []string, i int) (int, int) {
	maxSpan := 0
	for n := range m.table.byWords {
		if n > maxSpan {
			maxSpan = n
		}
	}
	if rest := len(words) - i; maxSpan > rest {
		maxSpan = rest
	}

	for n := maxSpan; n >= 2; n-- {
		if idx := m.bestFuzzy(strings.Join(words[i:i+n], " "), n); idx >= 0 {
			return idx, n
		}
	}

	for n := 3; n >= 2; n-- {
		if i+n > len(words) || m.exactWithin(words, i, n) {
			continue
		}
		if idx := m.bestFuzzy(strings.Join(words[i:i+n], ""), 1); idx >= 0 {
			return idx, n
		}
	}

	if idx := m.bestFuzzy(words[i], 1); idx >= 0 {
		return idx, 1
	}
	return -1, 0
}

// exactWithin reports whether an exact alias starts strictly inside words[i:i+n].
func (m *Matcher) exactWithin(words []string, i, n int) bool {
	for j := i + 1; j < i+n && j < len(words); j++ {
		if idx, _ := m.exactAt(words, j); idx >= 0 {
			return true
		}
	}
	return false
}

func (m *Matcher) bestFuzzy(candidate string, wordCount int) int {
	candidateRunes := []rune(candidate)
	if len(candidateRunes) == 0 {
		return -1
	}

	best, bestScore := -1, 0.0
	for _, idx := range m.table.byWords[wordCount] {
		entry := m.table.entries[idx]
		if entry.runes < minFuzzyRunes {
			continue
		}
		aliasRunes := []rune(entry.Phrase)
		if aliasRunes[0] != candidateRunes[0] || !plausibleLength(len(aliasRunes), len(candidateRunes)) {
			continue
		}
		score := Similarity(entry.Phrase, candidate)
		if score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = idx, score
		}
	}
	return best
}

func plausibleLength(aliasLen, candidateLen int) bool {
	diff := aliasLen - candidateLen
	if diff < 0 {
		diff = -diff
	}
	maxDiff := int(float64(aliasLen) * 0.35)
	if maxDiff < 2 {
		maxDiff = 2
	}
	return diff <= maxDiff
}

// Similarity returns 1 - levenshtein(a, b) / max(len(a), len(b)) measured in runes.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
