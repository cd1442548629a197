// Package transcript normalizes recognized speech into the canonical form used for alias lookup.
package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var letterFolds = strings.NewReplacer("ё", "е", "э", "е")

// Normalize lowercases, NFC-normalizes, folds ё/э to е, turns punctuation into
// spaces, and collapses whitespace.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	composed := norm.NFC.String(text)
	lowered := letterFolds.Replace(strings.ToLower(composed))

	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return ' '
	}, lowered)

	return strings.Join(strings.Fields(mapped), " ")
}

// Words splits normalized text into words.
func Words(normalized string) []string {
	return strings.Fields(normalized)
}

// RuneLen counts runes rather than bytes, since Cyrillic letters are two bytes each.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}
