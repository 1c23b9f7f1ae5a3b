// Package tokenizer normalises free-text queries into index terms. The
// rules mirror the external indexer exactly: lower-case, strip everything
// outside [a-z0-9] and whitespace, split on whitespace, drop terms shorter
// than three characters. No stop-word removal and no stemming, because the
// indexer applies none.
package tokenizer

import (
	"strings"
	"unicode"
)

const minTokenLen = 3

// Tokenize breaks a raw query into normalised terms. It is pure and
// performs no I/O; empty input yields a nil slice.
func Tokenize(raw string) []string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToLower(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(r)
		}
	}

	var tokens []string
	for _, word := range strings.Fields(b.String()) {
		if len(word) < minTokenLen {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}
