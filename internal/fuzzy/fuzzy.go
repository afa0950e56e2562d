// Package fuzzy scores how alike two strings are.
package fuzzy

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Similarity returns a score in [0, 1] for the case-insensitive likeness of
// a and b, from the ratio of matching subsequences. It is symmetric and
// Similarity(a, a) == 1.
func Similarity(a, b string) float64 {
	ra := runes(a)
	rb := runes(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	forward := difflib.NewMatcher(ra, rb).Ratio()
	backward := difflib.NewMatcher(rb, ra).Ratio()
	if backward > forward {
		return backward
	}
	return forward
}

// runes splits a lower-cased string into one-rune elements for the matcher.
func runes(s string) []string {
	s = strings.ToLower(s)
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// Tokens lower-cases s and splits it on whitespace.
func Tokens(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

// ContainsAllTokens reports whether every token of name occurs in text, case-insensitively.
func ContainsAllTokens(text, name string) bool {
	tokens := Tokens(name)
	if len(tokens) == 0 {
		return false
	}
	text = strings.ToLower(text)
	for _, tok := range tokens {
		if !strings.Contains(text, tok) {
			return false
		}
	}
	return true
}
