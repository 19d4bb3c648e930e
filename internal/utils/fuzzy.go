package utils

import (
	"strings"
	"unicode"

	"github.com/xrash/smetrics"
)

// SimilarityRatio returns a 0-1 closeness measure between two strings based
// on edit distance, comparable to difflib-style sequence ratios. Identical
// strings score 1, completely different strings approach 0.
func SimilarityRatio(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1.0
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0.0
	}
	dist := smetrics.WagnerFischer(a, b, 1, 1, 2)
	ratio := 1.0 - float64(dist)/float64(len(a)+len(b))
	if ratio < 0 {
		return 0.0
	}
	return ratio
}

// ClosestMatch returns the candidate with the highest similarity ratio to
// the term, provided it clears the cutoff. The boolean reports whether any
// candidate qualified.
func ClosestMatch(term string, candidates []string, cutoff float64) (string, bool) {
	best := ""
	bestRatio := 0.0
	for _, c := range candidates {
		if r := SimilarityRatio(term, c); r > bestRatio {
			best = c
			bestRatio = r
		}
	}
	if bestRatio >= cutoff {
		return best, true
	}
	return "", false
}

// ContainsWord reports whether word appears in text on whole-word
// boundaries, so "them" does not match inside "theme".
func ContainsWord(text, word string) bool {
	word = strings.ToLower(word)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
	for _, tok := range tokens {
		if tok == word {
			return true
		}
	}
	return false
}
