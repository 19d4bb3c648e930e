package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarityRatio(t *testing.T) {
	assert.Equal(t, 1.0, SimilarityRatio("Sydney", "sydney"))
	assert.Equal(t, 0.0, SimilarityRatio("", "perth"))

	// One substitution in a six-letter word stays well above the 0.7 city
	// cutoff; an unrelated word falls well below it.
	assert.Greater(t, SimilarityRatio("sydnee", "sydney"), 0.7)
	assert.Less(t, SimilarityRatio("atlantis", "sydney"), 0.7)
}

func TestClosestMatch(t *testing.T) {
	cities := []string{"sydney", "melbourne", "perth", "brisbane"}

	tests := []struct {
		name      string
		term      string
		wantCity  string
		wantFound bool
	}{
		{name: "typo", term: "sydny", wantCity: "sydney", wantFound: true},
		{name: "exact", term: "perth", wantCity: "perth", wantFound: true},
		{name: "unknown", term: "atlantis", wantFound: false},
		{name: "empty", term: "", wantFound: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := ClosestMatch(tt.term, cities, 0.7)
			assert.Equal(t, tt.wantFound, found)
			if tt.wantFound {
				assert.Equal(t, tt.wantCity, got)
			}
		})
	}
}

func TestContainsWord(t *testing.T) {
	assert.True(t, ContainsWord("which of them is cheapest", "them"))
	assert.True(t, ContainsWord("Cheaper, please!", "cheaper"))
	assert.False(t, ContainsWord("the theme park hotel", "them"))
	assert.False(t, ContainsWord("", "them"))
}
