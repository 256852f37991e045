package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "lowercases",
			input:    "Engine Power",
			expected: "engine power",
		},
		{
			name:     "strips diacritics",
			input:    "Žółty węgiel",
			expected: "zolty wegiel",
		},
		{
			name:     "transliterates non decomposable letters",
			input:    "Straße Łódź",
			expected: "strasse lodz",
		},
		{
			name:     "removes parenthetical units",
			input:    "Weight (kg)",
			expected: "weight",
		},
		{
			name:     "removes punctuation",
			input:    "Voltage: 230V / 50Hz",
			expected: "voltage 230v 50hz",
		},
		{
			name:     "collapses whitespace",
			input:    "  a \t b   c ",
			expected: "a b c",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "punctuation only",
			input:    "(!) - / ::",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestScorer_Score(t *testing.T) {
	scorer := NewScorer()

	t.Run("identical labels score 1.0", func(t *testing.T) {
		assert.Equal(t, 1.0, scorer.Score("Moc silnika", "Moc silnika"))
	})

	t.Run("labels identical after normalization score 1.0", func(t *testing.T) {
		assert.Equal(t, 1.0, scorer.Score("Engine Power (W)", "engine  power"))
		assert.Equal(t, 1.0, scorer.Score("Żółć", "zolc"))
	})

	t.Run("empty labels score 0.0", func(t *testing.T) {
		assert.Equal(t, 0.0, scorer.Score("", "Engine Power"))
		assert.Equal(t, 0.0, scorer.Score("Engine Power", ""))
		assert.Equal(t, 0.0, scorer.Score("", ""))
	})

	t.Run("unrelated labels score low", func(t *testing.T) {
		assert.Less(t, scorer.Score("Red", "Blue"), 0.3)
	})

	t.Run("near match scores high", func(t *testing.T) {
		score := scorer.Score("Engine Power W", "Engine Power")
		assert.GreaterOrEqual(t, score, 0.8)
		assert.Less(t, score, 1.0)
	})

	t.Run("closer label scores higher", func(t *testing.T) {
		near := scorer.Score("Silnik elektryczny", "Silnik elektryczny 230V")
		far := scorer.Score("Silnik elektryczny", "Pompa hydrauliczna")
		assert.Greater(t, near, far)
	})

	t.Run("single letter substitution stays below auto threshold", func(t *testing.T) {
		score := scorer.Score("Kolor", "Color")
		assert.Greater(t, score, 0.3)
		assert.Less(t, score, 0.8)
	})

	t.Run("symmetric", func(t *testing.T) {
		assert.Equal(t,
			scorer.Score("Kolor obudowy", "Kolor"),
			scorer.Score("Kolor", "Kolor obudowy"),
		)
	})

	t.Run("rounded to four decimals", func(t *testing.T) {
		score := scorer.Score("Kolor", "Color")
		assert.Equal(t, score, float64(int(score*10000))/10000)
	})
}

func TestScorer_levenshteinDistance(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		a, b     string
		expected int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"abc", "abc", 0},
		{"kolor", "color", 1},
		{"kitten", "sitting", 3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, scorer.levenshteinDistance(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}
