// Package similarity scores two entity labels for likely-same-entity
// confidence. It backs the suggestion engine's candidate ranking.
package similarity

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Sub-score weights. The blend is deliberate: edit distance alone penalizes
// word reordering that word overlap forgives, and word overlap alone
// over-rewards short strings that character-level metrics correct for.
// Changing these changes auto-match behavior system-wide.
const (
	EditDistanceWeight = 0.4
	CharOverlapWeight  = 0.3
	WordOverlapWeight  = 0.3
)

var (
	parentheticalRe = regexp.MustCompile(`\([^)]*\)`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

// Characters that do not decompose to base letter + combining mark in NFD
// and so survive the diacritic strip.
var translitReplacer = strings.NewReplacer(
	"ł", "l",
	"ø", "o",
	"đ", "d",
	"ß", "ss",
	"æ", "ae",
	"œ", "oe",
)

// Scorer provides label comparison for match suggestions
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score returns a confidence in [0,1] that two labels name the same entity.
// Identical normalized labels score 1.0; an empty normalized label scores
// 0.0; otherwise the result is the weighted blend of the three sub-scores,
// rounded to 4 decimal places.
func (s *Scorer) Score(a, b string) float64 {
	na := Normalize(a)
	nb := Normalize(b)

	if na == "" || nb == "" {
		return 0.0
	}
	if na == nb {
		return 1.0
	}

	score := EditDistanceWeight*s.editDistanceScore(na, nb) +
		CharOverlapWeight*s.charOverlapScore(na, nb) +
		WordOverlapWeight*s.wordOverlapScore(na, nb)

	return math.Round(score*10000) / 10000
}

// Normalize prepares a label for comparison: lowercase, diacritics
// transliterated to ASCII, parenthetical unit annotations (e.g. "(kg)")
// removed, all non-alphanumerics except spaces removed, whitespace
// collapsed.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = stripDiacritics(s)
	s = translitReplacer.Replace(s)
	s = parentheticalRe.ReplaceAllString(s, " ")

	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(whitespaceRe.ReplaceAllString(result.String(), " "))
}

// stripDiacritics decomposes to NFD and drops combining marks, turning
// "é" into "e", "ś" into "s", and so on.
func stripDiacritics(s string) string {
	decomposed := norm.NFD.String(s)
	var result strings.Builder
	result.Grow(len(decomposed))

	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		result.WriteRune(r)
	}

	return result.String()
}

// editDistanceScore is 1 - distance/max(len) over the normalized strings.
func (s *Scorer) editDistanceScore(a, b string) float64 {
	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(s.levenshteinDistance(a, b))/float64(maxLen)
}

// levenshteinDistance calculates the edit distance between two strings
func (s *Scorer) levenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// Two-row dynamic programming
	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(min(row[j-1]+1, prevRow[j]+1), prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}

// charOverlapScore is the ratio of characters matched by the best
// common-substring alignment: the longest common substring is counted,
// then both remainders on each side are aligned recursively.
func (s *Scorer) charOverlapScore(a, b string) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 1.0
	}
	matched := commonChars(a, b)
	return float64(2*matched) / float64(total)
}

func commonChars(a, b string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	posA, posB, length := longestCommonSubstring(a, b)
	if length == 0 {
		return 0
	}

	sum := length
	sum += commonChars(a[:posA], b[:posB])
	sum += commonChars(a[posA+length:], b[posB+length:])
	return sum
}

func longestCommonSubstring(a, b string) (posA, posB, length int) {
	for i := 0; i < len(a); i++ {
		for j := 0; j < len(b); j++ {
			k := 0
			for i+k < len(a) && j+k < len(b) && a[i+k] == b[j+k] {
				k++
			}
			if k > length {
				posA, posB, length = i, j, k
			}
		}
	}
	return posA, posB, length
}

// wordOverlapScore is the Jaccard ratio of whitespace-split token sets.
func (s *Scorer) wordOverlapScore(a, b string) float64 {
	wordsA := strings.Fields(a)
	wordsB := strings.Fields(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0.0
	}

	setA := make(map[string]bool, len(wordsA))
	for _, w := range wordsA {
		setA[w] = true
	}

	union := make(map[string]bool, len(wordsA)+len(wordsB))
	for w := range setA {
		union[w] = true
	}

	common := 0
	seenB := make(map[string]bool, len(wordsB))
	for _, w := range wordsB {
		if seenB[w] {
			continue
		}
		seenB[w] = true
		union[w] = true
		if setA[w] {
			common++
		}
	}

	return float64(common) / float64(len(union))
}
