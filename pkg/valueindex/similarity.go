package valueindex

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Similarity returns a normalized edit-distance ratio in [0,1]:
// 1 - distance / max(len(a), len(b)), measured in runes. Identical strings
// score exactly 1.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la := utf8.RuneCountInString(a)
	lb := utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

// lengthBound is the best Similarity any pair of strings with rune lengths
// la and lb can reach, since their distance is at least |la-lb|.
// Computed the same way as Similarity so the comparison is exact.
func lengthBound(la, lb int) float64 {
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	return 1 - float64(diff)/float64(longest)
}
