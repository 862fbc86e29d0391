package textnorm

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Similarity returns a normalized edit-distance similarity in [0,1] between
// two strings. Both inputs are normalized first; equal strings score 1.0 and
// an empty side scores 0.0. The distance is computed over Unicode code
// points, so Arabic text is compared character-wise rather than byte-wise.
func Similarity(a, b string) float64 {
	a = Normalize(a)
	b = Normalize(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	dist := levenshtein.ComputeDistance(a, b)
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	return 1 - float64(dist)/float64(maxLen)
}
