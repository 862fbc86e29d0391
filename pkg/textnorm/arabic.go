package textnorm

import "strings"

// Arabic diacritic marks stripped during normalization (fathatan through sukun).
var diacritics = [...]rune{'ً', 'ٌ', 'ٍ', 'َ', 'ُ', 'ِ', 'ّ', 'ْ'}

var letterFolds = strings.NewReplacer(
	"ـ", "", // tatweel
	"أ", "ا",
	"إ", "ا",
	"آ", "ا",
	"ى", "ي",
	"ة", "ه",
)

// Normalize canonicalizes an Arabic string for comparison: trims, removes
// tatweel, folds alef variants to bare alef, folds alef maqsura to ya and
// ta marbuta to ha, strips the standard diacritics and collapses runs of
// spaces. Blank input yields the empty string. Normalize is idempotent.
func Normalize(input string) string {
	s := strings.TrimSpace(input)
	if s == "" {
		return ""
	}

	s = letterFolds.Replace(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isDiacritic(r) {
			continue
		}
		b.WriteRune(r)
	}
	s = b.String()

	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return s
}

func isDiacritic(r rune) bool {
	for _, d := range diacritics {
		if r == d {
			return true
		}
	}
	return false
}
