// Package arabic canonicalises Arabic labels so that spelling variants of the
// same word compare equal.
package arabic

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

const tatweel = 'ـ'

var folds = map[rune]rune{
	'إ': 'ا',
	'أ': 'ا',
	'آ': 'ا',
	'ٱ': 'ا',
	'ى': 'ي',
	'ة': 'ه',
	'ؤ': 'و',
	'ئ': 'ي',
}

// Normalize folds letter variants onto one representative (alef forms to
// bare alef, taa marbuta to haa, alef maqsura and hamza-on-yaa to yaa,
// hamza-on-waw to waw) and drops everything that is not an Arabic letter,
// spaces and digits included.
//
// Input is NFKC-normalised first so presentation forms and the lam-alef
// ligature reduce to their base letters.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if f, ok := folds[r]; ok {
			r = f
		}
		if r == tatweel || r < 'ء' || r > 'ي' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
