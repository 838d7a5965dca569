package quiz

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText is the fill_blank comparison policy: NFKC, Unicode case
// folding, punctuation dropped, whitespace runs collapsed to one space and
// trimmed.
func NormalizeText(s string) string {
	// Casers keep state, so each call gets its own.
	s = cases.Fold().String(norm.NFKC.String(s))
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
