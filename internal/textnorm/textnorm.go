// Package textnorm strips Vietnamese diacritics for identifiers such as push topics.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var dReplacer = strings.NewReplacer("Đ", "D", "đ", "d")

// NoAccent removes combining marks and maps đ/Đ to d/D. Characters with no
// ASCII decomposition are dropped.
func NoAccent(s string) string {
	s = dReplacer.Replace(s)
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Slug lower-cases the accent-free form and replaces every run of characters
// outside [a-z0-9] with a single underscore.
func Slug(s string) string {
	s = strings.ToLower(NoAccent(s))
	var b strings.Builder
	pending := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}
