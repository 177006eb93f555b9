package library

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldMarks decomposes to compatibility form and strips combining marks, so
// "Café" and "Cafe" fold to the same bytes.
var foldMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize folds s to its search form: compatibility-decomposed, combining
// marks stripped, lower-cased, with runs of whitespace and ASCII punctuation
// collapsed to a single space, and no leading or trailing space.
//
// Normalize is idempotent and is applied both when building the search index
// and when parsing a query, so accented queries match unaccented titles and
// vice versa.
func Normalize(s string) string {
	folded, _, err := transform.String(foldMarks, s)
	if err != nil {
		// Invalid UTF-8 passes through; the fold below still applies.
		folded = s
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range folded {
		if isSeparator(r) {
			// Only emit the space once a non-separator follows, which also
			// trims the ends.
			pendingSpace = b.Len() > 0
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isSeparator(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	return r < 0x80 && (unicode.IsPunct(r) || unicode.IsSymbol(r))
}

// Tokenize splits the normalized form of s into search tokens. Empty tokens
// do not occur; an all-punctuation input yields no tokens.
func Tokenize(s string) []string {
	return strings.Fields(Normalize(s))
}

// SortKey returns the key used for canonical ordering of names: the
// normalized form with a leading English article stripped, so "The Beatles"
// sorts under b. Numbers compare as text.
func SortKey(s string) string {
	n := Normalize(s)
	for _, article := range [...]string{"the ", "a ", "an "} {
		if rest, ok := strings.CutPrefix(n, article); ok {
			return rest
		}
	}
	return n
}
