package store

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizePersonName folds a display name for lookup: diacritics stripped
// ("Jiří" -> "jiri"), lowercased, dashes treated as spaces.
func NormalizePersonName(name string) string {
	remover := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, _ := transform.String(remover, name)
	folded = strings.ToLower(folded)
	return strings.ReplaceAll(folded, "-", " ")
}
