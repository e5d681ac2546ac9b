package slug

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

var transliterate = strings.NewReplacer(
	"&", " and ",
	"á", "a", "à", "a", "â", "a", "ä", "a",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"í", "i", "ì", "i", "î", "i", "ï", "i",
	"ó", "o", "ò", "o", "ô", "o", "ö", "o",
	"ú", "u", "ù", "u", "û", "u", "ü", "u",
	"ç", "c", "ñ", "n",
)

// Generate creates a lowercase, hyphen-separated key from a display name.
// Two labels that differ only in case, spacing or punctuation produce the
// same slug, which is what catalog lookups and de-duplication rely on.
//
// Examples:
//   - "Home & Kitchen" → "home-and-kitchen"
//   - "  Smart   Phones! " → "smart-phones"
//   - "Café Décor" → "cafe-decor"
func Generate(name string) string {
	s := transliterate.Replace(strings.ToLower(strings.TrimSpace(name)))
	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Equal reports whether two labels produce the same slug.
func Equal(a, b string) bool {
	return Generate(a) == Generate(b)
}
