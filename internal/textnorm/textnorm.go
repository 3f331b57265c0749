// File: internal/textnorm/textnorm.go
package textnorm

import "strings"

// synonyms maps a normalized value to its canonical comparison form.
// Lookups are one-directional and only consulted after an exact comparison fails.
var synonyms = map[string]string{
	"administrator": "admin",
	"united states": "usa",
	"phone call":    "phone",
}

// Normalize trims surrounding whitespace and lower-cases s.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// SynonymOf returns the canonical form registered for an already normalized value.
func SynonymOf(normalized string) (string, bool) {
	canon, ok := synonyms[normalized]
	return canon, ok
}

// Canonical returns the synonym for normalized when one exists, otherwise normalized itself.
func Canonical(normalized string) string {
	if canon, ok := synonyms[normalized]; ok {
		return canon
	}
	return normalized
}

// Overlaps reports whether either string contains the other. An empty string
// overlaps with everything.
func Overlaps(a, b string) bool {
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// CollapseSpaces replaces every run of whitespace with a single underscore.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), "_")
}
