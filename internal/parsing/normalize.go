package parsing

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Normalize prepares a phrase for catalog lookup: NFC composition, trimmed,
// internal whitespace collapsed to a single space, lowercased.
// Catalog keys and description phrases go through the same function so that
// lookups are exact after normalization.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	// A Caser keeps state between calls and must not be shared across goroutines.
	return cases.Lower(language.Und).String(s)
}

// normalizeKeys returns a copy of m with every key normalized.
// Keys that collide after normalization keep one of the colliding values.
func normalizeKeys(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[Normalize(k)] = v
	}
	return out
}
