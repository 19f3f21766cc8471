package query

import (
	"strings"
	"unicode"
)

// Normalize collapses internal whitespace and trims the query for display
// and for search, preserving case and trailing punctuation.
func Normalize(q string) string {
	fields := strings.Fields(q)
	return strings.Join(fields, " ")
}

// CacheKey returns the normalized form used to key the classifier's result
// cache: whitespace-collapsed, lowercased, with trailing punctuation
// stripped, so "Parse Request?" and "parse request" share a cache entry.
func CacheKey(q string) string {
	normalized := strings.ToLower(Normalize(q))
	return strings.TrimRightFunc(normalized, func(r rune) bool {
		return unicode.IsPunct(r)
	})
}
