// Package utils holds tiny helpers shared across layers.
package utils

import "strconv"

// AtoiDefault parses query parameters like page and page_size, returning
// def for anything strconv.Atoi rejects. No trimming; a padded value is a
// malformed value.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
