package sliceutil

import "strings"

// ContainsStringIgnoreCase reports whether s contains v using a
// case-insensitive comparison.
func ContainsStringIgnoreCase(s []string, v string) bool {
	for _, i := range s {
		if strings.EqualFold(i, v) {
			return true
		}
	}
	return false
}
