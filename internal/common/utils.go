package common

import "strings"

// HasAnyFold reports whether s contains any of subs, ignoring case.
// An empty sub never matches.
func HasAnyFold(s string, subs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range subs {
		if sub != "" && strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
