package xstrings

import "strings"

// Unique returns s without repeated entries, keeping the first occurrence.
func Unique[T comparable](s []T) []T {
	seen := make(map[T]bool, len(s))
	list := make([]T, 0, len(s))
	for _, entry := range s {
		if seen[entry] {
			continue
		}
		seen[entry] = true
		list = append(list, entry)
	}
	return list
}

// Truncate cuts s to at most n runes and appends "..." when it did cut.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if n < 0 || len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// Squash collapses every run of whitespace to a single space.
func Squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
