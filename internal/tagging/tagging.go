// Package tagging turns free-text tag input into the canonical ordered
// list of tag names attached to an entry.
package tagging

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxLength is the longest tag name accepted, in characters.
const MaxLength = 30

// disallowed holds every character a tag name may not contain, besides
// whitespace of any kind.
const disallowed = " ~`@#$%^&*()?/\\,<>;\"'"

// Split breaks a whitespace-delimited tag string into candidates.
func Split(input string) []string {
	return strings.Fields(input)
}

// Valid reports whether name can be used as a tag.
func Valid(name string) bool {
	if name == "" {
		return false
	}
	if strings.ContainsAny(name, disallowed) || strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return false
	}
	return utf8.RuneCountInString(name) <= MaxLength
}

// Normalize drops empty, malformed and overlong candidates and collapses
// duplicates, keeping each name at the position of its first occurrence.
// The index of a name in the result is its sequence number.
func Normalize(candidates []string) []string {
	names := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		if !Valid(candidate) {
			continue
		}
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}
		names = append(names, candidate)
	}
	return names
}

// Parse is Normalize applied to a whitespace-delimited string.
func Parse(input string) []string {
	return Normalize(Split(input))
}
