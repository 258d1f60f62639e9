package core

import (
	"regexp"
	"strings"
)

var (
	slugInvalidChars = regexp.MustCompile(`[^a-z0-9]+`)
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Slugify lowers `s` and joins its alphanumeric runs with hyphens.
func Slugify(s string) string {
	s = slugInvalidChars.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}

// StringInSlice reports whether `s` is one of `list`.
func StringInSlice(s string, list []string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
