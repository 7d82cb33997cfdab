package util

import "strings"

// SanitizeText drops invalid UTF-8 and NUL bytes, which the graph store
// rejects in string properties.
func SanitizeText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}
