// Package security validates names that come from files the process did
// not write itself.
package security

import (
	"fmt"
	"path"
	"strings"
)

// ValidateEntryName checks that an archive entry name is a relative,
// slash-separated path that stays inside the extraction root.
func ValidateEntryName(name string) error {
	if name == "" {
		return fmt.Errorf("empty entry name")
	}
	if strings.Contains(name, "\\") {
		return fmt.Errorf("entry %q uses backslashes", name)
	}
	if path.IsAbs(name) {
		return fmt.Errorf("entry %q is absolute", name)
	}
	clean := path.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("path traversal detected: entry %q escapes the archive root", name)
	}
	return nil
}

// SanitizeFilename makes a safe filename from an arbitrary string. Runs of
// characters other than ASCII letters, digits, dot, underscore or dash
// become one underscore, and the result is capped at 128 bytes.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
