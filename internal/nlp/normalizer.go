// Package nlp implements the deterministic language pipeline for ClassPipe:
// text normalization, rule-based entity extraction, and keyword-scored intent
// classification. Everything here is pure pattern matching; there is no
// statistical model involved.
package nlp

import "strings"

// Normalize canonicalizes raw message text for matching: trimmed,
// case-folded, internal whitespace (including newlines) collapsed to single
// spaces. Empty input normalizes to the empty string.
func Normalize(raw string) string {
	fields := strings.Fields(strings.ToLower(raw))
	return strings.Join(fields, " ")
}

// CollapseSpaces collapses whitespace without case folding. Entity patterns
// are case-sensitive (assignment codes are upper-case tokens), so extraction
// runs on this form rather than the fully normalized one.
func CollapseSpaces(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
