// Package sanitize cleans rule-pack text before it enters the rule database.
// Rule IDs and names come from untrusted YAML files and end up in trace
// logs, CLI tables, and DOT exports; sanitization strips control characters
// and markup and caps lengths while preserving semantic content.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxTextLength is the maximum allowed length for rule names and notes.
const MaxTextLength = 200

// MaxIDLength is the maximum allowed length for rule identifiers.
const MaxIDLength = 80

var (
	// reXMLTag matches XML/HTML tags including attributes, self-closing
	// tags, and processing instructions.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	// reExcessiveNewlines matches 3 or more consecutive newlines.
	reExcessiveNewlines = regexp.MustCompile(`\n{3,}`)

	// reRepeatedHyphens matches 2 or more consecutive hyphens.
	reRepeatedHyphens = regexp.MustCompile(`-{2,}`)

	// reRepeatedUnderscores matches 2 or more consecutive underscores.
	reRepeatedUnderscores = regexp.MustCompile(`_{2,}`)
)

// Text sanitizes free-form rule text (names, notes) for safe storage and
// display: control characters and XML/HTML tags are stripped, runs of blank
// lines collapsed, and the result truncated to MaxTextLength.
func Text(input string) string {
	if input == "" {
		return ""
	}

	s := stripControlChars(input)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reExcessiveNewlines.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)

	if len(s) > MaxTextLength {
		s = s[:MaxTextLength] + "..."
	}
	return s
}

// ID sanitizes a rule identifier, keeping only [a-zA-Z0-9-_/] and enforcing
// MaxIDLength. Repeated hyphens and underscores are collapsed.
func ID(input string) string {
	if input == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '/' {
			b.WriteRune(r)
		}
	}
	s := b.String()

	s = reRepeatedHyphens.ReplaceAllString(s, "-")
	s = reRepeatedUnderscores.ReplaceAllString(s, "_")

	if len(s) > MaxIDLength {
		s = s[:MaxIDLength]
	}
	return s
}

// stripControlChars removes ASCII control characters (0x00-0x1F) except
// newline and tab.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
