package policy

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultSnippetLength bounds cleaned snippets.
const DefaultSnippetLength = 500

var (
	stripPolicy = bluemonday.StrictPolicy()
	spaceRE     = regexp.MustCompile(`\s+`)
)

// SanitizeHTML strips all markup, decodes entities, and collapses whitespace.
func SanitizeHTML(text string) string {
	if text == "" {
		return ""
	}
	out := stripPolicy.Sanitize(text)
	// bluemonday escapes entities it keeps; decode twice to cover input that
	// arrives already entity-encoded.
	out = html.UnescapeString(html.UnescapeString(out))
	out = spaceRE.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// Truncate cuts text to maxLen, preferring the last word boundary within 80%
// of the cut point, and appends an ellipsis marker when anything was removed.
func Truncate(text string, maxLen int) string {
	const suffix = "..."
	if text == "" || len(text) <= maxLen {
		return text
	}
	cut := maxLen - len(suffix)
	if cut <= 0 {
		return suffix[:maxLen]
	}
	if idx := strings.LastIndex(text[:cut], " "); idx > 0 && float64(idx) > float64(cut)*0.8 {
		return text[:idx] + suffix
	}
	return text[:cut] + suffix
}

// CleanSnippet sanitizes and truncates provider snippet text. Returns "" when
// nothing survives sanitization.
func CleanSnippet(text string, maxLen int) string {
	if text == "" {
		return ""
	}
	if maxLen <= 0 {
		maxLen = DefaultSnippetLength
	}
	cleaned := SanitizeHTML(text)
	if cleaned == "" {
		return ""
	}
	return Truncate(cleaned, maxLen)
}
