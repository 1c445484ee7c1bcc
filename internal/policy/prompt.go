package policy

import (
	"regexp"
	"strings"
)

// controlPhrasePatterns match LLM control phrases commonly used for prompt
// injection. External text is adversarial by construction, so every piece of
// it passes through SanitizeForPrompt before reaching a prompt context.
var controlPhrasePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?previous\s+instructions?`),
	regexp.MustCompile(`(?i)you\s+are\s+(now\s+)?(chatgpt|gpt|claude|an?\s+ai|a\s+large\s+language\s+model)`),
	regexp.MustCompile(`(?i)system\s*:`),
	regexp.MustCompile(`(?i)assistant\s*:`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?previous`),
	regexp.MustCompile(`(?i)new\s+instructions?`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?above`),
}

const redactionMarker = "[REMOVED]"

// ContainsControlPhrase reports whether text matches any known control phrase.
func ContainsControlPhrase(text string) bool {
	if text == "" {
		return false
	}
	for _, re := range controlPhrasePatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// SanitizeForPrompt truncates text to maxLen, replaces control phrases with a
// redaction marker, and neutralizes bare role-marker tokens.
func SanitizeForPrompt(text string, maxLen int) string {
	if text == "" {
		return ""
	}
	if maxLen > 0 && len(text) > maxLen {
		text = text[:maxLen]
	}
	for _, re := range controlPhrasePatterns {
		text = re.ReplaceAllString(text, redactionMarker)
	}
	text = strings.ReplaceAll(text, "system:", "[SYSTEM]")
	text = strings.ReplaceAll(text, "assistant:", "[ASSISTANT]")
	text = strings.ReplaceAll(text, "user:", "[USER]")
	return text
}
