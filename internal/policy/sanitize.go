// Package policy holds input-hygiene rules applied before any message
// reaches session state or a provider.
package policy

import (
	"regexp"
	"strings"
)

var (
	scriptPattern = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	tagPattern    = regexp.MustCompile(`<[^>]*>`)
)

// SanitizeInput strips script blocks and HTML tags, trims whitespace and
// caps the message at maxLen runes. Returns the empty string for input that
// is nothing but markup or whitespace.
func SanitizeInput(input string, maxLen int) string {
	out := scriptPattern.ReplaceAllString(input, "")
	out = tagPattern.ReplaceAllString(out, "")
	out = strings.TrimSpace(out)
	if maxLen > 0 {
		runes := []rune(out)
		if len(runes) > maxLen {
			out = string(runes[:maxLen])
		}
	}
	return out
}
