// Package contact detects and parses contact information (name + email)
// from free-text or structured form input. All functions are pure.
package contact

import (
	"regexp"
	"strings"
)

// Info is the result of parsing a piece of text for contact details.
// HasContact is true iff an email was found; Name is best-effort and may be
// empty even when HasContact is true. Callers must require both before
// treating contact as collected.
type Info struct {
	Name       string
	Email      string
	HasContact bool
}

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)

	// Tried in order; first match wins.
	namePatterns = []*regexp.Regexp{
		// Lead-in phrases, Norwegian and English. Case-insensitivity is
		// scoped to the lead-in so the captured name must stay capitalized.
		regexp.MustCompile(`(?i:mitt navn er|jeg heter|heter|my name is|i am called|i'm called|navn:?|name:?)\s+([A-ZÆØÅ][a-zæøå]+(?:\s+[A-ZÆØÅ][a-zæøå]+)*)`),
		// A bare line that is just a capitalized word or two.
		regexp.MustCompile(`^([A-ZÆØÅ][a-zæøå]+(?:\s+[A-ZÆØÅ][a-zæøå]+)*)[,\s]*$`),
		// A capitalized name immediately preceding an email on one line,
		// e.g. "Ola Nordmann, ola@example.com".
		regexp.MustCompile(`^([A-ZÆØÅ][a-zæøå]+(?:\s+[A-ZÆØÅ][a-zæøå]+)*)[,\s]*[A-Za-z0-9._%+\-]+@`),
	}
)

// Parse extracts an email and a best-effort name from free text.
func Parse(text string) Info {
	var info Info

	if m := emailPattern.FindString(text); m != "" {
		info.Email = strings.ToLower(m)
		info.HasContact = true
	}

	for _, pattern := range namePatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		candidate := strings.TrimSpace(m[1])
		if len(candidate) >= 2 && len(candidate) <= 50 {
			info.Name = candidate
			info.HasContact = true
			break
		}
	}

	return info
}

// LooksLikeContact reports whether text appears to carry contact
// information. It is a fast gate before full submission parsing.
func LooksLikeContact(text string) bool {
	return Parse(text).HasContact
}
