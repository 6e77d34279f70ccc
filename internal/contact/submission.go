package contact

import (
	"encoding/json"
	"strings"
)

// SubmissionKind tags the variants a raw message can parse into.
type SubmissionKind int

const (
	// SubmissionInvalid means the message is not contact information.
	SubmissionInvalid SubmissionKind = iota
	// SubmissionStructured means the message was a widget form payload with
	// explicit name/email fields.
	SubmissionStructured
	// SubmissionFreeText means contact details were recognized in plain text.
	SubmissionFreeText
)

// Submission is the tagged parse result for a possible contact submission.
// Complete() decides whether it can be accepted as a captured contact.
type Submission struct {
	Kind  SubmissionKind
	Name  string
	Email string
}

// Complete reports whether both required fields resolved.
func (s Submission) Complete() bool {
	return s.Kind != SubmissionInvalid && s.Name != "" && s.Email != ""
}

// formPayload matches the JSON the widget posts when the user submits the
// contact form.
type formPayload struct {
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
}

// ParseSubmission classifies a raw user message as a structured form
// payload, free-text contact details, or neither. The structured path is a
// zero-ambiguity fast path that bypasses text parsing entirely.
func ParseSubmission(raw string) Submission {
	trimmed := strings.TrimSpace(raw)

	if strings.HasPrefix(trimmed, "{") {
		var form formPayload
		if err := json.Unmarshal([]byte(trimmed), &form); err == nil {
			name := strings.TrimSpace(form.UserName)
			email := strings.ToLower(strings.TrimSpace(form.UserEmail))
			if name != "" || email != "" {
				if email != "" && !emailPattern.MatchString(email) {
					email = ""
				}
				return Submission{Kind: SubmissionStructured, Name: name, Email: email}
			}
		}
	}

	info := Parse(trimmed)
	if !info.HasContact {
		return Submission{Kind: SubmissionInvalid}
	}
	return Submission{Kind: SubmissionFreeText, Name: info.Name, Email: info.Email}
}
