// Package lead builds and persists captured-contact records.
package lead

import (
	"strings"
	"time"

	"github.com/ailabben/chatwidget/internal/session"
)

// Record is the unit handed to a Sink when a contact has been captured.
type Record struct {
	SessionID       string            `json:"session_id"`
	Name            string            `json:"name"`
	Email           string            `json:"email"`
	History         []session.Message `json:"history"`
	TriggerMessage  string            `json:"trigger_message"`
	PageURL         string            `json:"page_url"`
	ClientIP        string            `json:"client_ip"`
	UserAgent       string            `json:"user_agent"`
	SessionDuration time.Duration     `json:"session_duration"`
	EndReason       session.EndReason `json:"end_reason"`
}

// FromSession builds a Record from a session's final state. Returns false
// when the session has no captured contact.
func FromSession(sess *session.Session, reason session.EndReason) (Record, bool) {
	if sess == nil || sess.Contact == nil {
		return Record{}, false
	}
	return Record{
		SessionID:       sess.ID,
		Name:            sess.Contact.Name,
		Email:           sess.Contact.Email,
		History:         sess.History,
		TriggerMessage:  sess.TriggerMessage,
		PageURL:         sess.Metadata.PageURL,
		ClientIP:        sess.Metadata.ClientIP,
		UserAgent:       sess.Metadata.UserAgent,
		SessionDuration: time.Since(sess.StartedAt),
		EndReason:       reason,
	}, true
}

// Transcript renders the conversation as readable text for storage,
// skipping contact-form prompts and submissions so the lead record holds
// only the actual exchange.
func Transcript(history []session.Message) string {
	var b strings.Builder
	for _, msg := range history {
		switch msg.Kind {
		case session.KindUserContactSubmission, session.KindAssistantContactPrompt:
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if msg.Role == session.RoleUser {
			b.WriteString("Bruker: ")
		} else {
			b.WriteString("AI: ")
		}
		b.WriteString(msg.Content)
	}
	if b.Len() == 0 {
		return "Ingen samtale registrert"
	}
	return b.String()
}
