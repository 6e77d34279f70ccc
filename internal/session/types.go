package session

import "time"

// Role of a conversation message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MessageKind is the explicit variant tag set at creation time. Downstream
// logic dispatches on it instead of sniffing message content.
type MessageKind string

const (
	KindUserText               MessageKind = "user_text"
	KindUserContactSubmission  MessageKind = "user_contact_submission"
	KindAssistantText          MessageKind = "assistant_text"
	KindAssistantContactPrompt MessageKind = "assistant_contact_prompt"
)

// EndReason records why a session left the store.
type EndReason string

const (
	EndContactCollected EndReason = "contact_collected"
	EndTimeout          EndReason = "timeout"
	EndManual           EndReason = "manual"
)

// Message is one conversation entry. History is append-only; messages are
// never mutated after being added.
type Message struct {
	Role      string      `json:"role"`
	Kind      MessageKind `json:"kind"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// Contact is a captured name+email pair. Both fields are always set
// together.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Metadata is the last-known request context, overwritten on each turn.
type Metadata struct {
	PageURL   string `json:"page_url"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent"`
}

// Session is the server-side state for one end-user conversation.
type Session struct {
	ID                  string    `json:"session_id"`
	History             []Message `json:"history"`
	Contact             *Contact  `json:"contact,omitempty"`
	TriggerMessage      string    `json:"trigger_message"`
	GenuineUserMessages int       `json:"genuine_user_messages"`
	PromptShown         bool      `json:"prompt_shown"`
	StartedAt           time.Time `json:"started_at"`
	LastActivityAt      time.Time `json:"last_activity_at"`
	Metadata            Metadata  `json:"metadata"`
}

// ContactCollected reports whether the one-way contact capture has happened.
func (s *Session) ContactCollected() bool {
	return s.Contact != nil
}
