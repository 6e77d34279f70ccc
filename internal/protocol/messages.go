package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeUserMessage      MessageType = "user_message"
	TypeAssistantDelta   MessageType = "assistant_delta"
	TypeAssistantMessage MessageType = "assistant_message"
	TypeContactForm      MessageType = "contact_form"
	TypeErrorEvent       MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ChatRequest is the inbound turn payload, shared by the HTTP and WS
// transports.
type ChatRequest struct {
	Message    string `json:"message"`
	SessionID  string `json:"session_id,omitempty"`
	CurrentURL string `json:"current_url,omitempty"`
}

// ContactInfo mirrors the widget's view of the contact state after a turn.
type ContactInfo struct {
	UserName         *string `json:"userName"`
	UserEmail        *string `json:"userEmail"`
	ContactCollected bool    `json:"contactCollected"`
}

// FormField describes one input of the contact form shown by the widget.
type FormField struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Placeholder string `json:"placeholder"`
}

type Form struct {
	Fields     []FormField `json:"fields"`
	SubmitText string      `json:"submitText"`
}

// ContactFormPayload is the structured bot message instructing the widget to
// render the contact form. It is distinguishable from a plain text reply by
// its type tag.
type ContactFormPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Form    Form   `json:"form"`
}

// ChatResponse is the outbound turn payload. Message holds either a plain
// string or a ContactFormPayload.
type ChatResponse struct {
	Message        any         `json:"message"`
	SessionID      string      `json:"session_id"`
	ContactInfo    ContactInfo `json:"contact_info"`
	Model          string      `json:"model,omitempty"`
	ResponseTimeMS int64       `json:"response_time_ms"`
}

// UserMessage is the websocket variant of ChatRequest.
type UserMessage struct {
	Type       MessageType `json:"type"`
	SessionID  string      `json:"session_id,omitempty"`
	Message    string      `json:"message"`
	CurrentURL string      `json:"current_url,omitempty"`
}

// AssistantDelta streams a fragment of the assistant reply.
type AssistantDelta struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TextDelta string      `json:"text_delta"`
}

// AssistantMessage carries the final turn result over the websocket.
type AssistantMessage struct {
	Type      MessageType  `json:"type"`
	SessionID string       `json:"session_id"`
	Response  ChatResponse `json:"response"`
}

// ContactFormMessage carries a contact-form turn result over the websocket.
type ContactFormMessage struct {
	Type      MessageType        `json:"type"`
	SessionID string             `json:"session_id"`
	Payload   ContactFormPayload `json:"payload"`
	Response  ChatResponse       `json:"response"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// ParseClientMessage decodes and validates an inbound websocket frame.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeUserMessage:
		var msg UserMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Message) == "" {
			return nil, errors.New("invalid user_message: empty message")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
