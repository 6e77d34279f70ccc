package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseClientMessageUserMessage(t *testing.T) {
	raw := []byte(`{"type":"user_message","session_id":"chat_1","message":"hei","current_url":"https://example.com"}`)
	parsed, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	msg, ok := parsed.(UserMessage)
	if !ok {
		t.Fatalf("parsed type = %T, want UserMessage", parsed)
	}
	if msg.SessionID != "chat_1" || msg.Message != "hei" {
		t.Fatalf("parsed = %+v", msg)
	}
}

func TestParseClientMessageRejectsEmptyText(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":"user_message","message":"   "}`)); err == nil {
		t.Fatalf("empty message accepted, want error")
	}
}

func TestParseClientMessageUnsupportedType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"assistant_message"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageInvalidJSON(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{not json`)); err == nil {
		t.Fatalf("invalid JSON accepted, want error")
	}
}

func TestChatResponseCarriesFormPayload(t *testing.T) {
	resp := ChatResponse{
		SessionID: "chat_1",
		Message: ContactFormPayload{
			Type:    "contact_form",
			Message: "fyll ut",
			Form: Form{
				Fields:     []FormField{{Name: "user_name", Label: "Navn", Type: "text", Required: true}},
				SubmitText: "Send inn",
			},
		},
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal error = %v", err)
	}

	var decoded struct {
		Message struct {
			Type string `json:"type"`
			Form struct {
				SubmitText string `json:"submitText"`
			} `json:"form"`
		} `json:"message"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal error = %v", err)
	}
	if decoded.Message.Type != "contact_form" {
		t.Fatalf("message.type = %q, want contact_form", decoded.Message.Type)
	}
	if decoded.Message.Form.SubmitText != "Send inn" {
		t.Fatalf("submitText = %q, want Send inn", decoded.Message.Form.SubmitText)
	}
}
