package lead

import (
	"strings"
	"testing"
	"time"

	"github.com/ailabben/chatwidget/internal/session"
)

func TestFromSessionRequiresContact(t *testing.T) {
	sess := &session.Session{ID: "chat_1", StartedAt: time.Now()}
	if _, ok := FromSession(sess, session.EndTimeout); ok {
		t.Fatalf("FromSession() ok = true without a captured contact")
	}
	if _, ok := FromSession(nil, session.EndTimeout); ok {
		t.Fatalf("FromSession(nil) ok = true")
	}
}

func TestFromSessionBuildsRecord(t *testing.T) {
	sess := &session.Session{
		ID:             "chat_1",
		Contact:        &session.Contact{Name: "Ola Nordmann", Email: "ola@example.com"},
		TriggerMessage: "Hva koster det?",
		StartedAt:      time.Now().Add(-3 * time.Minute),
		Metadata: session.Metadata{
			PageURL:  "https://example.com/priser",
			ClientIP: "203.0.113.7",
		},
	}

	record, ok := FromSession(sess, session.EndContactCollected)
	if !ok {
		t.Fatalf("FromSession() ok = false, want true")
	}
	if record.Name != "Ola Nordmann" || record.Email != "ola@example.com" {
		t.Fatalf("record contact = %q/%q", record.Name, record.Email)
	}
	if record.EndReason != session.EndContactCollected {
		t.Fatalf("EndReason = %q, want %q", record.EndReason, session.EndContactCollected)
	}
	if record.PageURL != "https://example.com/priser" {
		t.Fatalf("PageURL = %q", record.PageURL)
	}
	if record.SessionDuration < 2*time.Minute {
		t.Fatalf("SessionDuration = %v, want at least the session age", record.SessionDuration)
	}
}

func TestTranscriptSkipsFormPlumbing(t *testing.T) {
	history := []session.Message{
		{Role: session.RoleUser, Kind: session.KindUserText, Content: "Hva koster det?"},
		{Role: session.RoleAssistant, Kind: session.KindAssistantContactPrompt, Content: "fyll ut skjemaet"},
		{Role: session.RoleUser, Kind: session.KindUserContactSubmission, Content: "Ola, ola@example.com"},
		{Role: session.RoleAssistant, Kind: session.KindAssistantText, Content: "Prisen er 500 kr."},
	}

	got := Transcript(history)
	if strings.Contains(got, "skjemaet") || strings.Contains(got, "ola@example.com") {
		t.Fatalf("transcript contains form plumbing:\n%s", got)
	}
	if !strings.Contains(got, "Bruker: Hva koster det?") {
		t.Fatalf("transcript missing user line:\n%s", got)
	}
	if !strings.Contains(got, "AI: Prisen er 500 kr.") {
		t.Fatalf("transcript missing assistant line:\n%s", got)
	}
}

func TestTranscriptEmptyHistory(t *testing.T) {
	if got := Transcript(nil); got != "Ingen samtale registrert" {
		t.Fatalf("Transcript(nil) = %q", got)
	}
}
