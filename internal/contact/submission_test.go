package contact

import "testing"

func TestParseSubmissionStructuredForm(t *testing.T) {
	sub := ParseSubmission(`{"user_name": "Ola Nordmann", "user_email": "Ola@Example.com"}`)
	if sub.Kind != SubmissionStructured {
		t.Fatalf("Kind = %v, want SubmissionStructured", sub.Kind)
	}
	if sub.Name != "Ola Nordmann" {
		t.Fatalf("Name = %q, want %q", sub.Name, "Ola Nordmann")
	}
	if sub.Email != "ola@example.com" {
		t.Fatalf("Email = %q, want %q", sub.Email, "ola@example.com")
	}
	if !sub.Complete() {
		t.Fatalf("Complete() = false, want true")
	}
}

func TestParseSubmissionStructuredRejectsBadEmail(t *testing.T) {
	sub := ParseSubmission(`{"user_name": "Ola", "user_email": "not-an-email"}`)
	if sub.Kind != SubmissionStructured {
		t.Fatalf("Kind = %v, want SubmissionStructured", sub.Kind)
	}
	if sub.Email != "" {
		t.Fatalf("Email = %q, want empty for invalid address", sub.Email)
	}
	if sub.Complete() {
		t.Fatalf("Complete() = true, want false without a valid email")
	}
}

func TestParseSubmissionFreeText(t *testing.T) {
	sub := ParseSubmission("Ola Nordmann, ola@example.com")
	if sub.Kind != SubmissionFreeText {
		t.Fatalf("Kind = %v, want SubmissionFreeText", sub.Kind)
	}
	if !sub.Complete() {
		t.Fatalf("Complete() = false, want true (sub=%+v)", sub)
	}
}

func TestParseSubmissionEmailOnlyIsIncomplete(t *testing.T) {
	sub := ParseSubmission("contact me at x@y.com")
	if sub.Kind != SubmissionFreeText {
		t.Fatalf("Kind = %v, want SubmissionFreeText", sub.Kind)
	}
	if sub.Complete() {
		t.Fatalf("Complete() = true, want false without a name")
	}
}

func TestParseSubmissionPlainMessage(t *testing.T) {
	sub := ParseSubmission("just chatting, no info here")
	if sub.Kind != SubmissionInvalid {
		t.Fatalf("Kind = %v, want SubmissionInvalid", sub.Kind)
	}
	if sub.Complete() {
		t.Fatalf("Complete() = true, want false")
	}
}

func TestParseSubmissionMalformedJSONFallsBackToText(t *testing.T) {
	sub := ParseSubmission(`{"user_name": "Ola Nordmann", ola@example.com`)
	if sub.Kind != SubmissionFreeText {
		t.Fatalf("Kind = %v, want SubmissionFreeText fallback", sub.Kind)
	}
	if sub.Email != "ola@example.com" {
		t.Fatalf("Email = %q, want %q", sub.Email, "ola@example.com")
	}
}
