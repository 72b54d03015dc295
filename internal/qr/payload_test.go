package qr

import "testing"

func TestParsePayload_Valid(t *testing.T) {
	p, err := ParsePayload("John|Doe|John@Example.com|123|abc-token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.FirstName != "John" {
		t.Errorf("expected FirstName 'John', got '%s'", p.FirstName)
	}
	if p.LastName != "Doe" {
		t.Errorf("expected LastName 'Doe', got '%s'", p.LastName)
	}
	if p.Email != "john@example.com" {
		t.Errorf("expected lowercased email, got '%s'", p.Email)
	}
	if p.RegistrationID != 123 {
		t.Errorf("expected RegistrationID 123, got %d", p.RegistrationID)
	}
	if p.Token != "abc-token" {
		t.Errorf("expected Token 'abc-token', got '%s'", p.Token)
	}
}

func TestParsePayload_TrimsWhitespace(t *testing.T) {
	p, err := ParsePayload(" Jane | Roe | jane@example.com | 7 | tok ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.FirstName != "Jane" || p.LastName != "Roe" || p.Token != "tok" {
		t.Errorf("fields not trimmed: %+v", p)
	}
}

func TestParsePayload_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"too few fields", "John|Doe|john@example.com|123"},
		{"too many fields", "John|Doe|john@example.com|123|tok|extra"},
		{"empty field", "John||john@example.com|123|tok"},
		{"empty string", ""},
		{"non-numeric id", "John|Doe|john@example.com|abc|tok"},
		{"random text", "https://example.com/some-other-qr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if p, err := ParsePayload(tt.raw); err == nil {
				t.Errorf("expected error for %q, got payload %+v", tt.raw, p)
			}
		})
	}
}

func TestPayload_StringRoundTrip(t *testing.T) {
	p := &Payload{
		FirstName:      "Alice",
		LastName:       "Nguyen",
		Email:          "alice@example.com",
		RegistrationID: 42,
		Token:          "t-42",
	}

	back, err := ParsePayload(p.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *back != *p {
		t.Errorf("round trip mismatch: expected %+v, got %+v", p, back)
	}
}
