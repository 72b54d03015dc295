package qr

import (
	"fmt"
	"strconv"
	"strings"
)

// payloadFields is the number of pipe-delimited fields in a valid QR payload.
const payloadFields = 5

// Payload is the identity data embedded in a registration QR code.
//
// Wire format: first_name|last_name|email|registration_id|token
// Example: John|Doe|john@example.com|123|a1b2c3d4-e5f6-4a7b-9c0d-1e2f3a4b5c6d
type Payload struct {
	FirstName      string
	LastName       string
	Email          string
	RegistrationID int64
	Token          string
}

// ParsePayload parses a raw QR string into a Payload. A string with the wrong
// field count, empty fields, or a non-numeric registration id is rejected;
// callers treat that the same as a failed decode.
func ParsePayload(raw string) (*Payload, error) {
	parts := strings.Split(raw, "|")
	if len(parts) != payloadFields {
		return nil, fmt.Errorf("payload has %d fields, expected %d", len(parts), payloadFields)
	}

	p := &Payload{
		FirstName: strings.TrimSpace(parts[0]),
		LastName:  strings.TrimSpace(parts[1]),
		Email:     strings.ToLower(strings.TrimSpace(parts[2])),
		Token:     strings.TrimSpace(parts[4]),
	}

	idField := strings.TrimSpace(parts[3])
	if p.FirstName == "" || p.LastName == "" || p.Email == "" || idField == "" || p.Token == "" {
		return nil, fmt.Errorf("payload contains empty fields: %q", raw)
	}

	id, err := strconv.ParseInt(idField, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("registration id %q is not numeric", idField)
	}
	p.RegistrationID = id

	return p, nil
}

// String renders the payload back into wire format. Used by the QR generator
// and in tests.
func (p *Payload) String() string {
	return fmt.Sprintf("%s|%s|%s|%d|%s", p.FirstName, p.LastName, p.Email, p.RegistrationID, p.Token)
}
