package segment

import (
	"context"
	"errors"
	"testing"

	"github.com/kozaktomas/photo-batcher/internal/qr"
	"github.com/kozaktomas/photo-batcher/internal/store"
)

type fakeSource struct {
	byToken    map[string]*store.Registration
	byID       map[int64]*store.Registration
	byIdentity map[string]*store.Registration
}

func identityKey(first, last, email string) string {
	return first + "|" + last + "|" + email
}

func (s *fakeSource) GetRegistrationByToken(_ context.Context, token string) (*store.Registration, error) {
	if r, ok := s.byToken[token]; ok {
		return r, nil
	}
	return nil, store.ErrNotFound
}

func (s *fakeSource) GetRegistration(_ context.Context, id int64) (*store.Registration, error) {
	if r, ok := s.byID[id]; ok {
		return r, nil
	}
	return nil, store.ErrNotFound
}

func (s *fakeSource) GetRegistrationByIdentity(_ context.Context, first, last, email string) (*store.Registration, error) {
	if r, ok := s.byIdentity[identityKey(first, last, email)]; ok {
		return r, nil
	}
	return nil, store.ErrNotFound
}

func TestMatcherChain(t *testing.T) {
	alice := &store.Registration{ID: 1, FirstName: "Alice", LastName: "Nowak", Email: "alice@example.com"}
	src := &fakeSource{
		byToken:    map[string]*store.Registration{"tok-1": alice},
		byID:       map[int64]*store.Registration{1: alice},
		byIdentity: map[string]*store.Registration{identityKey("Alice", "Nowak", "alice@example.com"): alice},
	}
	m := NewStoreMatcher(src)
	ctx := context.Background()

	cases := []struct {
		name    string
		payload qr.Payload
		wantErr bool
	}{
		{"by token", qr.Payload{Token: "tok-1", RegistrationID: 999}, false},
		{"stale token falls back to id", qr.Payload{Token: "stale", RegistrationID: 1}, false},
		{"stale token and id fall back to identity",
			qr.Payload{Token: "stale", RegistrationID: 999, FirstName: "Alice", LastName: "Nowak", Email: "alice@example.com"}, false},
		{"nothing matches",
			qr.Payload{Token: "stale", RegistrationID: 999, FirstName: "Ghost", LastName: "Ghost", Email: "ghost@example.com"}, true},
	}
	for _, tc := range cases {
		got, err := m.Match(ctx, &tc.payload)
		if tc.wantErr {
			if !errors.Is(err, ErrNoMatch) {
				t.Errorf("%s: expected ErrNoMatch, got %v", tc.name, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
			continue
		}
		if got.ID != alice.ID {
			t.Errorf("%s: expected registration %d, got %d", tc.name, alice.ID, got.ID)
		}
	}
}
