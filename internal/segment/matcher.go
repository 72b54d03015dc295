package segment

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-batcher/internal/qr"
	"github.com/kozaktomas/photo-batcher/internal/store"
)

// registrationSource is the subset of the store the matcher needs.
type registrationSource interface {
	GetRegistrationByToken(ctx context.Context, token string) (*store.Registration, error)
	GetRegistration(ctx context.Context, id int64) (*store.Registration, error)
	GetRegistrationByIdentity(ctx context.Context, firstName, lastName, email string) (*store.Registration, error)
}

// StoreMatcher resolves payloads against the registration table, most
// specific key first: token, then registration id, then name plus email.
// Codes printed from an older export may carry a stale token or id while the
// person still exists, so the chain falls through instead of failing fast.
type StoreMatcher struct {
	src registrationSource
}

func NewStoreMatcher(src registrationSource) *StoreMatcher {
	return &StoreMatcher{src: src}
}

func (m *StoreMatcher) Match(ctx context.Context, p *qr.Payload) (*store.Registration, error) {
	if p.Token != "" {
		reg, err := m.src.GetRegistrationByToken(ctx, p.Token)
		if err == nil {
			return reg, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("token lookup failed: %w", err)
		}
	}

	if p.RegistrationID > 0 {
		reg, err := m.src.GetRegistration(ctx, p.RegistrationID)
		if err == nil {
			return reg, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("id lookup failed: %w", err)
		}
	}

	reg, err := m.src.GetRegistrationByIdentity(ctx, p.FirstName, p.LastName, p.Email)
	if err == nil {
		return reg, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("identity lookup failed: %w", err)
	}
	return nil, ErrNoMatch
}
