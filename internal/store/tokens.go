package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpsertOAuthToken persists a token row atomically. Called on first
// authorization and on every refresh, so a crash can never leave a new access
// token without the matching expiry.
func (s *Store) UpsertOAuthToken(ctx context.Context, t *OAuthToken) error {
	_, err := s.exec(ctx, `
		INSERT INTO oauth_tokens (user_identifier, access_token, refresh_token, expiry, scope, email, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_identifier) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expiry = excluded.expiry,
			scope = excluded.scope,
			email = excluded.email,
			updated_at = CURRENT_TIMESTAMP`,
		t.UserIdentifier, t.AccessToken, t.RefreshToken, t.Expiry.UTC(), t.Scope, t.Email)
	if err != nil {
		return fmt.Errorf("failed to store oauth token for %s: %w", t.UserIdentifier, err)
	}
	return nil
}

// GetOAuthToken fetches the stored token for a user.
func (s *Store) GetOAuthToken(ctx context.Context, user string) (*OAuthToken, error) {
	var t OAuthToken
	err := s.retry.Do(ctx, func() error {
		return s.db.QueryRowContext(ctx, `
			SELECT user_identifier, access_token, refresh_token, expiry, scope, email, updated_at
			FROM oauth_tokens WHERE user_identifier = ?`, user).
			Scan(&t.UserIdentifier, &t.AccessToken, &t.RefreshToken, &t.Expiry,
				&t.Scope, &t.Email, &t.UpdatedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get oauth token for %s: %w", user, err)
	}
	return &t, nil
}

// DeleteOAuthToken removes the stored token. Only called on explicit
// disconnect.
func (s *Store) DeleteOAuthToken(ctx context.Context, user string) error {
	_, err := s.exec(ctx, "DELETE FROM oauth_tokens WHERE user_identifier = ?", user)
	if err != nil {
		return fmt.Errorf("failed to delete oauth token for %s: %w", user, err)
	}
	return nil
}
