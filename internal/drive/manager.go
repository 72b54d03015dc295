// Package drive integrates with Google Drive: OAuth token lifecycle and the
// v3 REST calls needed to mirror each person's photo group into a shared
// folder.
package drive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/kozaktomas/photo-batcher/internal/config"
	"github.com/kozaktomas/photo-batcher/internal/constants"
	"github.com/kozaktomas/photo-batcher/internal/store"
)

// ErrNotConnected is returned when no Drive account has been authorized.
var ErrNotConnected = errors.New("drive account not connected")

// tokenStore is the persistence the manager needs.
type tokenStore interface {
	UpsertOAuthToken(ctx context.Context, t *store.OAuthToken) error
	GetOAuthToken(ctx context.Context, user string) (*store.OAuthToken, error)
	DeleteOAuthToken(ctx context.Context, user string) error
}

// The app manages a single photographer account.
const defaultUser = "default"

const driveScope = "https://www.googleapis.com/auth/drive.file"

// Manager owns the OAuth credential: authorization, refresh and revocation.
// Access tokens only ever leave through Token; callers never see the refresh
// token.
type Manager struct {
	store     tokenStore
	conf      *oauth2.Config
	apiBase   string
	revokeURL string
	log       zerolog.Logger

	// mu serializes refreshes so concurrent uploads do not race the
	// provider with the same refresh token.
	mu sync.Mutex

	// now is replaceable in tests.
	now func() time.Time
}

func NewManager(cfg *config.DriveConfig, st tokenStore, log zerolog.Logger) *Manager {
	return &Manager{
		store: st,
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{driveScope},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://accounts.google.com/o/oauth2/auth",
				TokenURL: cfg.TokenURL,
			},
		},
		apiBase:   cfg.APIBaseURL,
		revokeURL: cfg.RevokeURL,
		log:       log,
		now:       time.Now,
	}
}

// AuthURL returns the provider consent URL. Offline access is required or
// the provider never hands out a refresh token and the connection dies with
// the first access token.
func (m *Manager) AuthURL(state string) string {
	return m.conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades the authorization code for tokens, resolves the account
// email and persists everything. Completing this call is what makes Status
// report connected.
func (m *Manager) Exchange(ctx context.Context, code string) error {
	tok, err := m.conf.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("could not exchange authorization code: %w", err)
	}
	if tok.RefreshToken == "" {
		return errors.New("provider did not return a refresh token; revoke app access and reconnect")
	}

	email, err := m.accountEmail(ctx, tok.AccessToken)
	if err != nil {
		m.log.Warn().Err(err).Msg("could not resolve drive account email")
	}

	rec := &store.OAuthToken{
		UserIdentifier: defaultUser,
		AccessToken:    tok.AccessToken,
		RefreshToken:   tok.RefreshToken,
		Expiry:         tok.Expiry,
		Scope:          driveScope,
		Email:          email,
	}
	if err := m.store.UpsertOAuthToken(ctx, rec); err != nil {
		return err
	}
	m.log.Info().Str("email", email).Msg("drive account connected")
	return nil
}

// Token returns a valid access token, refreshing first when the stored one
// is within the expiry safety margin. A refreshed token is persisted before
// it is returned, so a crash mid-upload cannot lose the rotation.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.store.GetOAuthToken(ctx, defaultUser)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrNotConnected
	}
	if err != nil {
		return "", err
	}

	if m.now().Add(constants.TokenExpiryMargin).Before(rec.Expiry) {
		return rec.AccessToken, nil
	}

	src := m.conf.TokenSource(ctx, &oauth2.Token{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		Expiry:       rec.Expiry.Add(-constants.TokenExpiryMargin),
	})
	fresh, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("could not refresh access token: %w", err)
	}

	rec.AccessToken = fresh.AccessToken
	if fresh.RefreshToken != "" {
		rec.RefreshToken = fresh.RefreshToken
	}
	rec.Expiry = fresh.Expiry
	if err := m.store.UpsertOAuthToken(ctx, rec); err != nil {
		return "", fmt.Errorf("could not persist refreshed token: %w", err)
	}
	m.log.Debug().Time("expiry", fresh.Expiry).Msg("access token refreshed")
	return fresh.AccessToken, nil
}

// Disconnect revokes the credential at the provider and removes it locally.
// Revocation is best effort; the local row is deleted either way so the app
// never keeps a token the user asked to drop.
func (m *Manager) Disconnect(ctx context.Context) error {
	rec, err := m.store.GetOAuthToken(ctx, defaultUser)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := m.revoke(ctx, rec.RefreshToken); err != nil {
		m.log.Warn().Err(err).Msg("provider token revocation failed")
	}
	return m.store.DeleteOAuthToken(ctx, defaultUser)
}

// Status describes the connection without exposing tokens.
type Status struct {
	Connected bool      `json:"connected"`
	Email     string    `json:"email,omitempty"`
	Expiry    time.Time `json:"expiry,omitempty"`
}

func (m *Manager) Status(ctx context.Context) (*Status, error) {
	rec, err := m.store.GetOAuthToken(ctx, defaultUser)
	if errors.Is(err, store.ErrNotFound) {
		return &Status{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Status{Connected: true, Email: rec.Email, Expiry: rec.Expiry}, nil
}

func (m *Manager) revoke(ctx context.Context, token string) error {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("could not create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not send revoke request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke failed with status %d", resp.StatusCode)
	}
	return nil
}

// accountEmail asks the Drive about endpoint who the token belongs to.
func (m *Manager) accountEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.apiBase+"/about?fields=user", nil)
	if err != nil {
		return "", fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("about request failed with status %d", resp.StatusCode)
	}

	var about struct {
		User struct {
			EmailAddress string `json:"emailAddress"`
		} `json:"user"`
	}
	if err := decodeJSON(resp.Body, &about); err != nil {
		return "", err
	}
	return about.User.EmailAddress, nil
}

// IsAuthError reports whether err means the credential is gone for good
// (revoked or expired refresh token). Retrying uploads after this is
// pointless; the batch has to stop and ask for reauthorization.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotConnected) {
		return true
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return rerr.ErrorCode == "invalid_grant" ||
			rerr.Response != nil && rerr.Response.StatusCode == http.StatusUnauthorized
	}
	msg := err.Error()
	return strings.Contains(msg, "invalid_grant") || strings.Contains(msg, "status 401")
}
