// Package identity is the REST adapter for the hosted identity provider.
// Credential verification, session issuance, password hashing, reset email
// delivery, and the OAuth handshake all live on the provider side; this
// client only shuttles requests and maps provider failures onto domain
// errors.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gideonfinance/gideon-auth/internal/config"
	"github.com/gideonfinance/gideon-auth/internal/domain"
)

// Client is the surface the auth service needs from the provider.
type Client interface {
	PasswordGrant(ctx context.Context, email, password string) (*domain.Session, error)
	SignUp(ctx context.Context, email, password, name, redirectTo string) (*domain.Identity, error)
	SendRecoveryEmail(ctx context.Context, email, redirectTo string) error
	UpdatePassword(ctx context.Context, accessToken, newPassword string) error
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*domain.Session, error)
	GetUser(ctx context.Context, accessToken string) (*domain.Identity, error)
	AuthorizeURL(provider, redirectTo, state, codeChallenge string) string
}

// HTTPClient implements Client against the provider's REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds a provider client from configuration.
func NewHTTPClient(cfg config.Config) *HTTPClient {
	timeout := cfg.IdentityTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.IdentityBaseURL, "/"),
		apiKey:  cfg.IdentityAPIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type sessionPayload struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	TokenType    string          `json:"token_type"`
	ExpiresIn    int64           `json:"expires_in"`
	User         identityPayload `json:"user"`
}

type identityPayload struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt string         `json:"email_confirmed_at"`
	ConfirmedAt      string         `json:"confirmed_at"`
	UserMetadata     map[string]any `json:"user_metadata"`
}

type errorPayload struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

// PasswordGrant asks the provider to verify email/password and mint a session.
func (c *HTTPClient) PasswordGrant(ctx context.Context, email, password string) (*domain.Session, error) {
	body := map[string]string{"email": email, "password": password}
	var out sessionPayload
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=password", "", body, &out); err != nil {
		return nil, err
	}
	return toSession(out), nil
}

// SignUp registers a new account. The provider owns hashing and sends the
// confirmation email pointing back at redirectTo.
func (c *HTTPClient) SignUp(ctx context.Context, email, password, name, redirectTo string) (*domain.Identity, error) {
	path := "/signup"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	body := map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]string{"display_name": name},
	}
	var out identityPayload
	if err := c.do(ctx, http.MethodPost, path, "", body, &out); err != nil {
		return nil, err
	}
	identity := toIdentity(out)
	return &identity, nil
}

// SendRecoveryEmail triggers the provider's password reset email.
func (c *HTTPClient) SendRecoveryEmail(ctx context.Context, email, redirectTo string) error {
	path := "/recover"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	return c.do(ctx, http.MethodPost, path, "", map[string]string{"email": email}, nil)
}

// UpdatePassword sets a new password on the account that owns accessToken.
// For the reset flow that token comes from the recovery code exchange.
func (c *HTTPClient) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	return c.do(ctx, http.MethodPut, "/user", accessToken, map[string]string{"password": newPassword}, nil)
}

// ExchangeCode trades a one-time code (email confirmation, recovery, or OAuth
// callback, all PKCE) for a session.
func (c *HTTPClient) ExchangeCode(ctx context.Context, code, codeVerifier string) (*domain.Session, error) {
	body := map[string]string{"auth_code": code, "code_verifier": codeVerifier}
	var out sessionPayload
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=pkce", "", body, &out); err != nil {
		return nil, err
	}
	return toSession(out), nil
}

// GetUser resolves the identity behind an access token.
func (c *HTTPClient) GetUser(ctx context.Context, accessToken string) (*domain.Identity, error) {
	var out identityPayload
	if err := c.do(ctx, http.MethodGet, "/user", accessToken, nil, &out); err != nil {
		return nil, err
	}
	identity := toIdentity(out)
	return &identity, nil
}

// AuthorizeURL builds the provider's OAuth redirect entry point. The browser
// is sent here; the handshake with the upstream IdP is the provider's job.
func (c *HTTPClient) AuthorizeURL(provider, redirectTo, state, codeChallenge string) string {
	q := url.Values{}
	q.Set("provider", provider)
	q.Set("redirect_to", redirectTo)
	if state != "" {
		q.Set("state", state)
	}
	if codeChallenge != "" {
		q.Set("code_challenge", codeChallenge)
		q.Set("code_challenge_method", "s256")
	}
	return c.baseURL + "/authorize?" + q.Encode()
}

func (c *HTTPClient) do(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("identity request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read identity response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return mapError(resp.StatusCode, raw)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode identity response: %w", err)
		}
	}
	return nil
}

// mapError folds the provider's error vocabulary onto domain sentinels so
// callers never branch on HTTP details.
func mapError(status int, raw []byte) error {
	var payload errorPayload
	_ = json.Unmarshal(raw, &payload)

	msg := payload.ErrorDescription
	for _, candidate := range []string{payload.Msg, payload.Message, payload.Error} {
		if msg == "" {
			msg = candidate
		}
	}

	switch {
	case payload.ErrorCode == "email_not_confirmed" || strings.Contains(strings.ToLower(msg), "not confirmed"):
		return domain.ErrEmailNotConfirmed
	case status == http.StatusBadRequest || status == http.StatusUnauthorized:
		if payload.Error == "invalid_grant" || payload.ErrorCode == "invalid_credentials" || strings.Contains(strings.ToLower(msg), "invalid login credentials") {
			return domain.ErrInvalidCredentials
		}
		if status == http.StatusUnauthorized {
			return domain.ErrTokenInvalid
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return fmt.Errorf("identity provider: %s (status %d)", msg, status)
}

func toSession(p sessionPayload) *domain.Session {
	return &domain.Session{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.TokenType,
		ExpiresIn:    p.ExpiresIn,
		User:         toIdentity(p.User),
	}
}

func toIdentity(p identityPayload) domain.Identity {
	name, _ := p.UserMetadata["display_name"].(string)
	if name == "" {
		name, _ = p.UserMetadata["full_name"].(string)
	}
	avatar, _ := p.UserMetadata["avatar_url"].(string)
	return domain.Identity{
		ID:             p.ID,
		Email:          p.Email,
		EmailConfirmed: p.EmailConfirmedAt != "" || p.ConfirmedAt != "",
		Name:           name,
		AvatarURL:      avatar,
	}
}
