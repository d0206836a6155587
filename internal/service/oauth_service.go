package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gideonfinance/gideon-auth/internal/domain"
	"github.com/gideonfinance/gideon-auth/internal/repository"
)

// StartOAuthOutput carries the provider redirect URL and the state the client
// must echo back on the callback.
type StartOAuthOutput struct {
	AuthorizationURL string
	State            string
}

// StartOAuth prepares the redirect to the hosted provider's OAuth entry
// point: state plus a PKCE S256 challenge, with the verifier parked in the
// state store until the callback.
func (s *AuthService) StartOAuth(ctx context.Context, provider, redirectURI string) (*StartOAuthOutput, error) {
	ctx, span := s.startSpan(ctx, "AuthService.StartOAuth")
	defer span.End()

	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return nil, newAuthError("invalid_request", "provider is required.", http.StatusBadRequest)
	}
	redirect := strings.TrimSpace(redirectURI)
	if redirect == "" {
		redirect = s.callbackURL()
	}
	if parsed, err := url.Parse(redirect); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, newAuthError("invalid_request", "redirect_uri must be absolute.", http.StatusBadRequest)
	}

	state, err := secureRandomString(32)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("generate state: %w", err)
	}
	codeVerifier, err := secureRandomString(64)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("generate pkce verifier: %w", err)
	}

	if err := s.states.SaveState(ctx, repository.OAuthState{
		State:        state,
		CodeVerifier: codeVerifier,
		Provider:     provider,
		RedirectURI:  redirect,
		CreatedAt:    time.Now().UTC(),
	}, s.cfg.OAuthStateTTL); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persist oauth state: %w", err)
	}

	s.audit("oauth.start", "provider", provider)
	return &StartOAuthOutput{
		AuthorizationURL: s.provider.AuthorizeURL(provider, redirect, state, pkceChallenge(codeVerifier)),
		State:            state,
	}, nil
}

// HandleCallback redeems the one-time code the provider appended to the
// redirect. OAuth logins carry a state from StartOAuth; email-confirmation
// and recovery links arrive without one. Either way the profile row is
// ensured so the lockout tracker has a row to write on later attempts.
func (s *AuthService) HandleCallback(ctx context.Context, code, state string) (*domain.Session, error) {
	ctx, span := s.startSpan(ctx, "AuthService.HandleCallback")
	defer span.End()

	if strings.TrimSpace(code) == "" {
		return nil, newAuthError("invalid_request", "code is required.", http.StatusBadRequest)
	}

	var codeVerifier string
	if strings.TrimSpace(state) != "" {
		stored, err := s.states.ConsumeState(ctx, strings.TrimSpace(state))
		if err != nil {
			if errors.Is(err, domain.ErrInvalidState) {
				return nil, newAuthError("invalid_request", "Sign-in state is invalid or has expired. Start over.", http.StatusBadRequest)
			}
			span.RecordError(err)
			return nil, fmt.Errorf("consume oauth state: %w", err)
		}
		codeVerifier = stored.CodeVerifier
	}

	session, err := s.provider.ExchangeCode(ctx, strings.TrimSpace(code), codeVerifier)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) || errors.Is(err, domain.ErrTokenInvalid) {
			return nil, newAuthError("invalid_request", "Sign-in code is invalid or has expired.", http.StatusBadRequest)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	if err := s.profiles.Ensure(ctx, domain.Profile{
		ID:          session.User.ID,
		Email:       session.User.Email,
		DisplayName: session.User.Name,
	}); err != nil {
		s.log().Warn("failed to ensure profile after code exchange",
			zap.String("user_id", session.User.ID),
			zap.Error(err),
		)
	}

	s.audit("callback.exchange.success", "user_id", session.User.ID)
	return session, nil
}

func secureRandomString(size int) (string, error) {
	if size <= 0 {
		size = 32
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
