package handler_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gideonfinance/gideon-auth/internal/config"
	"github.com/gideonfinance/gideon-auth/internal/domain"
	httpHandler "github.com/gideonfinance/gideon-auth/internal/http/handler"
	"github.com/gideonfinance/gideon-auth/internal/http/middleware"
	"github.com/gideonfinance/gideon-auth/internal/lockout"
	"github.com/gideonfinance/gideon-auth/internal/repository"
	"github.com/gideonfinance/gideon-auth/internal/service"
	"github.com/gideonfinance/gideon-auth/internal/token"
)

const appBase = "https://app.gideon.finance"

type stubProfiles struct {
	byEmail map[string]domain.Profile
	byID    map[string]domain.Profile
}

func (s *stubProfiles) GetByEmail(_ context.Context, email string) (domain.Profile, error) {
	p, ok := s.byEmail[email]
	if !ok {
		return domain.Profile{}, domain.ErrProfileNotFound
	}
	return p, nil
}

func (s *stubProfiles) GetByID(_ context.Context, id string) (domain.Profile, error) {
	p, ok := s.byID[id]
	if !ok {
		return domain.Profile{}, domain.ErrProfileNotFound
	}
	return p, nil
}

func (s *stubProfiles) Ensure(context.Context, domain.Profile) error { return nil }

func (s *stubProfiles) RecordFailure(_ context.Context, id string, maxAttempts int) (lockout.State, error) {
	p := s.byID[id]
	state := lockout.NewPolicy(maxAttempts).OnFailure(lockout.State{FailedAttempts: p.FailedAttempts, Locked: p.Locked})
	p.FailedAttempts = state.FailedAttempts
	p.Locked = state.Locked
	s.byID[id] = p
	s.byEmail[p.Email] = p
	return state, nil
}

func (s *stubProfiles) ResetLockout(_ context.Context, id string) error {
	p := s.byID[id]
	p.FailedAttempts = 0
	p.Locked = false
	s.byID[id] = p
	s.byEmail[p.Email] = p
	return nil
}

type stubProvider struct {
	session  *domain.Session
	grantErr error
}

func (p *stubProvider) PasswordGrant(context.Context, string, string) (*domain.Session, error) {
	if p.grantErr != nil {
		return nil, p.grantErr
	}
	return p.session, nil
}

func (p *stubProvider) SignUp(_ context.Context, email, _, name, _ string) (*domain.Identity, error) {
	return &domain.Identity{ID: uuid.NewString(), Email: email, Name: name}, nil
}

func (p *stubProvider) SendRecoveryEmail(context.Context, string, string) error { return nil }

func (p *stubProvider) UpdatePassword(context.Context, string, string) error { return nil }

func (p *stubProvider) ExchangeCode(_ context.Context, code, _ string) (*domain.Session, error) {
	if code == "bad-code" {
		return nil, domain.ErrTokenInvalid
	}
	return p.session, nil
}

func (p *stubProvider) GetUser(context.Context, string) (*domain.Identity, error) {
	return &domain.Identity{ID: p.session.User.ID, Email: p.session.User.Email}, nil
}

func (p *stubProvider) AuthorizeURL(provider, redirectTo, state, codeChallenge string) string {
	return "https://identity.gideon.finance/authorize?provider=" + provider + "&state=" + state
}

type stubStates struct {
	saved map[string]repository.OAuthState
}

func (s *stubStates) SaveState(_ context.Context, state repository.OAuthState, _ time.Duration) error {
	s.saved[state.State] = state
	return nil
}

func (s *stubStates) ConsumeState(_ context.Context, state string) (repository.OAuthState, error) {
	st, ok := s.saved[state]
	if !ok {
		return repository.OAuthState{}, domain.ErrInvalidState
	}
	delete(s.saved, state)
	return st, nil
}

type fixture struct {
	handler  *httpHandler.AuthHandler
	profiles *stubProfiles
	provider *stubProvider
	states   *stubStates
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	userID := "2f0cbf28-6f4e-4f2e-9f0f-2f9c1f7d1a11"
	session := &domain.Session{
		AccessToken: "access-token",
		TokenType:   "bearer",
		ExpiresIn:   3600,
		User:        domain.Identity{ID: userID, Email: "ana@example.com"},
	}
	profile := domain.Profile{ID: userID, Email: "ana@example.com", DisplayName: "Ana"}

	profiles := &stubProfiles{
		byEmail: map[string]domain.Profile{profile.Email: profile},
		byID:    map[string]domain.Profile{profile.ID: profile},
	}
	provider := &stubProvider{session: session}
	states := &stubStates{saved: map[string]repository.OAuthState{}}

	cfg := config.Config{AppBaseURL: appBase, LockoutMaxAttempts: 5, OAuthStateTTL: 5 * time.Minute}
	svc := service.NewAuthService(profiles, provider, states, cfg, zap.NewNop())

	return &fixture{
		handler:  httpHandler.NewAuthHandler(svc, cfg),
		profiles: profiles,
		provider: provider,
		states:   states,
	}
}

func doJSON(t *testing.T, handle gin.HandlerFunc, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	handle(c)
	return w
}

func TestPasswordLoginSuccess(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, f.handler.PasswordLogin, http.MethodPost, "/auth/password/login",
		`{"email":"ana@example.com","password":"hunter2aa"}`, nil)

	res := w.Result()
	body, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(body), "access-token")
	require.Contains(t, string(body), "ana@example.com")
}

func TestPasswordLoginBadPayload(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, f.handler.PasswordLogin, http.MethodPost, "/auth/password/login",
		`{"email":"ana@example.com"}`, nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "invalid_request")
}

func TestPasswordLoginWrongPassword(t *testing.T) {
	f := newFixture(t)
	f.provider.grantErr = domain.ErrInvalidCredentials

	w := doJSON(t, f.handler.PasswordLogin, http.MethodPost, "/auth/password/login",
		`{"email":"ana@example.com","password":"nope-nope"}`, nil)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "invalid_credentials")
}

func TestPasswordLoginLockedAccount(t *testing.T) {
	f := newFixture(t)
	p := f.profiles.byID["2f0cbf28-6f4e-4f2e-9f0f-2f9c1f7d1a11"]
	p.FailedAttempts = 5
	p.Locked = true
	f.profiles.byID[p.ID] = p
	f.profiles.byEmail[p.Email] = p

	w := doJSON(t, f.handler.PasswordLogin, http.MethodPost, "/auth/password/login",
		`{"email":"ana@example.com","password":"hunter2aa"}`, nil)

	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), "account_locked")
}

func TestPasswordRegisterAccepted(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, f.handler.PasswordRegister, http.MethodPost, "/auth/password/register",
		`{"email":"new@example.com","password":"longenough","name":"New User"}`, nil)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Contains(t, w.Body.String(), "confirmation_sent")
}

func TestPasswordForgotAlwaysGeneric(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, f.handler.PasswordForgot, http.MethodPost, "/auth/password/forgot",
		`{"email":"whoever@example.com"}`, nil)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "reset_email_sent")
}

func TestPasswordResetRequiresToken(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, f.handler.PasswordReset, http.MethodPost, "/auth/password/reset",
		`{"password":"anothergoodone"}`, nil)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "invalid_token")
}

func TestPasswordResetWithToken(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, f.handler.PasswordReset, http.MethodPost, "/auth/password/reset",
		`{"password":"anothergoodone"}`, map[string]string{"Authorization": "Bearer recovery-token"})

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "password_updated")
}

func TestOAuthStartReturnsURLAndState(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, f.handler.OAuthStart, http.MethodGet, "/auth/oauth/start?provider=google", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "authorization_url")
	require.Len(t, f.states.saved, 1)
}

func TestOAuthStartRequiresProvider(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, f.handler.OAuthStart, http.MethodGet, "/auth/oauth/start", "", nil)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "invalid_request")
}

func TestCallbackSetsCookieAndRedirects(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, f.handler.Callback, http.MethodGet, "/auth/callback?code=good-code", "", nil)

	res := w.Result()
	_ = res.Body.Close()

	require.Equal(t, http.StatusFound, res.StatusCode)
	require.Equal(t, appBase+"/dashboard", res.Header.Get("Location"))

	var sessionCookie *http.Cookie
	for _, ck := range res.Cookies() {
		if ck.Name == "gdn_session" {
			sessionCookie = ck
		}
	}
	require.NotNil(t, sessionCookie)
	require.Equal(t, "access-token", sessionCookie.Value)
	require.True(t, sessionCookie.HttpOnly)
}

func TestCallbackMissingCodeRedirectsToError(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, f.handler.Callback, http.MethodGet, "/auth/callback", "", nil)

	require.Equal(t, http.StatusFound, w.Code)
	loc := w.Header().Get("Location")
	require.Contains(t, loc, appBase+"/auth/error")
	require.Contains(t, loc, "error=invalid_request")
}

func TestCallbackUnknownStateRedirectsToError(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, f.handler.Callback, http.MethodGet, "/auth/callback?code=good-code&state=missing", "", nil)

	require.Equal(t, http.StatusFound, w.Code)
	require.Contains(t, w.Header().Get("Location"), "error=invalid_request")
}

func TestMeReturnsProfileThroughMiddleware(t *testing.T) {
	f := newFixture(t)
	secret := "handler-test-signing-key-0123456789"

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: []byte(secret)},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)
	raw, err := jwt.Signed(signer).
		Claims(jwt.Claims{
			Subject: "2f0cbf28-6f4e-4f2e-9f0f-2f9c1f7d1a11",
			Expiry:  jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).
		Claims(token.AccessClaims{Email: "ana@example.com"}).
		Serialize()
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	m := &middleware.Auth{Verifier: token.NewVerifier(secret)}
	r.GET("/auth/me", m.ValidateJWT, f.handler.Me)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "ana@example.com")
	require.Contains(t, w.Body.String(), "Ana")
}

func TestMeWithoutClaims(t *testing.T) {
	f := newFixture(t)

	w := doJSON(t, f.handler.Me, http.MethodGet, "/auth/me", "", nil)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "invalid_token")
}
