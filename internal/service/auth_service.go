package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/gideonfinance/gideon-auth/internal/adapter/identity"
	"github.com/gideonfinance/gideon-auth/internal/config"
	"github.com/gideonfinance/gideon-auth/internal/domain"
	"github.com/gideonfinance/gideon-auth/internal/lockout"
	"github.com/gideonfinance/gideon-auth/internal/repository"
)

const minPasswordLength = 8

// AuthError is surfaced to handlers with an HTTP status and a stable code.
type AuthError struct {
	Code        string
	Description string
	Status      int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func newAuthError(code, description string, status int) *AuthError {
	return &AuthError{Code: code, Description: description, Status: status}
}

// AuthService implements the sign-in, sign-up, reset, and OAuth flows around
// the hosted identity provider. The only state it owns is the per-account
// lockout counter in the profiles table.
type AuthService struct {
	profiles repository.ProfileRepository
	provider identity.Client
	states   repository.OAuthStateStore
	policy   lockout.Policy
	cfg      config.Config
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewAuthService wires the auth service.
func NewAuthService(
	profiles repository.ProfileRepository,
	provider identity.Client,
	states repository.OAuthStateStore,
	cfg config.Config,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		profiles: profiles,
		provider: provider,
		states:   states,
		policy:   lockout.NewPolicy(cfg.LockoutMaxAttempts),
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer("github.com/gideonfinance/gideon-auth/internal/service"),
	}
}

// SignInResult bundles the provider session with the local profile.
type SignInResult struct {
	Session *domain.Session
	Profile domain.Profile
}

// SignIn verifies credentials through the provider and applies the lockout
// policy around the attempt. Counter writes are best-effort: the outcome
// reported to the caller follows the verification result even if the write
// fails.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	ctx, span := s.startSpan(ctx, "AuthService.SignIn")
	defer span.End()

	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, newAuthError("invalid_request", "A valid email address is required.", http.StatusBadRequest)
	}
	if password == "" {
		return nil, newAuthError("invalid_request", "Password is required.", http.StatusBadRequest)
	}

	profile, err := s.profiles.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No profile row means nothing to count against; the caller gets
			// the same generic answer as a wrong password.
			s.audit("password_login.unknown_account", "email", normalized)
			return nil, errInvalidCredentials()
		}
		span.RecordError(err)
		return nil, fmt.Errorf("load profile: %w", err)
	}

	if profile.Locked {
		s.audit("password_login.blocked_locked", "user_id", profile.ID)
		return nil, errAccountLocked()
	}

	session, err := s.provider.PasswordGrant(ctx, normalized, password)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials):
			state, werr := s.profiles.RecordFailure(ctx, profile.ID, s.policy.MaxAttempts)
			if werr != nil {
				s.log().Warn("failed to record sign-in failure",
					zap.String("user_id", profile.ID),
					zap.Error(werr),
				)
				return nil, errInvalidCredentials()
			}
			s.audit("password_login.failure",
				"user_id", profile.ID,
				"failed_attempts", state.FailedAttempts,
				"locked", state.Locked,
			)
			if state.Locked {
				return nil, errAccountLocked()
			}
			return nil, errInvalidCredentials()
		case errors.Is(err, domain.ErrEmailNotConfirmed):
			return nil, newAuthError("email_not_confirmed", "Confirm your email address before signing in.", http.StatusForbidden)
		default:
			span.RecordError(err)
			return nil, fmt.Errorf("verify credentials: %w", err)
		}
	}

	if err := s.profiles.ResetLockout(ctx, profile.ID); err != nil {
		s.log().Warn("failed to reset lockout after sign-in",
			zap.String("user_id", profile.ID),
			zap.Error(err),
		)
	} else {
		profile.FailedAttempts = 0
		profile.Locked = false
	}

	s.audit("password_login.success", "user_id", profile.ID)
	return &SignInResult{Session: session, Profile: profile}, nil
}

// SignUp registers an account with the provider. The provider hashes the
// password and sends the confirmation email; the profile row is created by
// the confirmation trigger (and defensively on the first callback).
func (s *AuthService) SignUp(ctx context.Context, email, password, name string) (*domain.Identity, error) {
	ctx, span := s.startSpan(ctx, "AuthService.SignUp")
	defer span.End()

	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, newAuthError("invalid_request", "A valid email address is required.", http.StatusBadRequest)
	}
	if len(password) < minPasswordLength {
		return nil, newAuthError("invalid_request",
			fmt.Sprintf("Password must be at least %d characters.", minPasswordLength), http.StatusBadRequest)
	}

	identity, err := s.provider.SignUp(ctx, normalized, password, strings.TrimSpace(name), s.callbackURL())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("provider sign-up: %w", err)
	}

	s.audit("password_register.pending_confirmation", "user_id", identity.ID)
	return identity, nil
}

// ForgotPassword asks the provider to send the reset email. The response is
// identical whether or not the account exists.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	ctx, span := s.startSpan(ctx, "AuthService.ForgotPassword")
	defer span.End()

	normalized, err := normalizeEmail(email)
	if err != nil {
		return newAuthError("invalid_request", "A valid email address is required.", http.StatusBadRequest)
	}

	if err := s.provider.SendRecoveryEmail(ctx, normalized, s.cfg.AppBaseURL+"/auth/reset"); err != nil {
		span.RecordError(err)
		return fmt.Errorf("send recovery email: %w", err)
	}

	s.audit("password_forgot.request", "email", normalized)
	return nil
}

// ResetPassword sets a new password using the recovery session token and
// unlocks the account. The unlock write is best-effort once the provider has
// accepted the new password.
func (s *AuthService) ResetPassword(ctx context.Context, recoveryToken, newPassword string) error {
	ctx, span := s.startSpan(ctx, "AuthService.ResetPassword")
	defer span.End()

	if strings.TrimSpace(recoveryToken) == "" {
		return newAuthError("invalid_request", "Recovery token is required.", http.StatusBadRequest)
	}
	if len(newPassword) < minPasswordLength {
		return newAuthError("invalid_request",
			fmt.Sprintf("Password must be at least %d characters.", minPasswordLength), http.StatusBadRequest)
	}

	user, err := s.provider.GetUser(ctx, recoveryToken)
	if err != nil {
		if errors.Is(err, domain.ErrTokenInvalid) {
			return newAuthError("invalid_token", "Recovery link is invalid or has expired.", http.StatusUnauthorized)
		}
		span.RecordError(err)
		return fmt.Errorf("resolve recovery session: %w", err)
	}

	if err := s.provider.UpdatePassword(ctx, recoveryToken, newPassword); err != nil {
		if errors.Is(err, domain.ErrTokenInvalid) {
			return newAuthError("invalid_token", "Recovery link is invalid or has expired.", http.StatusUnauthorized)
		}
		span.RecordError(err)
		return fmt.Errorf("update password: %w", err)
	}

	if err := s.profiles.ResetLockout(ctx, user.ID); err != nil {
		s.log().Error("failed to unlock account after password reset",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}

	s.audit("password_reset.success", "user_id", user.ID)
	return nil
}

// Profile returns the local profile for an authenticated user.
func (s *AuthService) Profile(ctx context.Context, userID string) (domain.Profile, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Profile")
	defer span.End()

	profile, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Profile{}, domain.ErrProfileNotFound
		}
		span.RecordError(err)
		return domain.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	return profile, nil
}

func (s *AuthService) callbackURL() string {
	return s.cfg.AppBaseURL + "/auth/callback"
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name)
}

func (s *AuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func (s *AuthService) audit(event string, kv ...any) {
	s.log().Sugar().Infow(event, kv...)
}

func errInvalidCredentials() *AuthError {
	return newAuthError("invalid_credentials", "Incorrect email or password.", http.StatusUnauthorized)
}

func errAccountLocked() *AuthError {
	return newAuthError("account_locked",
		"Account locked after too many failed sign-in attempts. Reset your password to unlock it.", http.StatusForbidden)
}

func normalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return "", fmt.Errorf("empty email")
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return "", fmt.Errorf("malformed email")
	}
	return normalized, nil
}
