package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gideonfinance/gideon-auth/internal/config"
	"github.com/gideonfinance/gideon-auth/internal/domain"
	"github.com/gideonfinance/gideon-auth/internal/http/middleware"
	"github.com/gideonfinance/gideon-auth/internal/service"
)

const sessionCookieName = "gdn_session"

// AuthHandler exposes the authentication flows over HTTP.
type AuthHandler struct {
	Auth *service.AuthService
	Cfg  config.Config
}

// NewAuthHandler creates the handler set.
func NewAuthHandler(auth *service.AuthService, cfg config.Config) *AuthHandler {
	return &AuthHandler{Auth: auth, Cfg: cfg}
}

type sessionResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	User         userResponse `json:"user"`
}

type userResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

// PasswordLogin handles email/password sign-in.
func (h *AuthHandler) PasswordLogin(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "email and password are required."})
		return
	}

	result, err := h.Auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessionResponse{
		AccessToken:  result.Session.AccessToken,
		RefreshToken: result.Session.RefreshToken,
		TokenType:    result.Session.TokenType,
		ExpiresIn:    result.Session.ExpiresIn,
		User: userResponse{
			ID:          result.Profile.ID,
			Email:       result.Profile.Email,
			DisplayName: result.Profile.DisplayName,
		},
	})
}

// PasswordRegister handles sign-up. The account stays pending until the user
// follows the confirmation email the provider sends.
func (h *AuthHandler) PasswordRegister(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
		Name     string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "email and password are required."})
		return
	}

	identity, err := h.Auth.SignUp(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status": "confirmation_sent",
		"user":   userResponse{ID: identity.ID, Email: identity.Email, DisplayName: identity.Name},
	})
}

// PasswordForgot triggers the reset email. The response never reveals
// whether the account exists.
func (h *AuthHandler) PasswordForgot(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "email is required."})
		return
	}

	if err := h.Auth.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "reset_email_sent"})
}

// PasswordReset sets a new password using the recovery session token from
// the reset link, then unlocks the account.
func (h *AuthHandler) PasswordReset(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "password is required."})
		return
	}

	recoveryToken := bearerToken(c)
	if recoveryToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Recovery token required."})
		return
	}

	if err := h.Auth.ResetPassword(c.Request.Context(), recoveryToken, req.Password); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "password_updated"})
}

// OAuthStart returns the provider authorization URL for the requested IdP.
func (h *AuthHandler) OAuthStart(c *gin.Context) {
	provider := strings.TrimSpace(c.Query("provider"))
	if provider == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "provider is required."})
		return
	}

	out, err := h.Auth.StartOAuth(c.Request.Context(), provider, c.Query("redirect_uri"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authorization_url": out.AuthorizationURL,
		"state":             out.State,
	})
}

// Callback lands both email-confirmation links and OAuth redirects, issues
// the session cookie, and sends the browser into the app.
func (h *AuthHandler) Callback(c *gin.Context) {
	code := c.Query("code")
	if strings.TrimSpace(code) == "" {
		h.errorRedirect(c, "invalid_request", "Missing confirmation code.")
		return
	}

	session, err := h.Auth.HandleCallback(c.Request.Context(), code, c.Query("state"))
	if err != nil {
		var authErr *service.AuthError
		if errors.As(err, &authErr) {
			h.errorRedirect(c, authErr.Code, authErr.Description)
			return
		}
		zap.L().Error("callback exchange failed", zap.Error(err))
		h.errorRedirect(c, "server_error", "Could not complete sign-in.")
		return
	}

	expiry := time.Now().Add(time.Duration(session.ExpiresIn) * time.Second)
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.AccessToken,
		Path:     "/",
		Expires:  expiry,
		HttpOnly: true,
		Secure:   c.Request.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	c.Redirect(http.StatusFound, h.Cfg.AppBaseURL+"/dashboard")
}

// Me returns the authenticated identity and its profile.
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := middleware.GetStdClaims(c)
	if !ok || strings.TrimSpace(claims.Subject) == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Missing subject claim."})
		return
	}

	profile, err := h.Auth.Profile(c.Request.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "profile_not_found", "error_description": "No profile for this account."})
			return
		}
		h.respondError(c, err)
		return
	}

	email := profile.Email
	if access, ok := middleware.GetAccessClaims(c); ok && access.Email != "" {
		email = access.Email
	}

	c.JSON(http.StatusOK, gin.H{
		"id":           profile.ID,
		"email":        email,
		"display_name": profile.DisplayName,
		"locked":       profile.Locked,
	})
}

func (h *AuthHandler) respondError(c *gin.Context, err error) {
	var authErr *service.AuthError
	if errors.As(err, &authErr) {
		c.JSON(authErr.Status, gin.H{"error": authErr.Code, "error_description": authErr.Description})
		return
	}
	zap.L().Error("auth service failure", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Something went wrong. Try again later."})
}

// errorRedirect sends browser flows back into the app with the error in the
// query string, where the UI surfaces it as a notification.
func (h *AuthHandler) errorRedirect(c *gin.Context, code, desc string) {
	target, err := url.Parse(h.Cfg.AppBaseURL + "/auth/error")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": desc})
		return
	}
	q := target.Query()
	q.Set("error", code)
	q.Set("error_description", desc)
	target.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, target.String())
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
