package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"

	"github.com/gideonfinance/gideon-auth/internal/http/middleware"
	"github.com/gideonfinance/gideon-auth/internal/token"
)

const testSecret = "middleware-test-signing-key-0123456789"

func signToken(t *testing.T, std jwt.Claims, custom token.AccessClaims) string {
	t.Helper()
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: []byte(testSecret)},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)

	raw, err := jwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	require.NoError(t, err)
	return raw
}

func runValidate(t *testing.T, authHeader string) (*httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	m := &middleware.Auth{Verifier: token.NewVerifier(testSecret)}
	m.ValidateJWT(c)
	return w, c
}

func TestValidateJWTAttachesClaims(t *testing.T) {
	raw := signToken(t,
		jwt.Claims{
			Subject: "11111111-2222-3333-4444-555555555555",
			Expiry:  jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		token.AccessClaims{Email: "ana@example.com"},
	)

	w, c := runValidate(t, "Bearer "+raw)

	require.False(t, c.IsAborted())
	require.Equal(t, http.StatusOK, w.Code)

	std, ok := middleware.GetStdClaims(c)
	require.True(t, ok)
	require.Equal(t, "11111111-2222-3333-4444-555555555555", std.Subject)

	custom, ok := middleware.GetAccessClaims(c)
	require.True(t, ok)
	require.Equal(t, "ana@example.com", custom.Email)
}

func TestValidateJWTMissingHeader(t *testing.T) {
	w, c := runValidate(t, "")

	require.True(t, c.IsAborted())
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Body.String(), "invalid_token")
}

func TestValidateJWTRejectsNonBearer(t *testing.T) {
	w, c := runValidate(t, "Basic dXNlcjpwYXNz")

	require.True(t, c.IsAborted())
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestValidateJWTRejectsExpired(t *testing.T) {
	raw := signToken(t,
		jwt.Claims{Subject: "sub", Expiry: jwt.NewNumericDate(time.Now().Add(-2 * time.Hour))},
		token.AccessClaims{},
	)

	w, c := runValidate(t, "Bearer "+raw)

	require.True(t, c.IsAborted())
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
