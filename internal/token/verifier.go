// Package token verifies access tokens minted by the hosted identity
// provider. The provider signs sessions with a shared HS256 secret; verifying
// locally keeps authenticated reads off the provider's API.
package token

import (
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"

	"github.com/gideonfinance/gideon-auth/internal/domain"
)

// AccessClaims are the provider-specific claims carried next to the
// registered JWT claim set.
type AccessClaims struct {
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// Verifier checks provider access tokens.
type Verifier struct {
	secret []byte
	leeway time.Duration
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), leeway: time.Minute}
}

// Verify parses and validates the token signature and expiry, returning the
// standard and provider claim sets.
func (v *Verifier) Verify(raw string) (*jwt.Claims, *AccessClaims, error) {
	parsed, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, nil, domain.ErrTokenInvalid
	}

	var std jwt.Claims
	var custom AccessClaims
	if err := parsed.Claims(v.secret, &std, &custom); err != nil {
		return nil, nil, domain.ErrTokenInvalid
	}

	if err := std.ValidateWithLeeway(jwt.Expected{Time: time.Now()}, v.leeway); err != nil {
		return nil, nil, domain.ErrTokenInvalid
	}

	return &std, &custom, nil
}
