package domain

import "time"

// Profile mirrors one row of the profiles table. The ID matches the identity
// the hosted provider assigned to the user, so the two systems join on it.
type Profile struct {
	ID             string
	Email          string
	DisplayName    string
	FailedAttempts int
	Locked         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Identity is the provider-side view of an authenticated user.
type Identity struct {
	ID             string
	Email          string
	EmailConfirmed bool
	Name           string
	AvatarURL      string
}

// Session is what the hosted provider hands back after a successful
// verification or code exchange. Token lifecycle stays with the provider.
type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	User         Identity
}
