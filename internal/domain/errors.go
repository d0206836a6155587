package domain

import "errors"

// Sentinel errors shared between the identity adapter, the repositories, and
// the service layer. Handlers translate these into response codes.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrInvalidState       = errors.New("invalid or expired oauth state")
	ErrTokenInvalid       = errors.New("token invalid")
)
