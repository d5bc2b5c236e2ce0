package auth

import "errors"

// Sentinel errors for the auth service; the HTTP layer maps them to status
// codes. ErrInvalidCredentials covers both "unknown email" and "wrong
// password" so responses cannot be used to enumerate accounts.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenRevoked       = errors.New("token revoked")
	ErrSessionNotFound    = errors.New("session not found")
	ErrWorkspaceNotFound  = errors.New("workspace not found")
	ErrInsufficientRole   = errors.New("insufficient role")
	ErrRateLimited        = errors.New("too many attempts")
	ErrStoreUnavailable   = errors.New("store unavailable")
)
