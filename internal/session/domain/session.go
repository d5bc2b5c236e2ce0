package domain

import "time"

// Session is the durable allow-list record binding one issued token to a
// user. Its existence is necessary but not sufficient for the token to be
// valid: expiry and the token signature are checked separately.
type Session struct {
	ID        string
	Token     string // unique; the bearer token string itself
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
	ClientIP  string
	UserAgent string
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
