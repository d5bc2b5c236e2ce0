package security

import "time"

// NewTestTokenProvider returns a TokenProvider with a fixed secret and short
// TTLs for tests.
func NewTestTokenProvider() (*TokenProvider, error) {
	return NewTokenProvider([]byte("test-signing-secret"), "genflow-auth", time.Hour, 15*time.Minute)
}
