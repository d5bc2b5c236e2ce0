package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// TokenDigest returns a SHA-256 hash of the token string, hex-encoded.
// Revocation entries are keyed by digest and reset tickets store the digest
// as their value, so the raw token never lands in the cache backend.
func TokenDigest(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// TokenEqual performs a constant-time comparison of two token strings.
// Used when matching a presented reset token against the stored ticket.
func TokenEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
