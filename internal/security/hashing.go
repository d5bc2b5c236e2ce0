package security

import (
	"golang.org/x/crypto/bcrypt"
)

// Hasher wraps bcrypt password hashing at a fixed cost. The cost comes from
// config (BCRYPT_COST), so tests can run at the bcrypt minimum while
// production pays the full work factor.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher, clamping cost into bcrypt's valid range.
// Zero or negative means the bcrypt default.
func NewHasher(cost int) *Hasher {
	switch {
	case cost <= 0:
		cost = bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash returns the bcrypt hash of password in its storable string form.
func (h *Hasher) Hash(password []byte) (string, error) {
	b, err := bcrypt.GenerateFromPassword(password, h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare reports whether password matches the stored hash. A mismatch and a
// malformed hash both come back as a non-nil error; callers treat either as
// bad credentials.
func (h *Hasher) Compare(hash string, password []byte) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), password)
}
