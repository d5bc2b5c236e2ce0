// Package revocation maintains a transient denylist of explicitly revoked
// bearer tokens. The session store remains the source of truth; this cache
// only shortens the window in which a revoked token could still be accepted,
// so the system stays correct if it is flushed or unavailable.
package revocation

import (
	"context"
	"time"

	"github.com/axedro/genflow-ai/internal/kvstore"
	"github.com/axedro/genflow-ai/internal/security"
)

const keyPrefix = "revoked:"

// Cache is a TTL-bounded token denylist. Entries are keyed by token digest
// and expire no later than the token itself would have.
type Cache struct {
	kv kvstore.Store
}

// NewCache returns a Cache backed by the given key-value store.
func NewCache(kv kvstore.Store) *Cache {
	return &Cache{kv: kv}
}

// Revoke records the token as revoked for remainingTTL. A non-positive TTL
// is a no-op: the token has already expired naturally and the codec rejects
// it without our help.
func (c *Cache) Revoke(ctx context.Context, token string, remainingTTL time.Duration) error {
	if remainingTTL <= 0 {
		return nil
	}
	return c.kv.Set(ctx, keyPrefix+security.TokenDigest(token), "1", remainingTTL)
}

// IsRevoked reports whether the token has been explicitly revoked. A backend
// error is returned alongside false; callers treat it as "not revoked" and
// fall through to the authoritative session store.
func (c *Cache) IsRevoked(ctx context.Context, token string) (bool, error) {
	_, ok, err := c.kv.Get(ctx, keyPrefix+security.TokenDigest(token))
	if err != nil {
		return false, err
	}
	return ok, nil
}
