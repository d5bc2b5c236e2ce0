// Package ratelimit bounds authentication attempts per client address using
// an atomic increment-with-expiry counter. It is a secondary defense: when
// the backend fails, callers fail open rather than lock every user out.
package ratelimit

import (
	"context"
	"time"

	"github.com/axedro/genflow-ai/internal/kvstore"
)

const keyPrefix = "ratelimit:"

// Limiter counts attempts per key within a rolling window.
type Limiter struct {
	kv     kvstore.Store
	window time.Duration
	max    int64
}

// NewLimiter returns a Limiter allowing max attempts per window.
func NewLimiter(kv kvstore.Store, window time.Duration, max int) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 5
	}
	return &Limiter{kv: kv, window: window, max: int64(max)}
}

// Allow records one attempt for key and reports whether it is within the
// limit. The backend error, if any, is returned alongside allowed=true so
// the caller can log the degradation and proceed.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := l.kv.Incr(ctx, keyPrefix+key, l.window)
	if err != nil {
		return true, err
	}
	return n <= l.max, nil
}
