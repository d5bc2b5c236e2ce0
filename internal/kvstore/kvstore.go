// Package kvstore provides the transient key-value backend used by the
// revocation cache, the rate limiter, and password-reset tickets. The
// interface matches what a Redis-style backend offers (set-with-TTL, get,
// delete, atomic increment-with-TTL); the in-memory implementation is the
// default for a single-process deployment. Everything stored here is
// advisory or reconstructible; the durable stores stay in Postgres.
package kvstore

import (
	"context"
	"sync"
	"time"
)

// Store is a TTL-bounded key-value store.
type Store interface {
	// Set stores value under key for ttl. A non-positive ttl is rejected
	// silently (the entry would already be expired).
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns the value for key. ok is false if the key is missing or
	// its TTL has passed.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Incr atomically increments the counter at key and returns the new
	// value. The first increment in a window starts the TTL clock; later
	// increments do not extend it.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type entry struct {
	value     string
	count     int64
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation. Expired entries are
// treated as absent on read and reaped lazily.
type MemoryStore struct {
	mu   sync.Mutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: time.Now,
	}
}

// Set stores value under key for ttl.
func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = entry{value: value, expiresAt: s.nowF().Add(ttl)}
	return nil
}

// Get returns the value for key if present and not expired.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.After(s.nowF()) {
		delete(s.m, key)
		return "", false, nil
	}
	return e.value, true, nil
}

// Delete removes key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

// Incr atomically increments the counter at key, starting the TTL window on
// the first increment.
func (s *MemoryStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowF()
	e, ok := s.m[key]
	if !ok || !e.expiresAt.After(now) {
		e = entry{count: 0, expiresAt: now.Add(ttl)}
	}
	e.count++
	s.m[key] = e
	return e.count, nil
}
