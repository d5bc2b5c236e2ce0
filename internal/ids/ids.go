// Package ids generates session identifiers. ULIDs carry a millisecond
// timestamp plus monotonic randomness, so two sessions opened for the same
// user in the same clock tick still get distinct ids (and therefore distinct
// token strings, which the session store keys on).
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for session keys.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
