// Package ids generates the identifiers shared by tokens, session records
// and audit events.
package ids

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// generator serializes access to the monotonic entropy source so ids minted
// within the same millisecond still sort in creation order.
type generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

var gen = &generator{
	entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
}

// New mints a ULID. The identifiers sort lexicographically, so storage
// order follows issue order.
func New() string {
	gen.mu.Lock()
	defer gen.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), gen.entropy).String()
}
