package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
)

const challengeShardCount = 32

// ChallengeStore issues and verifies one-time, time-boxed nonces for the
// challenge-response handshake. At most one challenge is live per subject
// key; issuing again overwrites it. The map is sharded so different keys do
// not contend on a single lock.
type ChallengeStore struct {
	shards [challengeShardCount]challengeShard
	ttl    time.Duration
	now    func() time.Time
}

type challengeShard struct {
	mu      sync.Mutex
	pending map[string]challengeEntry
}

type challengeEntry struct {
	nonce     string
	expiresAt time.Time
}

// ChallengeOption configures ChallengeStore behavior.
type ChallengeOption func(*ChallengeStore)

// WithChallengeClock overrides the time source (useful for tests).
func WithChallengeClock(fn func() time.Time) ChallengeOption {
	return func(s *ChallengeStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewChallengeStore builds a store whose nonces live for ttl.
func NewChallengeStore(ttl time.Duration, opts ...ChallengeOption) *ChallengeStore {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	s := &ChallengeStore{ttl: ttl, now: time.Now}
	for i := range s.shards {
		s.shards[i].pending = make(map[string]challengeEntry)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue creates a fresh nonce for the subject key, replacing any pending
// challenge for the same key.
func (s *ChallengeStore) Issue(subjectKey string) (string, time.Time) {
	nonce := uuid.NewString()
	expiresAt := s.now().Add(s.ttl)

	shard := s.shard(subjectKey)
	shard.mu.Lock()
	shard.pending[subjectKey] = challengeEntry{nonce: nonce, expiresAt: expiresAt}
	shard.mu.Unlock()

	return nonce, expiresAt
}

// Verify checks the supplied nonce against the pending challenge. It fails
// closed when there is no entry, the entry expired, or the nonce does not
// match. The entry is deleted on every outcome, so a nonce can never be
// replayed.
func (s *ChallengeStore) Verify(subjectKey, suppliedNonce string) bool {
	entry, ok := s.take(subjectKey)
	if !ok {
		return false
	}
	if suppliedNonce == "" || entry.nonce != suppliedNonce {
		return false
	}
	return true
}

// Consume atomically removes and returns the pending nonce for the subject
// key. Used by the login flow, which recomputes the HMAC response itself.
func (s *ChallengeStore) Consume(subjectKey string) (string, bool) {
	entry, ok := s.take(subjectKey)
	if !ok {
		return "", false
	}
	return entry.nonce, true
}

// Sweep evicts expired entries and reports how many were removed.
func (s *ChallengeStore) Sweep() int {
	now := s.now()
	removed := 0
	for i := range s.shards {
		shard := &s.shards[i]
		shard.mu.Lock()
		for key, entry := range shard.pending {
			if now.After(entry.expiresAt) {
				delete(shard.pending, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// take deletes and returns the pending entry, honoring expiry.
func (s *ChallengeStore) take(subjectKey string) (challengeEntry, bool) {
	shard := s.shard(subjectKey)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.pending[subjectKey]
	if !ok {
		return challengeEntry{}, false
	}
	delete(shard.pending, subjectKey)
	if s.now().After(entry.expiresAt) {
		return challengeEntry{}, false
	}
	return entry, true
}

func (s *ChallengeStore) shard(subjectKey string) *challengeShard {
	h := fnv.New32a()
	h.Write([]byte(subjectKey))
	return &s.shards[h.Sum32()%challengeShardCount]
}

// ChallengeResponse computes the handshake response: the hex HMAC-SHA256 of
// the nonce keyed with the stored credential hash bytes. The client derives
// the same value from its copy of the hash, proving knowledge of the secret
// without transmitting it.
func ChallengeResponse(storedHash []byte, nonce string) string {
	mac := hmac.New(sha256.New, storedHash)
	mac.Write([]byte(nonce))
	return hex.EncodeToString(mac.Sum(nil))
}
