package auth

import (
	"sync"
	"testing"
	"time"
)

func TestChallengeIssueAndVerify(t *testing.T) {
	store := NewChallengeStore(time.Minute)

	nonce, expiresAt := store.Issue("alice")
	if nonce == "" {
		t.Fatal("empty nonce")
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("expiry not in the future: %v", expiresAt)
	}

	if !store.Verify("alice", nonce) {
		t.Fatal("valid nonce rejected")
	}
	// One-time: the same nonce never verifies twice.
	if store.Verify("alice", nonce) {
		t.Fatal("nonce replayed")
	}
}

func TestChallengeMismatchConsumesEntry(t *testing.T) {
	store := NewChallengeStore(time.Minute)

	nonce, _ := store.Issue("bob")
	if store.Verify("bob", "wrong-nonce") {
		t.Fatal("mismatched nonce accepted")
	}
	// The mismatch burned the challenge; even the right nonce fails now.
	if store.Verify("bob", nonce) {
		t.Fatal("entry survived a failed verify")
	}
}

func TestChallengeVerifyUnknownKey(t *testing.T) {
	store := NewChallengeStore(time.Minute)
	if store.Verify("nobody", "whatever") {
		t.Fatal("verify succeeded without a pending challenge")
	}
}

func TestChallengeExpiry(t *testing.T) {
	current := time.Now()
	store := NewChallengeStore(time.Minute, WithChallengeClock(func() time.Time { return current }))

	nonce, _ := store.Issue("carol")
	current = current.Add(2 * time.Minute)

	if store.Verify("carol", nonce) {
		t.Fatal("expired nonce accepted")
	}
}

func TestChallengeReissueOverwrites(t *testing.T) {
	store := NewChallengeStore(time.Minute)

	first, _ := store.Issue("dave")
	second, _ := store.Issue("dave")
	if first == second {
		t.Fatal("expected distinct nonces")
	}

	if store.Verify("dave", first) {
		t.Fatal("overwritten nonce still accepted")
	}
	// The failed verify consumed the entry, so reissue again.
	third, _ := store.Issue("dave")
	if !store.Verify("dave", third) {
		t.Fatal("latest nonce rejected")
	}
}

func TestChallengeConsume(t *testing.T) {
	store := NewChallengeStore(time.Minute)

	nonce, _ := store.Issue("erin")
	got, ok := store.Consume("erin")
	if !ok || got != nonce {
		t.Fatalf("Consume = %q, %v; want %q, true", got, ok, nonce)
	}
	if _, ok := store.Consume("erin"); ok {
		t.Fatal("second consume succeeded")
	}
}

func TestChallengeSweep(t *testing.T) {
	current := time.Now()
	store := NewChallengeStore(time.Minute, WithChallengeClock(func() time.Time { return current }))

	store.Issue("old")
	current = current.Add(2 * time.Minute)
	store.Issue("fresh")

	if removed := store.Sweep(); removed != 1 {
		t.Fatalf("expected 1 swept entry, got %d", removed)
	}
	if _, ok := store.Consume("fresh"); !ok {
		t.Fatal("fresh entry swept")
	}
}

func TestChallengeConcurrentKeysIndependent(t *testing.T) {
	store := NewChallengeStore(time.Minute)

	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a'+i%26)) + "-worker"
			nonce, _ := store.Issue(key + string(rune('0'+i/26)))
			if nonce == "" {
				errs <- key
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for key := range errs {
		t.Fatalf("empty nonce for %s", key)
	}
}

func TestChallengeResponseDeterministic(t *testing.T) {
	hash := []byte("stored-hash-bytes")
	a := ChallengeResponse(hash, "nonce-1")
	b := ChallengeResponse(hash, "nonce-1")
	c := ChallengeResponse(hash, "nonce-2")
	d := ChallengeResponse([]byte("other-hash"), "nonce-1")

	if a != b {
		t.Fatal("response not deterministic")
	}
	if a == c || a == d {
		t.Fatal("response does not depend on both key and nonce")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256 length 64, got %d", len(a))
	}
}
