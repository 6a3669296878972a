package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"opstrack.org/internal/permission"
	"opstrack.org/internal/session"
)

type fakeSessionStore struct {
	records map[string]*session.Record
	fail    bool
}

var errSessionStoreDown = errors.New("session store down")

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{records: map[string]*session.Record{}}
}

func (s *fakeSessionStore) Create(_ context.Context, rec session.Record) error {
	if s.fail {
		return errSessionStoreDown
	}
	if _, ok := s.records[rec.TokenID]; ok {
		return session.ErrDuplicateToken
	}
	clone := rec
	s.records[rec.TokenID] = &clone
	return nil
}

func (s *fakeSessionStore) Get(_ context.Context, tokenID string) (session.Record, error) {
	if s.fail {
		return session.Record{}, errSessionStoreDown
	}
	rec, ok := s.records[tokenID]
	if !ok {
		return session.Record{}, session.ErrNotFound
	}
	return *rec, nil
}

func (s *fakeSessionStore) MarkRevoked(_ context.Context, tokenID, reason string, at time.Time) (bool, error) {
	if s.fail {
		return false, errSessionStoreDown
	}
	rec, ok := s.records[tokenID]
	if !ok || rec.Revoked {
		return false, nil
	}
	rec.Revoked = true
	rec.RevokedAt = &at
	rec.RevokedReason = reason
	return true, nil
}

func (s *fakeSessionStore) MarkRevokedBySubject(_ context.Context, subjectID int64, reason string, at time.Time) (int, error) {
	if s.fail {
		return 0, errSessionStoreDown
	}
	count := 0
	for _, rec := range s.records {
		if rec.SubjectID == subjectID && !rec.Revoked {
			rec.Revoked = true
			rec.RevokedAt = &at
			rec.RevokedReason = reason
			count++
		}
	}
	return count, nil
}

func (s *fakeSessionStore) DeleteExpired(_ context.Context, now time.Time, retention time.Duration) (int, error) {
	count := 0
	for id, rec := range s.records {
		if now.After(rec.ExpiresAt) || (rec.RevokedAt != nil && now.Sub(*rec.RevokedAt) > retention) {
			delete(s.records, id)
			count++
		}
	}
	return count, nil
}

func newTestTokenService(t *testing.T, store session.Store, opts ...TokenOption) *TokenService {
	t.Helper()
	ledger, err := session.NewLedger(store, 64)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	svc, err := NewTokenService([]byte("test-secret"), "opstrack-test", ledger, opts...)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return svc
}

func testPrincipal() Principal {
	return Principal{ID: 42, Username: "alice", Role: permission.RoleUser, Active: true, TeamID: 5}
}

func TestIssueAndVerify(t *testing.T) {
	store := newFakeSessionStore()
	svc := newTestTokenService(t, store)
	ctx := context.Background()

	token, tokenID, expiresAt, err := svc.Issue(ctx, testPrincipal(), Origin{IP: "10.0.0.1", UserAgent: "cli"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if tokenID == "" || !expiresAt.After(time.Now()) {
		t.Fatalf("bad issue result: id=%q exp=%v", tokenID, expiresAt)
	}

	rec, ok := store.records[tokenID]
	if !ok {
		t.Fatal("no session record created")
	}
	if rec.Revoked || rec.SubjectID != 42 || rec.OriginIP != "10.0.0.1" || rec.UserAgent != "cli" {
		t.Fatalf("unexpected session record: %+v", rec)
	}

	claims, err := svc.Verify(ctx, token, true)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Username != "alice" || claims.Role != "user" || claims.ID != tokenID {
		t.Fatalf("claims mismatch: %+v", claims)
	}
	subjectID, err := claims.SubjectID()
	if err != nil || subjectID != 42 {
		t.Fatalf("subject id: %d, %v", subjectID, err)
	}
}

func TestIssueFailsWhenLedgerFails(t *testing.T) {
	store := newFakeSessionStore()
	store.fail = true
	svc := newTestTokenService(t, store)

	if _, _, _, err := svc.Issue(context.Background(), testPrincipal(), Origin{}); err == nil {
		t.Fatal("issuance succeeded without a session record")
	}
}

func TestVerifyAfterRevoke(t *testing.T) {
	store := newFakeSessionStore()
	svc := newTestTokenService(t, store)
	ctx := context.Background()

	token, tokenID, _, err := svc.Issue(ctx, testPrincipal(), Origin{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	ok, err := svc.Revoke(ctx, tokenID, "logout")
	if err != nil || !ok {
		t.Fatalf("Revoke: ok=%v err=%v", ok, err)
	}

	// Immediately after the revoking call returns, verification must fail.
	if _, err := svc.Verify(ctx, token, true); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("revoked token verified: %v", err)
	}

	// Skipping the revocation check still validates the signature.
	if _, err := svc.Verify(ctx, token, false); err != nil {
		t.Fatalf("signature-only verify failed: %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := newTestTokenService(t, newFakeSessionStore())
	ctx := context.Background()

	for _, token := range []string{"", "garbage", "a.b.c", strings.Repeat("x", 512)} {
		if _, err := svc.Verify(ctx, token, true); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	svc := newTestTokenService(t, newFakeSessionStore())
	ctx := context.Background()

	token, _, _, err := svc.Issue(ctx, testPrincipal(), Origin{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Flip a character in the payload segment.
	parts := strings.Split(token, ".")
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	if _, err := svc.Verify(ctx, tampered, false); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("tampered token accepted: %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	current := time.Now()
	clock := func() time.Time { return current }
	svc := newTestTokenService(t, newFakeSessionStore(), WithTokenTTL(time.Hour), WithTokenClock(clock))
	ctx := context.Background()

	token, _, _, err := svc.Issue(ctx, testPrincipal(), Origin{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	current = current.Add(2 * time.Hour)
	if _, err := svc.Verify(ctx, token, false); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token accepted: %v", err)
	}
}

func TestVerifyFailsClosedOnStoreError(t *testing.T) {
	store := newFakeSessionStore()
	svc := newTestTokenService(t, store)
	ctx := context.Background()

	token, _, _, err := svc.Issue(ctx, testPrincipal(), Origin{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	store.fail = true
	if _, err := svc.Verify(ctx, token, true); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected fail-closed on store error, got %v", err)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	store := newFakeSessionStore()
	svc := newTestTokenService(t, store)
	ctx := context.Background()

	oldToken, oldID, _, err := svc.Issue(ctx, testPrincipal(), Origin{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	newToken, newID, _, err := svc.Refresh(ctx, oldToken, Origin{IP: "10.0.0.2"})
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if newID == oldID {
		t.Fatal("refresh reused the token id")
	}

	if _, err := svc.Verify(ctx, oldToken, true); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("old token verified after refresh: %v", err)
	}
	claims, err := svc.Verify(ctx, newToken, true)
	if err != nil {
		t.Fatalf("new token rejected: %v", err)
	}
	if claims.Username != "alice" || claims.Role != "user" {
		t.Fatalf("refresh lost principal claims: %+v", claims)
	}

	oldRec := store.records[oldID]
	if !oldRec.Revoked || oldRec.RevokedReason != "refresh" {
		t.Fatalf("old session not revoked with refresh reason: %+v", oldRec)
	}

	// A second refresh of the old token must fail.
	if _, _, _, err := svc.Refresh(ctx, oldToken, Origin{}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("stale refresh accepted: %v", err)
	}
}

func TestRevokeAllForSubject(t *testing.T) {
	store := newFakeSessionStore()
	svc := newTestTokenService(t, store)
	ctx := context.Background()

	var tokens []string
	for i := 0; i < 3; i++ {
		token, _, _, err := svc.Issue(ctx, testPrincipal(), Origin{})
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		tokens = append(tokens, token)
	}
	other := testPrincipal()
	other.ID = 99
	otherToken, _, _, err := svc.Issue(ctx, other, Origin{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	count, err := svc.RevokeAllForSubject(ctx, 42, "password_change")
	if err != nil {
		t.Fatalf("RevokeAllForSubject: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 revoked sessions, got %d", count)
	}

	for i, token := range tokens {
		if _, err := svc.Verify(ctx, token, true); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %d still valid after subject revocation", i)
		}
	}
	if _, err := svc.Verify(ctx, otherToken, true); err != nil {
		t.Fatalf("unrelated subject's token rejected: %v", err)
	}
}
