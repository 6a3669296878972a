package session

import (
	"context"
	"errors"
	"time"

	"opstrack.org/internal/cache"
	"opstrack.org/internal/obs"
)

// Ledger wraps the durable session store with a bounded positive cache of
// revoked token ids. Negative results are never cached so a fresh
// revocation is visible to the very next check.
type Ledger struct {
	store   Store
	revoked *cache.Bounded[string, time.Time]
	now     func() time.Time
}

// LedgerOption configures Ledger behavior.
type LedgerOption func(*Ledger)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewLedger constructs a Ledger over the given store.
func NewLedger(store Store, cacheSize int, opts ...LedgerOption) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("session: store is required")
	}
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	l := &Ledger{
		store:   store,
		revoked: cache.NewBounded[string, time.Time](cacheSize),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Create persists the record for a freshly issued token.
func (l *Ledger) Create(ctx context.Context, rec Record) error {
	return l.store.Create(ctx, rec)
}

// Get returns the durable record for a token id.
func (l *Ledger) Get(ctx context.Context, tokenID string) (Record, error) {
	return l.store.Get(ctx, tokenID)
}

// IsRevoked reports whether the token id has been revoked. The cache is
// consulted first; on a miss the durable store decides, and only a positive
// answer is cached. An unknown token id is treated as not revoked.
func (l *Ledger) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if _, ok := l.revoked.Get(tokenID); ok {
		return true, nil
	}
	rec, err := l.store.Get(ctx, tokenID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if rec.Revoked {
		l.cacheRevoked(tokenID)
		return true, nil
	}
	return false, nil
}

// Revoke marks the token id revoked. The durable write happens first; the
// cache is only updated after it succeeds, so a failed write is reported as
// a failure rather than silently remembered in memory.
func (l *Ledger) Revoke(ctx context.Context, tokenID, reason string) (bool, error) {
	ok, err := l.store.MarkRevoked(ctx, tokenID, reason, l.now().UTC())
	if err != nil {
		return false, err
	}
	if ok {
		l.cacheRevoked(tokenID)
		obs.RevocationsTotal.WithLabelValues(reason).Inc()
	}
	return ok, nil
}

// RevokeAllForSubject revokes every live session for the subject. The cache
// is not populated here; subsequent checks fall through to the store, which
// already sees the revocations.
func (l *Ledger) RevokeAllForSubject(ctx context.Context, subjectID int64, reason string) (int, error) {
	count, err := l.store.MarkRevokedBySubject(ctx, subjectID, reason, l.now().UTC())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		obs.RevocationsTotal.WithLabelValues(reason).Add(float64(count))
	}
	return count, nil
}

// SweepExpired removes expired durable records and records revoked longer
// ago than the retention window.
func (l *Ledger) SweepExpired(ctx context.Context, retention time.Duration) (int, error) {
	return l.store.DeleteExpired(ctx, l.now().UTC(), retention)
}

func (l *Ledger) cacheRevoked(tokenID string) {
	l.revoked.Put(tokenID, l.now().UTC())
	obs.RevocationCacheSize.Set(float64(l.revoked.Len()))
}
