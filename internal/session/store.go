package session

import (
	"context"
	"time"
)

// Store is the durable backing for session records.
type Store interface {
	// Create persists a new record. Returns ErrDuplicateToken when the
	// token id already exists.
	Create(ctx context.Context, rec Record) error

	// Get returns the record for the token id, or ErrNotFound.
	Get(ctx context.Context, tokenID string) (Record, error)

	// MarkRevoked flips the record to revoked. Returns false when no live
	// record matched (unknown or already revoked).
	MarkRevoked(ctx context.Context, tokenID, reason string, at time.Time) (bool, error)

	// MarkRevokedBySubject revokes every live session for the subject and
	// returns how many were affected.
	MarkRevokedBySubject(ctx context.Context, subjectID int64, reason string, at time.Time) (int, error)

	// DeleteExpired removes records whose expiry has passed, or whose
	// revocation is older than the retention window.
	DeleteExpired(ctx context.Context, now time.Time, retention time.Duration) (int, error)
}
