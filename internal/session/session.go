package session

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("session: not found")

	// ErrDuplicateToken indicates a token id collision on create. Token ids
	// are globally unique, so this is an integrity violation and the
	// operation fails closed.
	ErrDuplicateToken = errors.New("session: duplicate token id")
)

// Record is the durable trace of one issued token. It is mutated exactly
// once (revocation) or never, and removed only by the retention sweep.
type Record struct {
	TokenID       string
	SubjectID     int64
	IssuedAt      time.Time
	ExpiresAt     time.Time
	Revoked       bool
	RevokedAt     *time.Time
	RevokedReason string
	OriginIP      string
	UserAgent     string
}
