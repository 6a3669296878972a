package auth

import (
	"context"

	"opstrack.org/internal/permission"
)

// Principal is an authenticated identity.
type Principal struct {
	ID         int64
	Username   string
	Email      string
	Role       permission.Role
	Active     bool
	Credential Credential
	TeamID     int64
}

// Origin captures where a request came from. It is threaded explicitly from
// the transport layer into session records and audit events.
type Origin struct {
	IP        string
	UserAgent string
}

// PrincipalStore is the durable backing for accounts.
type PrincipalStore interface {
	FindByUsername(ctx context.Context, username string) (*Principal, error)
	FindByID(ctx context.Context, id int64) (*Principal, error)

	// UpdateCredential persists a replacement credential, used by the lazy
	// legacy-to-pbkdf2 upgrade after a successful login.
	UpdateCredential(ctx context.Context, id int64, cred Credential) error

	SetActive(ctx context.Context, id int64, active bool) error
}
