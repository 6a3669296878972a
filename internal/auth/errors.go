package auth

import "errors"

var (
	// ErrInvalidToken covers every token verification failure: malformed
	// signature, expired, revoked, or missing claims. Callers see one
	// uniform error so the failing check is not revealed.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrUnauthorized covers every authentication failure: bad password,
	// failed or expired challenge, unknown or inactive account.
	ErrUnauthorized = errors.New("auth: unauthorized")

	ErrNotFound     = errors.New("auth: not found")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrRateLimited  = errors.New("auth: too many attempts")
)
