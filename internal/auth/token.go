package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"opstrack.org/internal/ids"
	"opstrack.org/internal/obs"
	"opstrack.org/internal/permission"
	"opstrack.org/internal/session"
)

const defaultTokenTTL = 12 * time.Hour

// Claims are the signed identity claims carried by a bearer token. The
// registered ID claim is the token id, the sole revocation handle.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// SubjectID parses the registered subject claim into the principal id.
func (c *Claims) SubjectID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// TokenService issues, verifies and rotates signed identity tokens. Every
// issued token has a matching session record in the ledger; issuance is not
// complete until that record exists.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	ledger *session.Ledger
	now    func() time.Time
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithTokenTTL overrides the token lifetime.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithTokenClock overrides the time source (useful for tests).
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService constructs a token service signing with the process-wide
// secret.
func NewTokenService(secret []byte, issuer string, ledger *session.Ledger, opts ...TokenOption) (*TokenService, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: token secret is required")
	}
	if strings.TrimSpace(issuer) == "" {
		return nil, errors.New("auth: issuer is required")
	}
	if ledger == nil {
		return nil, errors.New("auth: session ledger is required")
	}
	s := &TokenService{
		secret: secret,
		issuer: issuer,
		ttl:    defaultTokenTTL,
		ledger: ledger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs a fresh token for the principal and durably records the
// session before returning. A ledger failure fails the issuance.
func (s *TokenService) Issue(ctx context.Context, p Principal, origin Origin) (string, string, time.Time, error) {
	now := s.now().UTC()
	tokenID := ids.New()
	expiresAt := now.Add(s.ttl)

	claims := Claims{
		Username: p.Username,
		Role:     string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(p.ID, 10),
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	rec := session.Record{
		TokenID:   tokenID,
		SubjectID: p.ID,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
		OriginIP:  origin.IP,
		UserAgent: origin.UserAgent,
	}
	if err := s.ledger.Create(ctx, rec); err != nil {
		return "", "", time.Time{}, fmt.Errorf("record session: %w", err)
	}
	return signed, tokenID, expiresAt, nil
}

// Verify validates signature, expiry and required claims. Unless the caller
// opts out it also confirms the token id has not been revoked. Every
// failure mode collapses to ErrInvalidToken.
func (s *TokenService) Verify(ctx context.Context, token string, checkRevocation bool) (*Claims, error) {
	claims, err := s.parse(token)
	if err != nil {
		obs.TokenVerificationsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidToken
	}
	if checkRevocation {
		revoked, err := s.ledger.IsRevoked(ctx, claims.ID)
		if err != nil {
			// Fail closed on a store error rather than accepting a
			// possibly revoked token.
			obs.LogError("auth", err, map[string]any{"op": "revocation_check"})
			obs.TokenVerificationsTotal.WithLabelValues("invalid").Inc()
			return nil, ErrInvalidToken
		}
		if revoked {
			obs.TokenVerificationsTotal.WithLabelValues("revoked").Inc()
			return nil, ErrInvalidToken
		}
	}
	obs.TokenVerificationsTotal.WithLabelValues("ok").Inc()
	return claims, nil
}

// Refresh rotates a token: the old token is verified, durably revoked, and
// only then is a replacement issued for the same principal. After a
// successful refresh the old token can never verify again.
func (s *TokenService) Refresh(ctx context.Context, oldToken string, origin Origin) (string, string, time.Time, error) {
	claims, err := s.Verify(ctx, oldToken, true)
	if err != nil {
		return "", "", time.Time{}, ErrInvalidToken
	}
	subjectID, err := claims.SubjectID()
	if err != nil {
		return "", "", time.Time{}, ErrInvalidToken
	}

	ok, err := s.ledger.Revoke(ctx, claims.ID, "refresh")
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("revoke on refresh: %w", err)
	}
	if !ok {
		// Lost the race against another refresh or an explicit revoke.
		return "", "", time.Time{}, ErrInvalidToken
	}

	role, err := permission.ParseRole(claims.Role)
	if err != nil {
		return "", "", time.Time{}, ErrInvalidToken
	}
	p := Principal{ID: subjectID, Username: claims.Username, Role: role}
	return s.Issue(ctx, p, origin)
}

// Revoke marks the token id revoked. Returns false when no live session
// matched.
func (s *TokenService) Revoke(ctx context.Context, tokenID, reason string) (bool, error) {
	return s.ledger.Revoke(ctx, tokenID, reason)
}

// RevokeAllForSubject revokes every outstanding token for the subject and
// returns how many sessions were live.
func (s *TokenService) RevokeAllForSubject(ctx context.Context, subjectID int64, reason string) (int, error) {
	return s.ledger.RevokeAllForSubject(ctx, subjectID, reason)
}

func (s *TokenService) parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := s.validateClaims(claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *TokenService) validateClaims(claims *Claims) error {
	if claims.Issuer != s.issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if strings.TrimSpace(claims.ID) == "" {
		return errors.New("token id missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := s.now().UTC()
	if now.After(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}
