package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"opstrack.org/internal/audit"
	"opstrack.org/internal/obs"
)

const (
	loginRateInterval = 12 * time.Second
	loginRateBurst    = 5
	maxLoginLimiters  = 4096
)

// Service is the login orchestrator: the one canonical flow that ties the
// challenge store, the password codec, the token service and the audit
// recorder together.
type Service struct {
	principals PrincipalStore
	tokens     *TokenService
	challenges *ChallengeStore
	recorder   *audit.Recorder
	now        func() time.Time

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithServiceClock overrides the time source (useful for tests).
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService wires the login flow.
func NewService(principals PrincipalStore, tokens *TokenService, challenges *ChallengeStore, recorder *audit.Recorder, opts ...ServiceOption) (*Service, error) {
	if principals == nil {
		return nil, errors.New("auth: principal store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	if challenges == nil {
		return nil, errors.New("auth: challenge store is required")
	}
	if recorder == nil {
		return nil, errors.New("auth: audit recorder is required")
	}
	s := &Service{
		principals: principals,
		tokens:     tokens,
		challenges: challenges,
		recorder:   recorder,
		now:        time.Now,
		limiters:   make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// LoginRequest carries one authentication attempt. Password and
// ChallengeResponse are mutually exclusive: a request presenting both is
// rejected as invalid input.
type LoginRequest struct {
	Username          string
	Password          string
	ChallengeResponse string
	Origin            Origin
}

// LoginResult is a successful authentication outcome.
type LoginResult struct {
	Token     string
	TokenID   string
	ExpiresAt time.Time
	Principal Principal
}

// Challenge issues a login nonce for the identifier. A nonce is returned
// whether or not the account exists, so the endpoint cannot be used to
// enumerate usernames.
func (s *Service) Challenge(username string) (string, time.Time, error) {
	username = normalizeUsername(username)
	if username == "" {
		return "", time.Time{}, ErrInvalidInput
	}
	nonce, expiresAt := s.challenges.Issue(username)
	return nonce, expiresAt, nil
}

// Login authenticates the request and issues a token. All authentication
// failures collapse to ErrUnauthorized so the caller cannot tell which
// check failed.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	username := normalizeUsername(req.Username)
	if username == "" {
		return LoginResult{}, ErrInvalidInput
	}
	if req.Password != "" && req.ChallengeResponse != "" {
		return LoginResult{}, ErrInvalidInput
	}
	if req.Password == "" && req.ChallengeResponse == "" {
		return LoginResult{}, ErrInvalidInput
	}
	if !s.allow(username) {
		obs.LoginsTotal.WithLabelValues("rate_limited").Inc()
		return LoginResult{}, ErrRateLimited
	}

	p, err := s.principals.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.LoginsTotal.WithLabelValues("failure").Inc()
			return LoginResult{}, ErrUnauthorized
		}
		return LoginResult{}, err
	}
	if !p.Active {
		obs.LoginsTotal.WithLabelValues("failure").Inc()
		return LoginResult{}, ErrUnauthorized
	}

	if req.ChallengeResponse != "" {
		if !s.verifyChallengeResponse(username, p.Credential, req.ChallengeResponse) {
			obs.LoginsTotal.WithLabelValues("failure").Inc()
			return LoginResult{}, ErrUnauthorized
		}
	} else {
		if !VerifyCredential(req.Password, p.Credential) {
			obs.LoginsTotal.WithLabelValues("failure").Inc()
			return LoginResult{}, ErrUnauthorized
		}
		s.maybeUpgradeCredential(ctx, p, req.Password)
	}

	token, tokenID, expiresAt, err := s.tokens.Issue(ctx, *p, req.Origin)
	if err != nil {
		return LoginResult{}, err
	}

	obs.LoginsTotal.WithLabelValues("success").Inc()
	s.recorder.Record(ctx, audit.Event{
		ActorID:       p.ID,
		ActorUsername: p.Username,
		ActorRole:     string(p.Role),
		Action:        audit.ActionCreate,
		ResourceKind:  "session",
		ResourceID:    tokenID,
		TeamID:        p.TeamID,
		Severity:      audit.SeverityInfo,
		Detail:        map[string]any{"method": loginMethod(req)},
		OriginIP:      req.Origin.IP,
		UserAgent:     req.Origin.UserAgent,
	})

	return LoginResult{Token: token, TokenID: tokenID, ExpiresAt: expiresAt, Principal: *p}, nil
}

// Logout revokes the presented token. An already invalid token yields
// ErrInvalidToken; a valid one is revoked with reason "logout".
func (s *Service) Logout(ctx context.Context, token string, origin Origin) error {
	claims, err := s.tokens.Verify(ctx, token, true)
	if err != nil {
		return ErrInvalidToken
	}
	ok, err := s.tokens.Revoke(ctx, claims.ID, "logout")
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidToken
	}
	subjectID, _ := claims.SubjectID()
	s.recorder.Record(ctx, audit.Event{
		ActorID:       subjectID,
		ActorUsername: claims.Username,
		ActorRole:     claims.Role,
		Action:        audit.ActionDelete,
		ResourceKind:  "session",
		ResourceID:    claims.ID,
		Severity:      audit.SeverityInfo,
		OriginIP:      origin.IP,
		UserAgent:     origin.UserAgent,
	})
	return nil
}

// verifyChallengeResponse consumes the pending nonce and recomputes the
// expected HMAC. The nonce is gone after this call whatever the outcome.
func (s *Service) verifyChallengeResponse(username string, cred Credential, supplied string) bool {
	nonce, ok := s.challenges.Consume(username)
	if !ok {
		return false
	}
	expected := ChallengeResponse(cred.HashBytes(), nonce)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) == 1
}

// maybeUpgradeCredential re-hashes a legacy credential with PBKDF2 after a
// successful password verification. An upgrade failure is logged and the
// login proceeds; the old credential still works.
func (s *Service) maybeUpgradeCredential(ctx context.Context, p *Principal, password string) {
	if !p.Credential.IsLegacy() {
		return
	}
	upgraded, err := HashCredential(password, p.Username, FormatPBKDF2)
	if err != nil {
		obs.LogError("auth", err, map[string]any{"op": "credential_upgrade", "subject": p.ID})
		return
	}
	if err := s.principals.UpdateCredential(ctx, p.ID, upgraded); err != nil {
		obs.LogError("auth", err, map[string]any{"op": "credential_upgrade", "subject": p.ID})
		return
	}
	p.Credential = upgraded
}

// allow applies the per-identifier login throttle.
func (s *Service) allow(username string) bool {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	limiter, ok := s.limiters[username]
	if !ok {
		if len(s.limiters) >= maxLoginLimiters {
			// Rare reset under identifier churn; refilling costs one
			// burst window per active identifier.
			s.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(rate.Every(loginRateInterval), loginRateBurst)
		s.limiters[username] = limiter
	}
	return limiter.Allow()
}

func loginMethod(req LoginRequest) string {
	if req.ChallengeResponse != "" {
		return "challenge_response"
	}
	return "password"
}

func normalizeUsername(username string) string {
	return strings.TrimSpace(strings.ToLower(username))
}
