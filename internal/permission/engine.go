package permission

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"opstrack.org/internal/cache"
)

var (
	ErrNotFound     = errors.New("permission: not found")
	ErrInvalidInput = errors.New("permission: invalid input")
)

// Grant is an explicit per-team permission override for one subject. It
// supersedes the subject's role default for that team only.
type Grant struct {
	SubjectID  int64
	TeamID     int64
	Permission Permission
}

// GrantStore is the durable backing for explicit team grants.
type GrantStore interface {
	Get(ctx context.Context, subjectID, teamID int64) (Grant, error)
	ListBySubject(ctx context.Context, subjectID int64) ([]Grant, error)
	Upsert(ctx context.Context, grant Grant) error
	Delete(ctx context.Context, subjectID, teamID int64) error
}

// TeamDirectory resolves team membership outside the grant table.
type TeamDirectory interface {
	PrimaryTeamID(ctx context.Context, subjectID int64) (int64, error)
	ListTeamIDs(ctx context.Context) ([]int64, error)
}

// Decision is the outcome of a permission check. Reason is for internal
// logging; it is not shown to end users.
type Decision struct {
	Allowed bool
	Reason  string
}

type grantKey struct {
	subjectID int64
	teamID    int64
}

type grantEntry struct {
	permission Permission
	present    bool
}

// Engine resolves effective team permissions from the role hierarchy plus
// explicit grants, memoizing grant lookups with explicit invalidation.
// Grant mutations go through the engine so the cache can never go stale:
// every invalidation bumps gen, and a fill that started before the bump
// discards its result instead of re-installing a pre-mutation read.
type Engine struct {
	grants GrantStore
	teams  TeamDirectory

	gen        atomic.Uint64
	grantCache *cache.Bounded[grantKey, grantEntry]
	teamCache  *cache.Bounded[int64, []int64]
}

// NewEngine constructs a permission engine with a bounded memoization cache.
func NewEngine(grants GrantStore, teams TeamDirectory, cacheSize int) (*Engine, error) {
	if grants == nil {
		return nil, errors.New("permission: grant store is required")
	}
	if teams == nil {
		return nil, errors.New("permission: team directory is required")
	}
	if cacheSize <= 0 {
		cacheSize = 8192
	}
	return &Engine{
		grants:     grants,
		teams:      teams,
		grantCache: cache.NewBounded[grantKey, grantEntry](cacheSize),
		teamCache:  cache.NewBounded[int64, []int64](cacheSize),
	}, nil
}

// CheckTeamPermission resolves the subject's effective permission for the
// team and compares it against required. Absence of any applicable grant or
// role mapping denies.
func (e *Engine) CheckTeamPermission(ctx context.Context, subjectID, teamID int64, required Permission, role Role) (Decision, error) {
	if !required.Valid() {
		return Decision{}, fmt.Errorf("%w: required permission %q", ErrInvalidInput, required)
	}
	if role == RoleSuperAdmin {
		return Decision{Allowed: true, Reason: "super_admin"}, nil
	}

	effective, source, err := e.effectivePermission(ctx, subjectID, teamID, role)
	if err != nil {
		return Decision{}, err
	}
	if !effective.Valid() {
		return Decision{Allowed: false, Reason: "no applicable grant or role default"}, nil
	}
	if effective.Rank() >= required.Rank() {
		return Decision{Allowed: true, Reason: source}, nil
	}
	return Decision{
		Allowed: false,
		Reason:  fmt.Sprintf("%s %s below required %s", source, effective, required),
	}, nil
}

// AccessibleTeams returns the union of the subject's primary team and every
// team with an explicit grant. Super admins see all teams.
func (e *Engine) AccessibleTeams(ctx context.Context, subjectID int64, role Role) (map[int64]struct{}, error) {
	if role == RoleSuperAdmin {
		all, err := e.teams.ListTeamIDs(ctx)
		if err != nil {
			return nil, err
		}
		out := make(map[int64]struct{}, len(all))
		for _, id := range all {
			out[id] = struct{}{}
		}
		return out, nil
	}

	if ids, ok := e.teamCache.Get(subjectID); ok {
		return toSet(ids), nil
	}
	gen := e.gen.Load()

	var ids []int64
	primary, err := e.teams.PrimaryTeamID(ctx, subjectID)
	switch {
	case err == nil:
		ids = append(ids, primary)
	case errors.Is(err, ErrNotFound):
		// No primary team; grants alone decide.
	default:
		return nil, err
	}

	grants, err := e.grants.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	for _, g := range grants {
		ids = append(ids, g.TeamID)
	}

	if e.gen.Load() == gen {
		e.teamCache.Put(subjectID, ids)
	}
	return toSet(ids), nil
}

// SetGrant writes an explicit grant and invalidates cached results before
// returning, so no caller can observe the old permission after success.
func (e *Engine) SetGrant(ctx context.Context, grant Grant) error {
	if !grant.Permission.Valid() {
		return fmt.Errorf("%w: permission %q", ErrInvalidInput, grant.Permission)
	}
	if err := e.grants.Upsert(ctx, grant); err != nil {
		return err
	}
	e.Invalidate(grant.SubjectID, grant.TeamID)
	return nil
}

// RemoveGrant deletes an explicit grant, invalidating before returning.
func (e *Engine) RemoveGrant(ctx context.Context, subjectID, teamID int64) error {
	if err := e.grants.Delete(ctx, subjectID, teamID); err != nil {
		return err
	}
	e.Invalidate(subjectID, teamID)
	return nil
}

// Invalidate drops the memoized result for one (subject, team) pair along
// with the subject's team set, and voids every fill still in flight.
func (e *Engine) Invalidate(subjectID, teamID int64) {
	e.gen.Add(1)
	e.grantCache.Delete(grantKey{subjectID: subjectID, teamID: teamID})
	e.teamCache.Delete(subjectID)
}

// InvalidateSubject drops every memoized result for the subject.
func (e *Engine) InvalidateSubject(subjectID int64) {
	e.gen.Add(1)
	e.grantCache.DeleteFunc(func(k grantKey) bool { return k.subjectID == subjectID })
	e.teamCache.Delete(subjectID)
}

// effectivePermission returns the explicit grant when one exists, otherwise
// the role default. An invalid zero Permission means no mapping applies.
func (e *Engine) effectivePermission(ctx context.Context, subjectID, teamID int64, role Role) (Permission, string, error) {
	key := grantKey{subjectID: subjectID, teamID: teamID}
	entry, ok := e.grantCache.Get(key)
	if !ok {
		// Snapshot the generation before the store read. If an
		// invalidation lands while the read is in flight, the result may
		// predate the mutation and must not be cached.
		gen := e.gen.Load()
		grant, err := e.grants.Get(ctx, subjectID, teamID)
		switch {
		case err == nil:
			entry = grantEntry{permission: grant.Permission, present: true}
		case errors.Is(err, ErrNotFound):
			entry = grantEntry{}
		default:
			return "", "", err
		}
		if e.gen.Load() == gen {
			e.grantCache.Put(key, entry)
		}
	}

	if entry.present {
		return entry.permission, "explicit grant", nil
	}
	if def, ok := DefaultPermission(role); ok {
		return def, "role default", nil
	}
	return "", "", nil
}

func toSet(ids []int64) map[int64]struct{} {
	out := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}
