package permission

import (
	"fmt"
	"strings"
)

// Role is the coarse-grained account role. Roles form a total order and act
// as the default permission baseline when no explicit team grant exists.
type Role string

const (
	RoleViewer     Role = "viewer"
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

var roleRanks = map[Role]int{
	RoleViewer:     1,
	RoleUser:       2,
	RoleAdmin:      3,
	RoleSuperAdmin: 4,
}

// Rank returns the position of the role in the hierarchy; zero for unknown.
func (r Role) Rank() int {
	return roleRanks[r]
}

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r.Rank() > 0
}

// ParseRole normalizes a stored role string.
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(strings.ToLower(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}
	return r, nil
}

// HasRole reports whether actual satisfies required in hierarchy order.
// Unknown roles never satisfy anything.
func HasRole(actual, required Role) bool {
	if !actual.Valid() || !required.Valid() {
		return false
	}
	return actual.Rank() >= required.Rank()
}

// Permission is a per-team capability level, ordered read < write < admin.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
	PermissionAdmin Permission = "admin"
)

var permissionRanks = map[Permission]int{
	PermissionRead:  1,
	PermissionWrite: 2,
	PermissionAdmin: 3,
}

// Rank returns the position of the permission in its order; zero for unknown.
func (p Permission) Rank() int {
	return permissionRanks[p]
}

// Valid reports whether the permission is one of the known values.
func (p Permission) Valid() bool {
	return p.Rank() > 0
}

// ParsePermission normalizes a stored permission string.
func ParsePermission(s string) (Permission, error) {
	p := Permission(strings.TrimSpace(strings.ToLower(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown permission %q", ErrInvalidInput, s)
	}
	return p, nil
}

// DefaultPermission maps a role to its team-level default. The second return
// is false when the role carries no default at all.
func DefaultPermission(r Role) (Permission, bool) {
	switch r {
	case RoleAdmin, RoleSuperAdmin:
		return PermissionAdmin, true
	case RoleUser:
		return PermissionWrite, true
	case RoleViewer:
		return PermissionRead, true
	default:
		return "", false
	}
}
