package rbac

import (
	"errors"
	"strings"
)

// Role represents an organization-level role
type Role string

// Built-in roles, from most to least privileged
const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
	RoleViewer  Role = "viewer"
)

// ErrInvalidRole is returned when a role string is outside the built-in set
var ErrInvalidRole = errors.New("invalid role")

// String returns the role name
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the role is one of the built-in roles
func (r Role) IsValid() bool {
	_, ok := RoleIndex(r)
	return ok
}

// normalize lowercases and trims a role name for lookups
func (r Role) normalize() Role {
	return Role(strings.ToLower(strings.TrimSpace(string(r))))
}

// Permission is a resource:action key from the permission catalog
type Permission string

// Resource returns the part of the key before the colon
func (p Permission) Resource() string {
	resource, _, _ := strings.Cut(string(p), ":")
	return resource
}

// Action returns the part of the key after the colon
func (p Permission) Action() string {
	_, action, _ := strings.Cut(string(p), ":")
	return action
}

// String returns the permission key
func (p Permission) String() string {
	return string(p)
}

// Organization permissions
const (
	PermOrgRead   Permission = "org:read"
	PermOrgUpdate Permission = "org:update"
	PermOrgDelete Permission = "org:delete"
)

// Membership permissions
const (
	PermUserRead       Permission = "user:read"
	PermUserInvite     Permission = "user:invite"
	PermUserRemove     Permission = "user:remove"
	PermUserUpdateRole Permission = "user:update_role"
)

// Affiliate program permissions
const (
	PermProgramRead   Permission = "program:read"
	PermProgramCreate Permission = "program:create"
	PermProgramUpdate Permission = "program:update"
	PermProgramDelete Permission = "program:delete"
)

// Billing, analytics and audit permissions
const (
	PermBillingRead   Permission = "billing:read"
	PermBillingManage Permission = "billing:manage"
	PermAnalyticsRead Permission = "analytics:read"
	PermAuditRead     Permission = "audit:read"
)
