package rbac

import (
	"fmt"
	"slices"
)

// RoleDefinition describes a built-in role and the permissions it grants
type RoleDefinition struct {
	Name        Role         `json:"name"`
	DisplayName string       `json:"display_name"`
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions"`
}

// catalog maps every known permission to its description.
var catalog = map[Permission]string{
	PermOrgRead:        "View organization details",
	PermOrgUpdate:      "Update organization settings",
	PermOrgDelete:      "Delete the organization",
	PermUserRead:       "View organization members",
	PermUserInvite:     "Invite new members",
	PermUserRemove:     "Remove members",
	PermUserUpdateRole: "Change member roles",
	PermProgramRead:    "View affiliate programs",
	PermProgramCreate:  "Add affiliate programs",
	PermProgramUpdate:  "Edit affiliate programs",
	PermProgramDelete:  "Delete affiliate programs",
	PermBillingRead:    "View billing and invoices",
	PermBillingManage:  "Manage subscription and payment methods",
	PermAnalyticsRead:  "View analytics dashboards",
	PermAuditRead:      "View the audit log",
}

// catalogOrder is the display order of the catalog.
var catalogOrder = []Permission{
	PermOrgRead, PermOrgUpdate, PermOrgDelete,
	PermUserRead, PermUserInvite, PermUserRemove, PermUserUpdateRole,
	PermProgramRead, PermProgramCreate, PermProgramUpdate, PermProgramDelete,
	PermBillingRead, PermBillingManage,
	PermAnalyticsRead, PermAuditRead,
}

// rolePermissions is the only role -> permission table.
var rolePermissions = map[Role][]Permission{
	RoleOwner: catalogOrder,
	RoleAdmin: {
		PermOrgRead, PermOrgUpdate,
		PermUserRead, PermUserInvite, PermUserRemove, PermUserUpdateRole,
		PermProgramRead, PermProgramCreate, PermProgramUpdate, PermProgramDelete,
		PermBillingRead,
		PermAnalyticsRead, PermAuditRead,
	},
	RoleManager: {
		PermOrgRead,
		PermUserRead, PermUserInvite,
		PermProgramRead, PermProgramCreate, PermProgramUpdate, PermProgramDelete,
		PermAnalyticsRead,
	},
	RoleMember: {
		PermOrgRead,
		PermUserRead,
		PermProgramRead, PermProgramCreate, PermProgramUpdate,
		PermAnalyticsRead,
	},
	RoleViewer: {
		PermOrgRead,
		PermProgramRead,
		PermAnalyticsRead,
	},
}

var roleDisplayNames = map[Role]string{
	RoleOwner:   "Owner",
	RoleAdmin:   "Admin",
	RoleManager: "Manager",
	RoleMember:  "Member",
	RoleViewer:  "Viewer",
}

var roleDescriptions = map[Role]string{
	RoleOwner:   "Full control of the organization, including billing and deletion",
	RoleAdmin:   "Manages members, programs and settings",
	RoleManager: "Manages affiliate programs and invites members",
	RoleMember:  "Adds and edits affiliate programs",
	RoleViewer:  "Read-only access to programs and analytics",
}

// HasPermission reports whether role grants permission.
// Unknown roles are denied.
func HasPermission(role Role, permission Permission) bool {
	perms, ok := rolePermissions[role.normalize()]
	if !ok {
		return false
	}
	return slices.Contains(perms, permission)
}

// RolePermissions returns the permissions granted to role, or an empty
// slice for unknown roles
func RolePermissions(role Role) []Permission {
	perms, ok := rolePermissions[role.normalize()]
	if !ok {
		return []Permission{}
	}
	return slices.Clone(perms)
}

// IsValidRole reports whether s names a built-in role (case-insensitive)
func IsValidRole(s string) bool {
	return Role(s).normalize().IsValid()
}

// ParseRole converts untrusted input into a canonical Role
func ParseRole(s string) (Role, error) {
	role := Role(s).normalize()
	if !role.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return role, nil
}

// RoleDisplayName returns a human-readable role name, or the raw value for
// unknown roles
func RoleDisplayName(role Role) string {
	if name, ok := roleDisplayNames[role.normalize()]; ok {
		return name
	}
	return string(role)
}

// Permissions returns every permission in the catalog
func Permissions() []Permission {
	return slices.Clone(catalogOrder)
}

// IsKnownPermission reports whether p exists in the catalog
func IsKnownPermission(p Permission) bool {
	_, ok := catalog[p]
	return ok
}

// PermissionDescription returns the catalog description of p
func PermissionDescription(p Permission) string {
	return catalog[p]
}

// MustPermission converts s into a Permission, panicking when the key is
// not in the catalog. Intended for package-level declarations.
func MustPermission(s string) Permission {
	p := Permission(s)
	if !IsKnownPermission(p) {
		panic(fmt.Sprintf("rbac: unknown permission %q", s))
	}
	return p
}

// BuiltInRoles returns all built-in role definitions, most privileged first
func BuiltInRoles() []RoleDefinition {
	defs := make([]RoleDefinition, 0, len(hierarchy))
	for _, role := range hierarchy {
		defs = append(defs, RoleDefinition{
			Name:        role,
			DisplayName: roleDisplayNames[role],
			Description: roleDescriptions[role],
			Permissions: RolePermissions(role),
		})
	}
	return defs
}
