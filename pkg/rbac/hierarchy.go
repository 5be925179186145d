package rbac

import "slices"

// hierarchy is the canonical privilege ordering; lower index means more privilege.
var hierarchy = []Role{RoleOwner, RoleAdmin, RoleManager, RoleMember, RoleViewer}

// Hierarchy returns the built-in roles ordered from most to least privileged
func Hierarchy() []Role {
	return slices.Clone(hierarchy)
}

// RoleIndex returns the position of role in the privilege ordering
func RoleIndex(role Role) (int, bool) {
	i := slices.Index(hierarchy, role.normalize())
	return i, i >= 0
}

// CanManageRole reports whether a holder of manager may invite, promote,
// demote or remove a holder of target. Strictly higher privilege is
// required; a role never manages its own level.
func CanManageRole(manager, target Role) bool {
	mi, ok := RoleIndex(manager)
	if !ok {
		return false
	}
	ti, ok := RoleIndex(target)
	if !ok {
		return false
	}
	return mi < ti
}

// ManageableRoles returns the roles that manager may assign
func ManageableRoles(manager Role) []Role {
	var roles []Role
	for _, role := range hierarchy {
		if CanManageRole(manager, role) {
			roles = append(roles, role)
		}
	}
	return roles
}
