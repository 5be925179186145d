// Package rbac defines the built-in organization roles, the permission
// catalog and the role hierarchy.
//
// # Roles
//
// Roles are ordered from most to least privileged:
//
//	owner > admin > manager > member > viewer
//
// The ordering drives CanManageRole: a role may only invite, promote, demote
// or remove roles strictly below it. Nobody manages an owner.
//
// # Permissions
//
// Permissions are resource:action keys from a closed catalog:
//
//	org:read, org:update, org:delete
//	user:read, user:invite, user:remove, user:update_role
//	program:read, program:create, program:update, program:delete
//	billing:read, billing:manage
//	analytics:read, audit:read
//
// Checks fail closed. HasPermission returns false for unknown roles and
// unknown permissions:
//
//	if !rbac.HasPermission(ctx.Role, rbac.PermUserInvite) {
//		return orgs.ErrForbidden
//	}
//
// Raw role strings from requests are converted once with ParseRole and
// passed around as Role afterwards.
//
// All tables in this package are immutable and safe for concurrent use.
package rbac
