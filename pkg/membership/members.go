package membership

import (
	"context"
	"fmt"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/audit"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/orgs"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/rbac"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/tenant"
)

// ChangeRole moves an active member of the actor's organization to newRole.
// The actor must outrank both the current and the new role, and owners
// cannot be changed. Changing to the current role is a no-op.
func (s *Service) ChangeRole(ctx context.Context, actor *tenant.Context, membershipID int64, newRole rbac.Role) (m *orgs.Membership, err error) {
	ctx, finish := s.begin(ctx, "change_role")
	defer func() { finish(err) }()

	if err = actor.Require(); err != nil {
		return nil, err
	}
	if newRole, err = rbac.ParseRole(newRole.String()); err != nil {
		return nil, err
	}
	target, err := s.loadTarget(ctx, actor, membershipID)
	if err != nil {
		return nil, err
	}
	if !target.IsActive() {
		return nil, fmt.Errorf("%w: member %d", orgs.ErrNotFound, membershipID)
	}
	if target.Role == rbac.RoleOwner {
		return nil, orgs.ErrOwnerProtected
	}
	if err = requirePermission(actor, rbac.PermUserUpdateRole); err != nil {
		return nil, err
	}
	if err = checkRoleChange(actor.Role, target.Role, newRole); err != nil {
		return nil, err
	}
	if target.Role == newRole {
		return target, nil
	}

	oldRole := target.Role
	now := s.now()
	err = s.store.WithinTx(ctx, func(tx orgs.Tx) error {
		actorRole, err := currentActorRole(ctx, tx, actor, rbac.PermUserUpdateRole)
		if err != nil {
			return err
		}
		if err := checkRoleChange(actorRole, oldRole, newRole); err != nil {
			return err
		}
		if err := tx.UpdateMembershipRole(ctx, target.ID, oldRole, newRole, now); err != nil {
			return err
		}
		entry := audit.NewEntry(target.OrganizationID, audit.ActionMemberUpdated, actor.UserID()).
			WithResource(audit.ResourceTypeMembership, formatID(target.ID)).
			WithChanges(&audit.ChangeDetails{
				Before: map[string]any{"role": oldRole.String()},
				After:  map[string]any{"role": newRole.String()},
			})
		return s.record(ctx, tx, entry, now)
	})
	if err != nil {
		return nil, err
	}

	target.Role = newRole
	target.UpdatedAt = now
	s.logTransition(ctx, "Member role changed", map[string]any{
		"org_id":        target.OrganizationID,
		"membership_id": target.ID,
		"from":          oldRole.String(),
		"to":            newRole.String(),
	})
	return target, nil
}

func checkRoleChange(actor, from, to rbac.Role) error {
	if !rbac.CanManageRole(actor, from) || !rbac.CanManageRole(actor, to) {
		return fmt.Errorf("%w: %s cannot change %s to %s", orgs.ErrForbidden, actor, from, to)
	}
	return nil
}

// checkRemoval applies the rules for removing someone else. Owners are
// protected whatever the actor's role.
func checkRemoval(actor, target rbac.Role) error {
	if target == rbac.RoleOwner {
		return orgs.ErrOwnerProtected
	}
	if !rbac.HasPermission(actor, rbac.PermUserRemove) {
		return fmt.Errorf("%w: role %s lacks %s", orgs.ErrForbidden, actor, rbac.PermUserRemove)
	}
	if !rbac.CanManageRole(actor, target) {
		return fmt.Errorf("%w: %s cannot remove %s", orgs.ErrForbidden, actor, target)
	}
	return nil
}

// RemoveMember deletes an active membership. Members may always leave,
// except the last owner; removing someone else needs user:remove and a
// higher role, and owners are never removed by others.
func (s *Service) RemoveMember(ctx context.Context, actor *tenant.Context, membershipID int64) (err error) {
	ctx, finish := s.begin(ctx, "remove_member")
	defer func() { finish(err) }()

	if err = actor.Require(); err != nil {
		return err
	}
	target, err := s.loadTarget(ctx, actor, membershipID)
	if err != nil {
		return err
	}
	if !target.IsActive() {
		return fmt.Errorf("%w: member %d", orgs.ErrNotFound, membershipID)
	}

	self := target.BelongsTo(actor.UserID())
	if !self {
		if err = checkRemoval(actor.Role, target.Role); err != nil {
			return err
		}
	}

	now := s.now()
	err = s.store.WithinTx(ctx, func(tx orgs.Tx) error {
		current, err := reloadTarget(ctx, tx, target)
		if err != nil {
			return err
		}
		if !current.IsActive() {
			return fmt.Errorf("%w: member %d", orgs.ErrNotFound, membershipID)
		}
		if self {
			if current.Role == rbac.RoleOwner {
				owners, err := tx.CountOwners(ctx, current.OrganizationID)
				if err != nil {
					return err
				}
				if owners <= 1 {
					return fmt.Errorf("%w: the last owner cannot leave", orgs.ErrOwnerProtected)
				}
			}
		} else {
			actorRole, err := currentActorRole(ctx, tx, actor, "")
			if err != nil {
				return err
			}
			if err := checkRemoval(actorRole, current.Role); err != nil {
				return err
			}
		}

		if err := tx.DeleteMembership(ctx, current.ID, orgs.MembershipActive, current.Role); err != nil {
			return err
		}
		target = current
		entry := audit.NewEntry(target.OrganizationID, audit.ActionMemberRemoved, actor.UserID()).
			WithResource(audit.ResourceTypeMembership, formatID(target.ID)).
			WithDetail("role", target.Role.String()).
			WithDetail("self", self)
		if target.UserID != nil {
			entry.WithDetail("user_id", *target.UserID)
		}
		return s.record(ctx, tx, entry, now)
	})
	if err != nil {
		return err
	}

	s.logTransition(ctx, "Member removed", map[string]any{
		"org_id":        target.OrganizationID,
		"membership_id": target.ID,
		"self":          self,
	})
	return nil
}

// ListMembers returns the active and pending memberships of the actor's organization
func (s *Service) ListMembers(ctx context.Context, actor *tenant.Context) (members []*orgs.Membership, err error) {
	ctx, finish := s.begin(ctx, "list_members")
	defer func() { finish(err) }()

	if err = requirePermission(actor, rbac.PermUserRead); err != nil {
		return nil, err
	}
	return s.store.ListMembers(ctx, actor.OrganizationID())
}
