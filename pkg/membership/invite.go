package membership

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/audit"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/auth"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/invites"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/orgs"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/rbac"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/tenant"
)

// Invitation is the result of issuing an invite. Token is the only copy
// of the plaintext token; the membership stores its hash.
type Invitation struct {
	Membership *orgs.Membership `json:"membership"`
	Token      string           `json:"token"`
	URL        string           `json:"url"`
	ExpiresAt  time.Time        `json:"expires_at"`
	// DaysRemaining counts down to expiry; zero or less means expired
	DaysRemaining int `json:"days_remaining"`
}

// Invite creates a pending membership for email with role in the actor's
// organization
func (s *Service) Invite(ctx context.Context, actor *tenant.Context, email string, role rbac.Role) (inv *Invitation, err error) {
	ctx, finish := s.begin(ctx, "invite")
	defer func() { finish(err) }()

	if err = requirePermission(actor, rbac.PermUserInvite); err != nil {
		return nil, err
	}
	if role, err = rbac.ParseRole(role.String()); err != nil {
		return nil, err
	}
	if !rbac.CanManageRole(actor.Role, role) {
		return nil, fmt.Errorf("%w: %s cannot invite %s", orgs.ErrForbidden, actor.Role, role)
	}
	if email, err = normalizeEmail(email); err != nil {
		return nil, err
	}

	orgID := actor.OrganizationID()
	if err = s.checkInviteLimit(ctx, orgID); err != nil {
		return nil, err
	}

	token := s.tokens.GenerateToken()
	now := s.now()
	inviter := actor.UserID()
	m := &orgs.Membership{
		OrganizationID:  orgID,
		Role:            role,
		Status:          orgs.MembershipPending,
		InvitedEmail:    email,
		InvitedBy:       &inviter,
		InvitedAt:       &now,
		InviteTokenHash: s.tokens.HashToken(token),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.store.WithinTx(ctx, func(tx orgs.Tx) error {
		actorRole, err := currentActorRole(ctx, tx, actor, rbac.PermUserInvite)
		if err != nil {
			return err
		}
		if !rbac.CanManageRole(actorRole, role) {
			return fmt.Errorf("%w: %s cannot invite %s", orgs.ErrForbidden, actorRole, role)
		}

		existing, err := tx.FindMembershipByEmail(ctx, orgID, email)
		switch {
		case errors.Is(err, orgs.ErrNotFound):
		case err != nil:
			return err
		case existing.IsActive():
			return fmt.Errorf("%w: %s", orgs.ErrAlreadyMember, email)
		case existing.InvitedAt != nil && !s.expired(*existing.InvitedAt):
			return fmt.Errorf("%w: %s already has a pending invitation", orgs.ErrAlreadyMember, email)
		default:
			// expired invitations are replaced by the new one
			if err := tx.DeleteMembership(ctx, existing.ID, orgs.MembershipPending, existing.Role); err != nil {
				return err
			}
		}

		if err := tx.CreateMembership(ctx, m); err != nil {
			return err
		}
		entry := audit.NewEntry(orgID, audit.ActionInviteSent, inviter).
			WithResource(audit.ResourceTypeMembership, formatID(m.ID)).
			WithDetail("email", email).
			WithDetail("role", role.String())
		return s.record(ctx, tx, entry, now)
	})
	if err != nil {
		return nil, err
	}

	s.logTransition(ctx, "Invitation sent", map[string]any{
		"org_id":        orgID,
		"membership_id": m.ID,
		"role":          role.String(),
	})
	return &Invitation{
		Membership:    m,
		Token:         token,
		URL:           s.tokens.CreateInviteURL(m.ID, token),
		ExpiresAt:     s.tokens.ExpiresAt(now),
		DaysRemaining: s.tokens.DaysRemaining(now),
	}, nil
}

// AcceptInvite activates a pending membership for identity. Missing rows,
// memberships that are no longer pending and wrong tokens all report
// ErrNotFound.
func (s *Service) AcceptInvite(ctx context.Context, identity *auth.Identity, membershipID int64, token string) (m *orgs.Membership, err error) {
	ctx, finish := s.begin(ctx, "accept_invite")
	defer func() { finish(err) }()

	if identity == nil || identity.UserID == "" {
		return nil, orgs.ErrUnauthenticated
	}

	m, err = s.store.GetMembership(ctx, membershipID)
	if err != nil {
		return nil, err
	}
	if !m.IsPending() || !s.tokens.VerifyToken(token, m.InviteTokenHash) {
		return nil, fmt.Errorf("%w: invitation %d", orgs.ErrNotFound, membershipID)
	}
	if m.InvitedAt == nil || s.expired(*m.InvitedAt) {
		return nil, fmt.Errorf("%w: invitation %d", orgs.ErrInviteExpired, membershipID)
	}
	if identity.Email != m.InvitedEmail {
		return nil, orgs.ErrEmailMismatch
	}

	org, err := s.store.GetOrganization(ctx, m.OrganizationID)
	if err != nil {
		return nil, err
	}
	if org.Status == orgs.OrgStatusDeleted {
		return nil, fmt.Errorf("%w: organization %d", orgs.ErrNotFound, org.ID)
	}

	now := s.now()
	err = s.store.WithinTx(ctx, func(tx orgs.Tx) error {
		if err := tx.EnsureUser(ctx, &orgs.User{ID: identity.UserID, Email: identity.Email, CreatedAt: now}); err != nil {
			return err
		}
		existing, err := tx.GetMembershipForUser(ctx, m.OrganizationID, identity.UserID)
		switch {
		case errors.Is(err, orgs.ErrNotFound):
		case err != nil:
			return err
		case existing.ID != m.ID:
			return fmt.Errorf("%w: organization %d", orgs.ErrAlreadyMember, m.OrganizationID)
		}

		if err := tx.ActivateMembership(ctx, m.ID, identity.UserID, now); err != nil {
			return err
		}
		entry := audit.NewEntry(m.OrganizationID, audit.ActionInviteAccepted, identity.UserID).
			WithResource(audit.ResourceTypeMembership, formatID(m.ID)).
			WithDetail("role", m.Role.String())
		return s.record(ctx, tx, entry, now)
	})
	if err != nil {
		return nil, err
	}

	userID := identity.UserID
	m.UserID = &userID
	m.Status = orgs.MembershipActive
	m.AcceptedAt = &now
	m.UpdatedAt = now
	s.logTransition(ctx, "Invitation accepted", map[string]any{
		"org_id":        m.OrganizationID,
		"membership_id": m.ID,
	})
	return m, nil
}

// RevokeInvite deletes a pending membership of the actor's organization
func (s *Service) RevokeInvite(ctx context.Context, actor *tenant.Context, membershipID int64) (err error) {
	ctx, finish := s.begin(ctx, "revoke_invite")
	defer func() { finish(err) }()

	if err = requirePermission(actor, rbac.PermUserInvite); err != nil {
		return err
	}
	target, err := s.loadTarget(ctx, actor, membershipID)
	if err != nil {
		return err
	}
	if !target.IsPending() {
		return fmt.Errorf("%w: invitation %d", orgs.ErrNotFound, membershipID)
	}
	if !rbac.CanManageRole(actor.Role, target.Role) {
		return fmt.Errorf("%w: %s cannot revoke a %s invitation", orgs.ErrForbidden, actor.Role, target.Role)
	}

	now := s.now()
	err = s.store.WithinTx(ctx, func(tx orgs.Tx) error {
		actorRole, err := currentActorRole(ctx, tx, actor, rbac.PermUserInvite)
		if err != nil {
			return err
		}
		current, err := reloadTarget(ctx, tx, target)
		if err != nil {
			return err
		}
		if !current.IsPending() {
			return fmt.Errorf("%w: invitation %d", orgs.ErrNotFound, membershipID)
		}
		if !rbac.CanManageRole(actorRole, current.Role) {
			return fmt.Errorf("%w: %s cannot revoke a %s invitation", orgs.ErrForbidden, actorRole, current.Role)
		}
		if err := tx.DeleteMembership(ctx, current.ID, orgs.MembershipPending, current.Role); err != nil {
			return err
		}
		target = current
		entry := audit.NewEntry(target.OrganizationID, audit.ActionInviteRevoked, actor.UserID()).
			WithResource(audit.ResourceTypeMembership, formatID(target.ID)).
			WithDetail("email", target.InvitedEmail).
			WithDetail("role", target.Role.String())
		return s.record(ctx, tx, entry, now)
	})
	if err != nil {
		return err
	}

	s.logTransition(ctx, "Invitation revoked", map[string]any{
		"org_id":        target.OrganizationID,
		"membership_id": target.ID,
	})
	return nil
}

// PurgeExpiredInvites deletes pending memberships whose invitation window
// has closed. Purges are housekeeping and are not audited.
func (s *Service) PurgeExpiredInvites(ctx context.Context) (n int64, err error) {
	ctx, finish := s.begin(ctx, "purge_expired_invites")
	defer func() { finish(err) }()

	cutoff := s.now().Add(-invites.InviteTTL)
	err = s.store.WithinTx(ctx, func(tx orgs.Tx) error {
		var err error
		n, err = tx.DeleteExpiredInvites(ctx, cutoff)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.metrics.RecordPurged(n)
	s.otel.RecordPurged(ctx, n)
	if n > 0 {
		s.logger.FromContext(ctx).WithField("count", n).Info("Purged expired invitations")
	}
	return n, nil
}

// checkInviteLimit applies the per-organization issuance limit. Limiter
// faults are logged and the invite proceeds.
func (s *Service) checkInviteLimit(ctx context.Context, orgID int64) error {
	res, err := s.limiter.Allow(ctx, "org:"+formatID(orgID))
	if err != nil {
		s.metrics.RecordLimiterError()
		s.logger.FromContext(ctx).WithError(err).WithField("org_id", orgID).
			Warn("Invite rate limiter unavailable, allowing request")
		return nil
	}
	if !res.Allowed {
		s.metrics.RecordRateLimited()
		return fmt.Errorf("%w: retry after %s", orgs.ErrRateLimited, res.ResetAfter.Round(time.Second))
	}
	return nil
}

// expired reports whether an invitation sent at invitedAt can no longer be accepted
func (s *Service) expired(invitedAt time.Time) bool {
	return !s.now().Before(s.tokens.ExpiresAt(invitedAt))
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email address %q", orgs.ErrInvalidInput, email)
	}
	return email, nil
}

// record stamps and validates entry and appends it within tx
func (s *Service) record(ctx context.Context, tx orgs.Tx, entry *audit.Entry, at time.Time) error {
	entry.CreatedAt = at
	if err := entry.Validate(); err != nil {
		return err
	}
	return tx.AppendAudit(ctx, entry)
}
