package membership

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/audit"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/auth"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/orgs"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/rbac"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/tenant"
)

const maxOrgNameLength = 100

// CreateOrganization creates an organization with identity as its active owner
func (s *Service) CreateOrganization(ctx context.Context, identity *auth.Identity, req orgs.CreateOrgRequest) (org *orgs.Organization, owner *orgs.Membership, err error) {
	ctx, finish := s.begin(ctx, "create_organization")
	defer func() { finish(err) }()

	if identity == nil || identity.UserID == "" {
		return nil, nil, orgs.ErrUnauthenticated
	}
	name, err := validateOrgName(req.Name)
	if err != nil {
		return nil, nil, err
	}
	slug := strings.ToLower(strings.TrimSpace(req.Slug))
	if slug == "" {
		slug = orgs.GenerateSlug(name)
	}
	if err = orgs.ValidateSlug(slug); err != nil {
		return nil, nil, err
	}

	now := s.now()
	userID := identity.UserID
	org = &orgs.Organization{
		Name:      name,
		Slug:      slug,
		Status:    orgs.OrgStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	owner = &orgs.Membership{
		UserID:     &userID,
		Role:       rbac.RoleOwner,
		Status:     orgs.MembershipActive,
		AcceptedAt: &now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = s.store.WithinTx(ctx, func(tx orgs.Tx) error {
		if err := tx.EnsureUser(ctx, &orgs.User{ID: userID, Email: identity.Email, CreatedAt: now}); err != nil {
			return err
		}
		taken, err := tx.OrganizationSlugExists(ctx, slug)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: %s", orgs.ErrSlugTaken, slug)
		}
		if err := tx.CreateOrganization(ctx, org); err != nil {
			return err
		}
		owner.OrganizationID = org.ID
		if err := tx.CreateMembership(ctx, owner); err != nil {
			return err
		}
		entry := audit.NewEntry(org.ID, audit.ActionOrgCreated, userID).
			WithResource(audit.ResourceTypeOrganization, formatID(org.ID)).
			WithDetail("name", org.Name).
			WithDetail("slug", org.Slug)
		return s.record(ctx, tx, entry, now)
	})
	if err != nil {
		return nil, nil, err
	}

	s.logTransition(ctx, "Organization created", map[string]any{
		"org_id": org.ID,
		"slug":   org.Slug,
	})
	return org, owner, nil
}

// UpdateOrganization renames the actor's organization or changes its slug.
// A request that changes nothing is not audited.
func (s *Service) UpdateOrganization(ctx context.Context, actor *tenant.Context, req orgs.UpdateOrgRequest) (org *orgs.Organization, err error) {
	ctx, finish := s.begin(ctx, "update_organization")
	defer func() { finish(err) }()

	if err = requirePermission(actor, rbac.PermOrgUpdate); err != nil {
		return nil, err
	}
	org, err = s.liveOrganization(ctx, actor.OrganizationID())
	if err != nil {
		return nil, err
	}

	before := map[string]any{}
	after := map[string]any{}
	name, slug := org.Name, org.Slug
	if req.Name != nil {
		if name, err = validateOrgName(*req.Name); err != nil {
			return nil, err
		}
		if name != org.Name {
			before["name"], after["name"] = org.Name, name
		}
	}
	if req.Slug != nil {
		slug = strings.ToLower(strings.TrimSpace(*req.Slug))
		if err = orgs.ValidateSlug(slug); err != nil {
			return nil, err
		}
		if slug != org.Slug {
			before["slug"], after["slug"] = org.Slug, slug
		}
	}
	if len(after) == 0 {
		return org, nil
	}

	now := s.now()
	err = s.store.WithinTx(ctx, func(tx orgs.Tx) error {
		if _, err := currentActorRole(ctx, tx, actor, rbac.PermOrgUpdate); err != nil {
			return err
		}
		if slug != org.Slug {
			taken, err := tx.OrganizationSlugExists(ctx, slug)
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("%w: %s", orgs.ErrSlugTaken, slug)
			}
		}
		updated := *org
		updated.Name, updated.Slug, updated.UpdatedAt = name, slug, now
		if err := tx.UpdateOrganization(ctx, &updated); err != nil {
			return err
		}
		entry := audit.NewEntry(org.ID, audit.ActionOrgUpdated, actor.UserID()).
			WithResource(audit.ResourceTypeOrganization, formatID(org.ID)).
			WithChanges(&audit.ChangeDetails{Before: before, After: after})
		return s.record(ctx, tx, entry, now)
	})
	if err != nil {
		return nil, err
	}

	org.Name, org.Slug, org.UpdatedAt = name, slug, now
	s.logTransition(ctx, "Organization updated", map[string]any{"org_id": org.ID})
	return org, nil
}

// DeleteOrganization soft-deletes the actor's organization. Its
// memberships stop resolving immediately.
func (s *Service) DeleteOrganization(ctx context.Context, actor *tenant.Context) (err error) {
	ctx, finish := s.begin(ctx, "delete_organization")
	defer func() { finish(err) }()

	if err = requirePermission(actor, rbac.PermOrgDelete); err != nil {
		return err
	}
	org, err := s.liveOrganization(ctx, actor.OrganizationID())
	if err != nil {
		return err
	}

	now := s.now()
	err = s.store.WithinTx(ctx, func(tx orgs.Tx) error {
		if _, err := currentActorRole(ctx, tx, actor, rbac.PermOrgDelete); err != nil {
			return err
		}
		if err := tx.DeleteOrganization(ctx, org.ID, now); err != nil {
			return err
		}
		entry := audit.NewEntry(org.ID, audit.ActionOrgDeleted, actor.UserID()).
			WithResource(audit.ResourceTypeOrganization, formatID(org.ID)).
			WithDetail("slug", org.Slug)
		return s.record(ctx, tx, entry, now)
	})
	if err != nil {
		return err
	}

	s.logTransition(ctx, "Organization deleted", map[string]any{"org_id": org.ID})
	return nil
}

func (s *Service) liveOrganization(ctx context.Context, id int64) (*orgs.Organization, error) {
	org, err := s.store.GetOrganization(ctx, id)
	if err != nil {
		return nil, err
	}
	if org.Status == orgs.OrgStatusDeleted {
		return nil, fmt.Errorf("%w: organization %d", orgs.ErrNotFound, id)
	}
	return org, nil
}

func validateOrgName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: organization name is required", orgs.ErrInvalidInput)
	}
	if utf8.RuneCountInString(name) > maxOrgNameLength {
		return "", fmt.Errorf("%w: organization name exceeds %d characters", orgs.ErrInvalidInput, maxOrgNameLength)
	}
	return name, nil
}
