package orgs

import (
	"time"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/rbac"
)

// OrgStatus represents organization status
type OrgStatus string

const (
	OrgStatusActive  OrgStatus = "active"
	OrgStatusDeleted OrgStatus = "deleted"
)

// Organization is a tenant of the directory
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Status    OrgStatus `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary returns the fields exposed in a tenant context
func (o *Organization) Summary() *OrganizationSummary {
	return &OrganizationSummary{ID: o.ID, Name: o.Name, Slug: o.Slug}
}

// OrganizationSummary is the subset of an organization carried per request
type OrganizationSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// MembershipStatus is the lifecycle state of a membership
type MembershipStatus string

const (
	MembershipPending MembershipStatus = "pending"
	MembershipActive  MembershipStatus = "active"
)

// Membership links a user, or a pending invitee, to an organization with a role
type Membership struct {
	ID              int64            `json:"id"`
	OrganizationID  int64            `json:"organization_id"`
	UserID          *string          `json:"user_id,omitempty"`
	Role            rbac.Role        `json:"role"`
	Status          MembershipStatus `json:"status"`
	InvitedEmail    string           `json:"invited_email,omitempty"`
	InvitedBy       *string          `json:"invited_by,omitempty"`
	InvitedAt       *time.Time       `json:"invited_at,omitempty"`
	AcceptedAt      *time.Time       `json:"accepted_at,omitempty"`
	InviteTokenHash string           `json:"-"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// IsPending reports whether the membership is an unaccepted invitation
func (m *Membership) IsPending() bool {
	return m.Status == MembershipPending
}

// IsActive reports whether the membership grants access
func (m *Membership) IsActive() bool {
	return m.Status == MembershipActive
}

// BelongsTo reports whether the membership is held by userID
func (m *Membership) BelongsTo(userID string) bool {
	return m.UserID != nil && *m.UserID == userID
}

// JoinedAt is the acceptance time, or the creation time for memberships
// that were never invited
func (m *Membership) JoinedAt() time.Time {
	if m.AcceptedAt != nil {
		return *m.AcceptedAt
	}
	return m.CreatedAt
}

// MembershipWithOrg is an active membership joined with its organization
type MembershipWithOrg struct {
	Membership
	Organization OrganizationSummary `json:"organization"`
}

// User is the local record of an identity-provider subject
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateOrgRequest represents request to create an organization
type CreateOrgRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
}

// UpdateOrgRequest represents request to update an organization
type UpdateOrgRequest struct {
	Name *string `json:"name,omitempty"`
	Slug *string `json:"slug,omitempty"`
}

// InviteMemberRequest represents request to invite a member
type InviteMemberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// UpdateMemberRequest represents request to update a member's role
type UpdateMemberRequest struct {
	Role string `json:"role"`
}
