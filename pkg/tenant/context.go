package tenant

import (
	"time"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/auth"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/orgs"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/rbac"
)

// MembershipRef identifies the membership backing a tenant context
type MembershipRef struct {
	ID       int64     `json:"id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Context is the per-request answer to "who is acting, in which
// organization, with which role". The zero value is the empty context.
type Context struct {
	User         *auth.Identity            `json:"user,omitempty"`
	Organization *orgs.OrganizationSummary `json:"organization,omitempty"`
	Role         rbac.Role                 `json:"role,omitempty"`
	Membership   *MembershipRef            `json:"membership,omitempty"`
}

// Empty returns the unauthenticated context
func Empty() *Context {
	return &Context{}
}

// IsEmpty reports whether no user is present
func (c *Context) IsEmpty() bool {
	return c == nil || c.User == nil
}

// HasOrganization reports whether an organization was selected
func (c *Context) HasOrganization() bool {
	return !c.IsEmpty() && c.Organization != nil && c.Membership != nil
}

// Require returns ErrUnauthenticated or ErrNoOrganizationContext when the
// context cannot authorize organization-scoped work
func (c *Context) Require() error {
	if c.IsEmpty() {
		return orgs.ErrUnauthenticated
	}
	if !c.HasOrganization() {
		return orgs.ErrNoOrganizationContext
	}
	return nil
}

// HasPermission reports whether the selected role grants p
func (c *Context) HasPermission(p rbac.Permission) bool {
	if !c.HasOrganization() {
		return false
	}
	return rbac.HasPermission(c.Role, p)
}

// UserID returns the acting user's id, or "" for the empty context
func (c *Context) UserID() string {
	if c.IsEmpty() {
		return ""
	}
	return c.User.UserID
}

// OrganizationID returns the selected organization id, or 0
func (c *Context) OrganizationID() int64 {
	if !c.HasOrganization() {
		return 0
	}
	return c.Organization.ID
}
