package orgs

import (
	"context"
	"time"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/audit"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/rbac"
)

// Store is the persistence contract of the authorization core.
// Reads run outside transactions; every mutation goes through WithinTx so
// the state change and its audit entry commit together.
type Store interface {
	GetOrganization(ctx context.Context, id int64) (*Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error)
	GetMembership(ctx context.Context, id int64) (*Membership, error)

	// ListMembershipsForUser returns the user's active memberships in live
	// organizations, ordered by membership creation time and then id.
	ListMembershipsForUser(ctx context.Context, userID string) ([]*MembershipWithOrg, error)

	// ListMembers returns active and pending memberships of an organization
	ListMembers(ctx context.Context, orgID int64) ([]*Membership, error)

	// ListAudit returns entries matching filter, newest first
	ListAudit(ctx context.Context, filter audit.Filter) ([]*audit.Entry, error)

	// WithinTx runs fn in a transaction, committing when fn returns nil
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of writes available inside a transaction
type Tx interface {
	GetMembership(ctx context.Context, id int64) (*Membership, error)
	GetMembershipForUser(ctx context.Context, orgID int64, userID string) (*Membership, error)
	FindMembershipByEmail(ctx context.Context, orgID int64, email string) (*Membership, error)
	CountOwners(ctx context.Context, orgID int64) (int, error)
	OrganizationSlugExists(ctx context.Context, slug string) (bool, error)

	CreateOrganization(ctx context.Context, org *Organization) error
	UpdateOrganization(ctx context.Context, org *Organization) error
	DeleteOrganization(ctx context.Context, id int64, at time.Time) error

	CreateMembership(ctx context.Context, m *Membership) error

	// ActivateMembership moves a pending membership to active.
	// Returns ErrNotFound when the row is missing or no longer pending.
	ActivateMembership(ctx context.Context, id int64, userID string, acceptedAt time.Time) error

	// UpdateMembershipRole changes the role only if it still equals from.
	// Returns ErrNotFound when the row is missing or the role moved.
	UpdateMembershipRole(ctx context.Context, id int64, from, to rbac.Role, at time.Time) error

	// DeleteMembership removes the row only if its status and role still
	// equal the observed ones. Returns ErrNotFound otherwise.
	DeleteMembership(ctx context.Context, id int64, status MembershipStatus, role rbac.Role) error

	// DeleteExpiredInvites removes pending memberships invited before cutoff
	DeleteExpiredInvites(ctx context.Context, cutoff time.Time) (int64, error)

	// EnsureUser creates the local user record if it does not exist
	EnsureUser(ctx context.Context, user *User) error

	AppendAudit(ctx context.Context, entry *audit.Entry) error
}
