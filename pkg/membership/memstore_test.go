package membership

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/audit"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/orgs"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/rbac"
)

// memStore is an in-memory orgs.Store. Transactions hold the store lock
// and roll back to a snapshot when fn fails.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	orgs    map[int64]*orgs.Organization
	members map[int64]*orgs.Membership
	users   map[string]*orgs.User
	entries []*audit.Entry

	failAppend error
}

func newMemStore() *memStore {
	return &memStore{
		orgs:    map[int64]*orgs.Organization{},
		members: map[int64]*orgs.Membership{},
		users:   map[string]*orgs.User{},
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) GetOrganization(_ context.Context, id int64) (*orgs.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[id]
	if !ok {
		return nil, fmt.Errorf("%w: organization %d", orgs.ErrNotFound, id)
	}
	cp := *org
	return &cp, nil
}

func (s *memStore) GetOrganizationBySlug(_ context.Context, slug string) (*orgs.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, org := range s.orgs {
		if org.Slug == slug {
			cp := *org
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: organization %s", orgs.ErrNotFound, slug)
}

func (s *memStore) GetMembership(ctx context.Context, id int64) (*orgs.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{s}).GetMembership(ctx, id)
}

func (s *memStore) ListMembershipsForUser(_ context.Context, userID string) ([]*orgs.MembershipWithOrg, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*orgs.MembershipWithOrg
	for _, m := range s.sortedMembers() {
		org := s.orgs[m.OrganizationID]
		if !m.BelongsTo(userID) || !m.IsActive() || org == nil || org.Status != orgs.OrgStatusActive {
			continue
		}
		out = append(out, &orgs.MembershipWithOrg{Membership: *m, Organization: *org.Summary()})
	}
	return out, nil
}

func (s *memStore) ListMembers(_ context.Context, orgID int64) ([]*orgs.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*orgs.Membership
	for _, m := range s.sortedMembers() {
		if m.OrganizationID == orgID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) ListAudit(_ context.Context, filter audit.Filter) ([]*audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*audit.Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.OrganizationID != filter.OrganizationID {
			continue
		}
		if len(filter.Actions) > 0 && !slices.Contains(filter.Actions, e.Action) {
			continue
		}
		if filter.PerformedBy != "" && e.PerformedBy != filter.PerformedBy {
			continue
		}
		out = append(out, e)
	}
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *memStore) WithinTx(_ context.Context, fn func(tx orgs.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapOrgs, snapMembers := cloneMap(s.orgs), cloneMap(s.members)
	snapUsers, snapEntries, snapID := maps.Clone(s.users), slices.Clone(s.entries), s.nextID
	if err := fn(&memTx{s}); err != nil {
		s.orgs, s.members, s.users, s.entries, s.nextID = snapOrgs, snapMembers, snapUsers, snapEntries, snapID
		return err
	}
	return nil
}

func cloneMap[T any](in map[int64]*T) map[int64]*T {
	out := make(map[int64]*T, len(in))
	for k, v := range in {
		cp := *v
		out[k] = &cp
	}
	return out
}

func (s *memStore) sortedMembers() []*orgs.Membership {
	out := slices.Collect(maps.Values(s.members))
	slices.SortFunc(out, func(a, b *orgs.Membership) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return int(a.ID - b.ID)
	})
	return out
}

// test helpers

func (s *memStore) membership(id int64) *orgs.Membership {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.members[id]; ok {
		cp := *m
		return &cp
	}
	return nil
}

func (s *memStore) auditActions(orgID int64) []audit.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Action
	for _, e := range s.entries {
		if e.OrganizationID == orgID {
			out = append(out, e.Action)
		}
	}
	return out
}

func (s *memStore) lastEntry() *audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return nil
	}
	return s.entries[len(s.entries)-1]
}

func (s *memStore) setRole(id int64, role rbac.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[id].Role = role
}

type memTx struct {
	s *memStore
}

func (t *memTx) GetMembership(_ context.Context, id int64) (*orgs.Membership, error) {
	m, ok := t.s.members[id]
	if !ok {
		return nil, fmt.Errorf("%w: membership %d", orgs.ErrNotFound, id)
	}
	cp := *m
	return &cp, nil
}

func (t *memTx) GetMembershipForUser(_ context.Context, orgID int64, userID string) (*orgs.Membership, error) {
	for _, m := range t.s.members {
		if m.OrganizationID == orgID && m.BelongsTo(userID) {
			cp := *m
			return &cp, nil
		}
	}
	return nil, orgs.ErrNotFound
}

func (t *memTx) FindMembershipByEmail(_ context.Context, orgID int64, email string) (*orgs.Membership, error) {
	for _, m := range t.s.members {
		if m.OrganizationID != orgID {
			continue
		}
		if m.InvitedEmail == email {
			cp := *m
			return &cp, nil
		}
		if m.UserID != nil {
			if u, ok := t.s.users[*m.UserID]; ok && u.Email == email {
				cp := *m
				return &cp, nil
			}
		}
	}
	return nil, orgs.ErrNotFound
}

func (t *memTx) CountOwners(_ context.Context, orgID int64) (int, error) {
	n := 0
	for _, m := range t.s.members {
		if m.OrganizationID == orgID && m.IsActive() && m.Role == rbac.RoleOwner {
			n++
		}
	}
	return n, nil
}

func (t *memTx) OrganizationSlugExists(_ context.Context, slug string) (bool, error) {
	for _, org := range t.s.orgs {
		if org.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) CreateOrganization(_ context.Context, org *orgs.Organization) error {
	org.ID = t.s.id()
	cp := *org
	t.s.orgs[org.ID] = &cp
	return nil
}

func (t *memTx) UpdateOrganization(_ context.Context, org *orgs.Organization) error {
	if _, ok := t.s.orgs[org.ID]; !ok {
		return orgs.ErrNotFound
	}
	cp := *org
	t.s.orgs[org.ID] = &cp
	return nil
}

func (t *memTx) DeleteOrganization(_ context.Context, id int64, at time.Time) error {
	org, ok := t.s.orgs[id]
	if !ok {
		return orgs.ErrNotFound
	}
	org.Status = orgs.OrgStatusDeleted
	org.UpdatedAt = at
	return nil
}

func (t *memTx) CreateMembership(_ context.Context, m *orgs.Membership) error {
	m.ID = t.s.id()
	cp := *m
	t.s.members[m.ID] = &cp
	return nil
}

func (t *memTx) ActivateMembership(_ context.Context, id int64, userID string, acceptedAt time.Time) error {
	m, ok := t.s.members[id]
	if !ok || !m.IsPending() {
		return orgs.ErrNotFound
	}
	m.UserID = &userID
	m.Status = orgs.MembershipActive
	m.AcceptedAt = &acceptedAt
	m.UpdatedAt = acceptedAt
	return nil
}

func (t *memTx) UpdateMembershipRole(_ context.Context, id int64, from, to rbac.Role, at time.Time) error {
	m, ok := t.s.members[id]
	if !ok || m.Role != from {
		return orgs.ErrNotFound
	}
	m.Role = to
	m.UpdatedAt = at
	return nil
}

func (t *memTx) DeleteMembership(_ context.Context, id int64, status orgs.MembershipStatus, role rbac.Role) error {
	m, ok := t.s.members[id]
	if !ok || m.Status != status || m.Role != role {
		return orgs.ErrNotFound
	}
	delete(t.s.members, id)
	return nil
}

func (t *memTx) DeleteExpiredInvites(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for id, m := range t.s.members {
		if m.IsPending() && m.InvitedAt != nil && !m.InvitedAt.After(cutoff) {
			delete(t.s.members, id)
			n++
		}
	}
	return n, nil
}

func (t *memTx) EnsureUser(_ context.Context, user *orgs.User) error {
	if _, ok := t.s.users[user.ID]; !ok {
		cp := *user
		t.s.users[user.ID] = &cp
	}
	return nil
}

func (t *memTx) AppendAudit(_ context.Context, entry *audit.Entry) error {
	if t.s.failAppend != nil {
		return t.s.failAppend
	}
	if entry.OrganizationID == 0 {
		return errors.New("audit entry without organization")
	}
	entry.ID = int64(len(t.s.entries) + 1)
	t.s.entries = append(t.s.entries, entry)
	return nil
}
