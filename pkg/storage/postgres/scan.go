package postgres

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/orgs"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/rbac"
)

type scanner interface {
	Scan(dest ...any) error
}

var membershipFields = []string{
	"id", "organization_id", "user_id", "role", "status", "invited_email", "invited_by",
	"invited_at", "accepted_at", "invite_token_hash", "created_at", "updated_at",
}

func membershipColumns(prefix string) string {
	cols := make([]string, len(membershipFields))
	for i, f := range membershipFields {
		cols[i] = prefix + f
	}
	return strings.Join(cols, ", ")
}

// nullable holds the columns that need conversion after Scan
type nullable struct {
	userID     sql.NullString
	invitedBy  sql.NullString
	invitedAt  sql.NullTime
	acceptedAt sql.NullTime
	role       string
	status     string
}

// scanMembership scans membershipFields followed by any extra columns
func scanMembership(row scanner, extra ...any) (*orgs.Membership, error) {
	var (
		m orgs.Membership
		n nullable
	)
	dest := []any{
		&m.ID, &m.OrganizationID, &n.userID, &n.role, &n.status, &m.InvitedEmail, &n.invitedBy,
		&n.invitedAt, &n.acceptedAt, &m.InviteTokenHash, &m.CreatedAt, &m.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if err := n.apply(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (n *nullable) apply(m *orgs.Membership) error {
	role, err := rbac.ParseRole(n.role)
	if err != nil {
		return fmt.Errorf("membership %d: %w", m.ID, err)
	}
	m.Role = role
	m.Status = orgs.MembershipStatus(n.status)
	m.UserID = stringPtr(n.userID)
	m.InvitedBy = stringPtr(n.invitedBy)
	m.InvitedAt = timePtr(n.invitedAt)
	m.AcceptedAt = timePtr(n.acceptedAt)
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return nil
}

func scanOrganization(row scanner) (*orgs.Organization, error) {
	var (
		org    orgs.Organization
		status string
	)
	if err := row.Scan(&org.ID, &org.Name, &org.Slug, &status, &org.CreatedAt, &org.UpdatedAt); err != nil {
		return nil, err
	}
	org.Status = orgs.OrgStatus(status)
	org.CreatedAt = org.CreatedAt.UTC()
	org.UpdatedAt = org.UpdatedAt.UTC()
	return &org, nil
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
