package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/audit"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/orgs"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/rbac"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements orgs.Store on PostgreSQL. Reads may be served by a
// replica; transactions always run on the primary.
type Store struct {
	db   *sql.DB
	read func() *sql.DB
}

var _ orgs.Store = (*Store)(nil)

// NewStore creates a store reading and writing through db
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, read: func() *sql.DB { return db }}
}

// NewPoolStore creates a store that reads from the pool's replicas
func NewPoolStore(pool *Pool) *Store {
	return &Store{db: pool.Primary(), read: pool.Replica}
}

// DB returns the primary handle
func (s *Store) DB() *sql.DB {
	return s.db
}

const organizationColumns = `id, name, slug, status, created_at, updated_at`

func (s *Store) GetOrganization(ctx context.Context, id int64) (*orgs.Organization, error) {
	row := s.read().QueryRowContext(ctx,
		`SELECT `+organizationColumns+` FROM organizations WHERE id = $1`, id)
	org, err := scanOrganization(row)
	if err != nil {
		return nil, notFound(err, "failed to get organization", fmt.Sprintf("organization %d", id))
	}
	return org, nil
}

func (s *Store) GetOrganizationBySlug(ctx context.Context, slug string) (*orgs.Organization, error) {
	row := s.read().QueryRowContext(ctx,
		`SELECT `+organizationColumns+` FROM organizations WHERE slug = $1`, slug)
	org, err := scanOrganization(row)
	if err != nil {
		return nil, notFound(err, "failed to get organization", "organization "+slug)
	}
	return org, nil
}

func (s *Store) GetMembership(ctx context.Context, id int64) (*orgs.Membership, error) {
	return getMembership(ctx, s.read(), id)
}

func (s *Store) ListMembershipsForUser(ctx context.Context, userID string) ([]*orgs.MembershipWithOrg, error) {
	rows, err := s.read().QueryContext(ctx, `
		SELECT `+membershipColumns("m.")+`, o.name, o.slug
		FROM organization_memberships m
		JOIN organizations o ON o.id = m.organization_id
		WHERE m.user_id = $1 AND m.status = 'active' AND o.status = 'active'
		ORDER BY m.created_at, m.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var out []*orgs.MembershipWithOrg
	for rows.Next() {
		var name, slug string
		m, err := scanMembership(rows, &name, &slug)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		out = append(out, &orgs.MembershipWithOrg{
			Membership:   *m,
			Organization: orgs.OrganizationSummary{ID: m.OrganizationID, Name: name, Slug: slug},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	return out, nil
}

func (s *Store) ListMembers(ctx context.Context, orgID int64) ([]*orgs.Membership, error) {
	rows, err := s.read().QueryContext(ctx, `
		SELECT `+membershipColumns("")+`
		FROM organization_memberships
		WHERE organization_id = $1
		ORDER BY created_at, id
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var out []*orgs.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	return out, nil
}

func (s *Store) ListAudit(ctx context.Context, filter audit.Filter) ([]*audit.Entry, error) {
	filter = filter.Normalize()
	where := []string{"organization_id = $1"}
	args := []any{filter.OrganizationID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.Actions) > 0 {
		placeholders := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			placeholders[i] = arg(string(a))
		}
		where = append(where, "action IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.PerformedBy != "" {
		where = append(where, "performed_by = "+arg(filter.PerformedBy))
	}
	if filter.StartTime != nil {
		where = append(where, "created_at >= "+arg(filter.StartTime.UTC()))
	}
	if filter.EndTime != nil {
		where = append(where, "created_at < "+arg(filter.EndTime.UTC()))
	}

	query := `SELECT id, organization_id, action, resource_type, resource_id, performed_by, details, created_at
		FROM audit_logs WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY created_at DESC, id DESC LIMIT ` + arg(filter.Limit) + ` OFFSET ` + arg(filter.Offset)

	rows, err := s.read().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var out []*audit.Entry
	for rows.Next() {
		var (
			e          audit.Entry
			resourceID sql.NullString
			details    []byte
		)
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.Action, &e.ResourceType, &resourceID,
			&e.PerformedBy, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.ResourceID = resourceID.String
		e.CreatedAt = e.CreatedAt.UTC()
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("failed to decode audit details: %w", err)
			}
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return out, nil
}

// WithinTx runs fn in a transaction on the primary
func (s *Store) WithinTx(ctx context.Context, fn func(tx orgs.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&Tx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("failed to roll back: %w", rbErr))
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Tx implements orgs.Tx
type Tx struct {
	tx *sql.Tx
}

var _ orgs.Tx = (*Tx)(nil)

func (t *Tx) GetMembership(ctx context.Context, id int64) (*orgs.Membership, error) {
	return getMembership(ctx, t.tx, id)
}

func (t *Tx) GetMembershipForUser(ctx context.Context, orgID int64, userID string) (*orgs.Membership, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+membershipColumns("")+`
		FROM organization_memberships
		WHERE organization_id = $1 AND user_id = $2
	`, orgID, userID)
	m, err := scanMembership(row)
	if err != nil {
		return nil, notFound(err, "failed to get membership", "membership for user "+userID)
	}
	return m, nil
}

// FindMembershipByEmail matches pending invitations by invited email and
// active memberships by the member's user email. Active rows win.
func (t *Tx) FindMembershipByEmail(ctx context.Context, orgID int64, email string) (*orgs.Membership, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+membershipColumns("m.")+`
		FROM organization_memberships m
		LEFT JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1 AND (m.invited_email = $2 OR u.email = $2)
		ORDER BY CASE WHEN m.status = 'active' THEN 0 ELSE 1 END, m.id
		LIMIT 1
	`, orgID, email)
	m, err := scanMembership(row)
	if err != nil {
		return nil, notFound(err, "failed to find membership", "membership for "+email)
	}
	return m, nil
}

func (t *Tx) CountOwners(ctx context.Context, orgID int64) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM organization_memberships
		WHERE organization_id = $1 AND role = 'owner' AND status = 'active'
	`, orgID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count owners: %w", err)
	}
	return n, nil
}

func (t *Tx) OrganizationSlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM organizations WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}
	return exists, nil
}

func (t *Tx) CreateOrganization(ctx context.Context, org *orgs.Organization) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO organizations (name, slug, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, org.Name, org.Slug, string(org.Status), org.CreatedAt.UTC(), org.UpdatedAt.UTC()).Scan(&org.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", orgs.ErrSlugTaken, org.Slug)
	}
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

func (t *Tx) UpdateOrganization(ctx context.Context, org *orgs.Organization) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE organizations SET name = $2, slug = $3, updated_at = $4
		WHERE id = $1 AND status = 'active'
	`, org.ID, org.Name, org.Slug, org.UpdatedAt.UTC())
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", orgs.ErrSlugTaken, org.Slug)
	}
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}
	return expectOne(res, fmt.Sprintf("organization %d", org.ID))
}

func (t *Tx) DeleteOrganization(ctx context.Context, id int64, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE organizations SET status = 'deleted', updated_at = $2
		WHERE id = $1 AND status = 'active'
	`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	return expectOne(res, fmt.Sprintf("organization %d", id))
}

func (t *Tx) CreateMembership(ctx context.Context, m *orgs.Membership) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO organization_memberships
			(organization_id, user_id, role, status, invited_email, invited_by,
			 invited_at, accepted_at, invite_token_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`,
		m.OrganizationID, nullString(m.UserID), m.Role.String(), string(m.Status), m.InvitedEmail,
		nullString(m.InvitedBy), nullTime(m.InvitedAt), nullTime(m.AcceptedAt), m.InviteTokenHash,
		m.CreatedAt.UTC(), m.UpdatedAt.UTC(),
	).Scan(&m.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: organization %d", orgs.ErrAlreadyMember, m.OrganizationID)
	}
	if err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

func (t *Tx) ActivateMembership(ctx context.Context, id int64, userID string, acceptedAt time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE organization_memberships
		SET user_id = $2, status = 'active', accepted_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'pending'
	`, id, userID, acceptedAt.UTC())
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: user %s", orgs.ErrAlreadyMember, userID)
	}
	if err != nil {
		return fmt.Errorf("failed to activate membership: %w", err)
	}
	return expectOne(res, fmt.Sprintf("pending membership %d", id))
}

func (t *Tx) UpdateMembershipRole(ctx context.Context, id int64, from, to rbac.Role, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE organization_memberships SET role = $3, updated_at = $4
		WHERE id = $1 AND role = $2 AND status = 'active'
	`, id, from.String(), to.String(), at.UTC())
	if err != nil {
		return fmt.Errorf("failed to update membership role: %w", err)
	}
	return expectOne(res, fmt.Sprintf("membership %d with role %s", id, from))
}

func (t *Tx) DeleteMembership(ctx context.Context, id int64, status orgs.MembershipStatus, role rbac.Role) error {
	res, err := t.tx.ExecContext(ctx, `
		DELETE FROM organization_memberships
		WHERE id = $1 AND status = $2 AND role = $3
	`, id, string(status), string(role))
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}
	return expectOne(res, fmt.Sprintf("membership %d", id))
}

func (t *Tx) DeleteExpiredInvites(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		DELETE FROM organization_memberships
		WHERE status = 'pending' AND invited_at <= $1
	`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired invites: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired invites: %w", err)
	}
	return n, nil
}

func (t *Tx) EnsureUser(ctx context.Context, user *orgs.User) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO users (id, email, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email
	`, user.ID, user.Email, user.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return nil
}

func (t *Tx) AppendAudit(ctx context.Context, entry *audit.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	var resourceID sql.NullString
	if entry.ResourceID != "" {
		resourceID = sql.NullString{String: entry.ResourceID, Valid: true}
	}
	err = t.tx.QueryRowContext(ctx, `
		INSERT INTO audit_logs
			(organization_id, action, resource_type, resource_id, performed_by, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, entry.OrganizationID, string(entry.Action), string(entry.ResourceType), resourceID,
		entry.PerformedBy, string(raw), entry.CreatedAt.UTC(),
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func getMembership(ctx context.Context, q queryer, id int64) (*orgs.Membership, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+membershipColumns("")+` FROM organization_memberships WHERE id = $1`, id)
	m, err := scanMembership(row)
	if err != nil {
		return nil, notFound(err, "failed to get membership", fmt.Sprintf("membership %d", id))
	}
	return m, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// notFound maps sql.ErrNoRows to orgs.ErrNotFound and wraps anything else
func notFound(err error, op, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", orgs.ErrNotFound, what)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", orgs.ErrNotFound, what)
	}
	return nil
}
