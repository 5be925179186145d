package postgres

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/audit"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/orgs"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/rbac"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewStore(db), mock
}

func TestStoreErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing membership", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("FROM organization_memberships WHERE id = \\$1").
			WithArgs(int64(5)).
			WillReturnError(sql.ErrNoRows)

		_, err := s.GetMembership(ctx, 5)
		assert.ErrorIs(t, err, orgs.ErrNotFound)
	})

	t.Run("query failure is not a domain error", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("FROM organizations WHERE id = \\$1").
			WillReturnError(errors.New("connection reset"))

		_, err := s.GetOrganization(ctx, 1)
		require.Error(t, err)
		assert.False(t, orgs.IsDomainError(err))
		assert.Contains(t, err.Error(), "failed to get organization")
	})

	t.Run("list failure", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery("FROM organization_memberships m").
			WithArgs("u1").
			WillReturnError(errors.New("timeout"))

		_, err := s.ListMembershipsForUser(ctx, "u1")
		assert.ErrorContains(t, err, "failed to list memberships")
	})

	t.Run("unknown role in row", func(t *testing.T) {
		s, mock := newMockStore(t)
		rows := sqlmock.NewRows(membershipFields).AddRow(
			int64(1), int64(2), "u1", "superuser", "active", "", nil, nil, nil, "", time.Now(), time.Now())
		mock.ExpectQuery("FROM organization_memberships").WillReturnRows(rows)

		_, err := s.ListMembers(ctx, 2)
		assert.ErrorIs(t, err, rbac.ErrInvalidRole)
	})
}

func TestTxUniqueViolations(t *testing.T) {
	ctx := context.Background()
	dup := &pq.Error{Code: uniqueViolation, Message: "duplicate key value violates unique constraint"}

	t.Run("organization slug", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO organizations").WillReturnError(dup)
		mock.ExpectRollback()

		err := s.WithinTx(ctx, func(tx orgs.Tx) error {
			return tx.CreateOrganization(ctx, &orgs.Organization{Name: "Acme", Slug: "acme", Status: orgs.OrgStatusActive})
		})
		assert.ErrorIs(t, err, orgs.ErrSlugTaken)
	})

	t.Run("membership", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE organization_memberships").WillReturnError(dup)
		mock.ExpectRollback()

		err := s.WithinTx(ctx, func(tx orgs.Tx) error {
			return tx.ActivateMembership(ctx, 3, "u1", time.Now())
		})
		assert.ErrorIs(t, err, orgs.ErrAlreadyMember)
	})
}

func TestTxConditionalUpdates(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'pending'")).
		WithArgs(int64(3), "u1", at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.WithinTx(ctx, func(tx orgs.Tx) error {
		return tx.ActivateMembership(ctx, 3, "u1", at)
	})
	assert.ErrorIs(t, err, orgs.ErrNotFound)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND role = $2 AND status = 'active'")).
		WithArgs(int64(3), "member", "manager", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = s.WithinTx(ctx, func(tx orgs.Tx) error {
		return tx.UpdateMembershipRole(ctx, 3, rbac.RoleMember, rbac.RoleManager, at)
	})
	assert.NoError(t, err)

	// an invite accepted since it was read is not deleted
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = $2 AND role = $3")).
		WithArgs(int64(4), "pending", "member").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = s.WithinTx(ctx, func(tx orgs.Tx) error {
		return tx.DeleteMembership(ctx, 4, orgs.MembershipPending, rbac.RoleMember)
	})
	assert.ErrorIs(t, err, orgs.ErrNotFound)
}

func TestWithinTxFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("begin", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))
		err := s.WithinTx(ctx, func(orgs.Tx) error { return nil })
		assert.ErrorContains(t, err, "failed to begin transaction")
	})

	t.Run("commit", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))
		err := s.WithinTx(ctx, func(orgs.Tx) error { return nil })
		assert.ErrorContains(t, err, "failed to commit transaction")
	})

	t.Run("rollback failure is joined", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectRollback().WillReturnError(errors.New("connection lost"))
		err := s.WithinTx(ctx, func(orgs.Tx) error { return orgs.ErrForbidden })
		assert.ErrorIs(t, err, orgs.ErrForbidden)
		assert.ErrorContains(t, err, "failed to roll back")
	})
}

func TestListAuditQuery(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockStore(t)
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(
		"WHERE organization_id = $1 AND action IN ($2, $3) AND performed_by = $4 AND created_at >= $5 ORDER BY created_at DESC, id DESC LIMIT $6 OFFSET $7",
	)).
		WithArgs(int64(9), "invite_sent", "invite_accepted", "owner", start, audit.DefaultLimit, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "organization_id", "action", "resource_type", "resource_id", "performed_by", "details", "created_at",
		}).AddRow(int64(1), int64(9), "invite_sent", "membership", nil, "owner", []byte(`{"email":"a@example.com"}`), start))

	entries, err := s.ListAudit(ctx, audit.Filter{
		OrganizationID: 9,
		Actions:        []audit.Action{audit.ActionInviteSent, audit.ActionInviteAccepted},
		PerformedBy:    "owner",
		StartTime:      &start,
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].ResourceID)
	assert.Equal(t, "a@example.com", entries[0].Details["email"])
}

func TestRunMigrations(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1).AddRow(2))
	for _, m := range Migrations()[2:] {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(m.SQL)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO schema_migrations").
			WithArgs(m.Version, m.Description).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	require.NoError(t, RunMigrations(ctx, db, logger))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrationsFailure(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err = RunMigrations(ctx, db, logger)
	assert.ErrorContains(t, err, "failed to execute migration 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationsAreOrdered(t *testing.T) {
	for i, m := range Migrations() {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.Description)
	}
}

func TestPoolReplicaSelection(t *testing.T) {
	open := func() *sql.DB {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		mock.ExpectClose()
		return db
	}
	primary, r1, r2 := open(), open(), open()

	assert.Same(t, primary, NewPool(primary).Replica())

	pool := NewPool(primary, r1, r2)
	seen := map[*sql.DB]int{}
	for range 4 {
		seen[pool.Replica()]++
	}
	assert.Equal(t, 2, seen[r1])
	assert.Equal(t, 2, seen[r2])
	assert.Same(t, primary, NewPoolStore(pool).DB())
	assert.NoError(t, pool.Close())
}

func TestParseReplicaURLs(t *testing.T) {
	assert.Nil(t, ParseReplicaURLs(""))
	assert.Nil(t, ParseReplicaURLs(" , "))
	assert.Equal(t, []string{"postgres://a/db", "postgres://b/db"},
		ParseReplicaURLs(" postgres://a/db ,,postgres://b/db,"))
}
