// Package postgres persists organizations, memberships, users and the audit
// log in PostgreSQL.
//
// # Overview
//
// Store implements orgs.Store. Every mutation the membership service makes
// runs inside WithinTx on the primary connection, so the state change and its
// audit entry commit or roll back together. Reads outside a transaction go
// through a Pool and may be served by a read replica.
//
// # Concurrency
//
// State transitions are conditional updates. ActivateMembership only matches
// pending rows and UpdateMembershipRole only matches the role that was read,
// so of two racing requests exactly one affects a row and the other gets
// orgs.ErrNotFound. Unique indexes on (organization_id, user_id) and on
// pending (organization_id, invited_email) turn duplicate inserts into
// orgs.ErrAlreadyMember, and the organizations.slug index into
// orgs.ErrSlugTaken.
//
// # Schema
//
// Migrations are embedded in the binary and tracked in schema_migrations:
//
//	pool, err := postgres.Open(ctx, postgres.PoolConfig{PrimaryURL: url}, logger)
//	if err != nil {
//		return err
//	}
//	if err := postgres.RunMigrations(ctx, pool.Primary(), logrus.StandardLogger()); err != nil {
//		return err
//	}
//	store := postgres.NewPoolStore(pool)
//
// audit_logs carries rules that discard UPDATE and DELETE statements.
//
// The queries use only portable SQL, so the package tests run them against
// SQLite as well.
package postgres
