package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the schema of the authorization core in order
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					email TEXT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
			`,
		},
		{
			Version:     2,
			Description: "Create organizations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(100) NOT NULL,
					slug VARCHAR(63) NOT NULL UNIQUE,
					status VARCHAR(20) NOT NULL DEFAULT 'active'
						CHECK (status IN ('active', 'deleted')),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
		},
		{
			Version:     3,
			Description: "Create organization_memberships table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organization_memberships (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id),
					user_id TEXT REFERENCES users(id) ON DELETE CASCADE,
					role VARCHAR(20) NOT NULL
						CHECK (role IN ('owner', 'admin', 'manager', 'member', 'viewer')),
					status VARCHAR(20) NOT NULL
						CHECK (status IN ('pending', 'active')),
					invited_email TEXT NOT NULL DEFAULT '',
					invited_by TEXT,
					invited_at TIMESTAMPTZ,
					accepted_at TIMESTAMPTZ,
					invite_token_hash TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					CHECK (status = 'pending' OR user_id IS NOT NULL)
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_memberships_org_user
					ON organization_memberships(organization_id, user_id) WHERE user_id IS NOT NULL;
				CREATE UNIQUE INDEX IF NOT EXISTS idx_memberships_org_pending_email
					ON organization_memberships(organization_id, invited_email) WHERE status = 'pending';
				CREATE INDEX IF NOT EXISTS idx_memberships_user
					ON organization_memberships(user_id, created_at, id);
				CREATE INDEX IF NOT EXISTS idx_memberships_pending_invited_at
					ON organization_memberships(invited_at) WHERE status = 'pending';
			`,
		},
		{
			Version:     4,
			Description: "Create audit_logs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_logs (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id),
					action VARCHAR(50) NOT NULL,
					resource_type VARCHAR(50) NOT NULL,
					resource_id TEXT,
					performed_by TEXT NOT NULL,
					details JSONB NOT NULL DEFAULT '{}',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_audit_logs_org_created
					ON audit_logs(organization_id, created_at DESC, id DESC);

				CREATE OR REPLACE RULE audit_logs_no_update AS ON UPDATE TO audit_logs DO INSTEAD NOTHING;
				CREATE OR REPLACE RULE audit_logs_no_delete AS ON DELETE TO audit_logs DO INSTEAD NOTHING;
			`,
		},
	}
}

// RunMigrations applies every migration not yet recorded in
// schema_migrations, each in its own transaction
func RunMigrations(ctx context.Context, db *sql.DB, logger logrus.FieldLogger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := AppliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range Migrations() {
		if applied[migration.Version] {
			continue
		}
		log := logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		})
		log.Info("Running migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		log.Info("Migration completed")
	}
	return nil
}

// AppliedVersions returns the recorded migration versions
func AppliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}
