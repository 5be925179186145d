package postgres

// SQLiteSchema mirrors Migrations in SQLite syntax. Store only issues
// portable SQL, so tests run it against an embedded database.
const SQLiteSchema = `
CREATE TABLE users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE organizations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	slug TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL DEFAULT 'active',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE organization_memberships (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	organization_id INTEGER NOT NULL REFERENCES organizations(id),
	user_id TEXT REFERENCES users(id),
	role TEXT NOT NULL,
	status TEXT NOT NULL,
	invited_email TEXT NOT NULL DEFAULT '',
	invited_by TEXT,
	invited_at TIMESTAMP,
	accepted_at TIMESTAMP,
	invite_token_hash TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX idx_memberships_org_user
	ON organization_memberships(organization_id, user_id) WHERE user_id IS NOT NULL;

CREATE TABLE audit_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	organization_id INTEGER NOT NULL,
	action TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id TEXT,
	performed_by TEXT NOT NULL,
	details TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMP NOT NULL
);
`
