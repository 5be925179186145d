// Package orgs holds the organization and membership domain types, the
// typed errors shared by the authorization core and the persistence
// contract the core depends on.
//
// # Memberships
//
// A membership is created pending when an invitation is sent and becomes
// active exactly once when the invitee accepts it. The creator of an
// organization gets an active owner membership directly.
//
//	pending --accept--> active --remove--> (deleted)
//	pending --revoke--> (deleted)
//
// Pending memberships carry the invited email and the SHA-256 hash of the
// invite token. The plaintext token is never stored.
//
// # Errors
//
// Every failure returned by the core wraps one of the sentinel errors in
// this package, so callers can branch with errors.Is:
//
//	if errors.Is(err, orgs.ErrOwnerProtected) {
//		// transfer ownership first
//	}
//
// # Related Packages
//
//   - pkg/storage/postgres: Store implementation on PostgreSQL
//   - pkg/membership: lifecycle operations on top of Store
package orgs
