// Package audit defines the append-only audit trail of organization and
// membership transitions.
//
// # Overview
//
// Every committed lifecycle transition writes exactly one Entry in the same
// transaction as the state change. Entries are never updated or deleted.
//
// # Actions
//
// Invitations: invite_sent, invite_accepted, invite_revoked
// Members: member_updated, member_removed
// Organizations: org_created, org_updated, org_deleted
//
// # Usage Example
//
// Record a role change with before/after values:
//
//	entry := audit.NewEntry(orgID, audit.ActionMemberUpdated, actorID).
//		WithResource(audit.ResourceTypeMembership, strconv.FormatInt(m.ID, 10)).
//		WithChanges(&audit.ChangeDetails{
//			Before: map[string]any{"role": "member"},
//			After:  map[string]any{"role": "manager"},
//		})
//
// Export a page of entries:
//
//	data, err := audit.Export(entries, audit.ExportFormatCSV)
package audit
