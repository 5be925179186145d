package membership

import (
	"context"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/audit"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/rbac"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/tenant"
)

// ListAuditLog returns audit entries of the actor's organization, newest
// first. The filter's organization is always the actor's.
func (s *Service) ListAuditLog(ctx context.Context, actor *tenant.Context, filter audit.Filter) (entries []*audit.Entry, err error) {
	ctx, finish := s.begin(ctx, "list_audit_log")
	defer func() { finish(err) }()

	if err = requirePermission(actor, rbac.PermAuditRead); err != nil {
		return nil, err
	}
	filter.OrganizationID = actor.OrganizationID()
	return s.store.ListAudit(ctx, filter.Normalize())
}

// ExportAuditLog renders the entries ListAuditLog would return
func (s *Service) ExportAuditLog(ctx context.Context, actor *tenant.Context, filter audit.Filter, format audit.ExportFormat) ([]byte, error) {
	entries, err := s.ListAuditLog(ctx, actor, filter)
	if err != nil {
		return nil, err
	}
	return audit.Export(entries, format)
}
