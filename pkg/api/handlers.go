package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/audit"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/httputil"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/middleware"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/orgs"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/rbac"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/tenant"
)

// OrganizationResponse is an organization with the caller's role in it
type OrganizationResponse struct {
	Organization *orgs.OrganizationSummary `json:"organization"`
	Role         rbac.Role                 `json:"role"`
	Permissions  []rbac.Permission         `json:"permissions"`
	// AssignableRoles lists the roles the caller may invite or promote to
	AssignableRoles []rbac.Role `json:"assignable_roles"`
}

// CreateOrganizationResponse is returned by POST /orgs
type CreateOrganizationResponse struct {
	Organization *orgs.Organization `json:"organization"`
	Membership   *orgs.Membership   `json:"membership"`
}

// AcceptInvitationRequest carries the plaintext invite token
type AcceptInvitationRequest struct {
	Token string `json:"token"`
}

func (s *Server) getContext(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, tenant.FromContext(r.Context()))
}

func (s *Server) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req orgs.CreateOrgRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	org, owner, err := s.svc.CreateOrganization(r.Context(), middleware.IdentityFromContext(r.Context()), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteCreated(w, CreateOrganizationResponse{Organization: org, Membership: owner})
}

func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())
	httputil.WriteSuccess(w, OrganizationResponse{
		Organization:    tc.Organization,
		Role:            tc.Role,
		Permissions:     rbac.RolePermissions(tc.Role),
		AssignableRoles: rbac.ManageableRoles(tc.Role),
	})
}

func (s *Server) updateOrganization(w http.ResponseWriter, r *http.Request) {
	var req orgs.UpdateOrgRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	org, err := s.svc.UpdateOrganization(r.Context(), tenant.FromContext(r.Context()), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

func (s *Server) deleteOrganization(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteOrganization(r.Context(), tenant.FromContext(r.Context())); err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.svc.ListMembers(r.Context(), tenant.FromContext(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if members == nil {
		members = []*orgs.Membership{}
	}
	httputil.WriteSuccess(w, members)
}

func (s *Server) changeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req orgs.UpdateMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	role, err := rbac.ParseRole(req.Role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	m, err := s.svc.ChangeRole(r.Context(), tenant.FromContext(r.Context()), id, role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := s.svc.RemoveMember(r.Context(), tenant.FromContext(r.Context()), id); err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) createInvitation(w http.ResponseWriter, r *http.Request) {
	var req orgs.InviteMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	role, err := rbac.ParseRole(req.Role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	inv, err := s.svc.Invite(r.Context(), tenant.FromContext(r.Context()), req.Email, role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteCreated(w, inv)
}

func (s *Server) revokeInvitation(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := s.svc.RevokeInvite(r.Context(), tenant.FromContext(r.Context()), id); err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req AcceptInvitationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	m, err := s.svc.AcceptInvite(r.Context(), middleware.IdentityFromContext(r.Context()), id, req.Token)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httputil.WriteSuccess(w, m)
}

var exportContentTypes = map[audit.ExportFormat]string{
	audit.ExportFormatCSV:    "text/csv",
	audit.ExportFormatNDJSON: "application/x-ndjson",
}

// listAudit serves GET /orgs/{org}/audit. Query parameters: action
// (repeatable or comma separated), performed_by, since, until (RFC 3339),
// limit, offset and format (json, csv, ndjson).
func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	format := audit.ExportFormat(strings.ToLower(r.URL.Query().Get("format")))
	tc := tenant.FromContext(r.Context())
	if format == "" || format == audit.ExportFormatJSON {
		entries, err := s.svc.ListAuditLog(r.Context(), tc, filter)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if entries == nil {
			entries = []*audit.Entry{}
		}
		httputil.WriteSuccess(w, entries)
		return
	}

	contentType, ok := exportContentTypes[format]
	if !ok {
		httputil.WriteBadRequest(w, "unsupported export format: "+string(format))
		return
	}
	body, err := s.svc.ExportAuditLog(r.Context(), tc, filter, format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="audit.`+string(format)+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func parseAuditFilter(r *http.Request) (audit.Filter, error) {
	var (
		f   audit.Filter
		err error
	)
	for _, a := range httputil.ParseQueryList(r, "action") {
		action := audit.Action(a)
		if !action.IsValid() {
			return f, fmt.Errorf("unknown audit action: %s", a)
		}
		f.Actions = append(f.Actions, action)
	}
	f.PerformedBy = r.URL.Query().Get("performed_by")
	if f.StartTime, err = httputil.ParseQueryTime(r, "since"); err != nil {
		return f, err
	}
	if f.EndTime, err = httputil.ParseQueryTime(r, "until"); err != nil {
		return f, err
	}
	if f.Limit, err = httputil.ParseQueryInt(r, "limit", audit.DefaultLimit); err != nil {
		return f, err
	}
	if f.Offset, err = httputil.ParseQueryInt(r, "offset", 0); err != nil {
		return f, err
	}
	return f, nil
}
