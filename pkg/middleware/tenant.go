package middleware

import (
	"net/http"
	"strconv"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/contextkeys"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/httputil"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/observability"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/orgs"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/rbac"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/tenant"
	"github.com/gorilla/mux"
)

// OrgRouteVar is the mux variable that selects an organization by slug or id
const OrgRouteVar = "org"

// TenantContext resolves the tenant context for the identity in the request
// and stores it with tenant.NewContext. The organization selector comes from
// the {org} route variable, falling back to selectorHeader.
// A route that names an organization the user is not a member of gets a
// context without organization rather than the default one.
// It never rejects; pair it with RequirePermission.
func TenantContext(resolver *tenant.Resolver, selectorHeader string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := tenant.WithRequestCache(r.Context())

			routeSelector := mux.Vars(r)[OrgRouteVar]
			selector := routeSelector
			if selector == "" && selectorHeader != "" {
				selector = r.Header.Get(selectorHeader)
			}

			tc := resolver.ResolveForRequest(ctx, IdentityFromContext(ctx), selector)
			if routeSelector != "" && tc.HasOrganization() && !selects(tc.Organization, routeSelector) {
				tc = &tenant.Context{User: tc.User}
			}
			ctx = tenant.NewContext(ctx, tc)
			if tc.HasOrganization() {
				ctx = contextkeys.WithOrgID(ctx, tc.OrganizationID())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func selects(org *orgs.OrganizationSummary, selector string) bool {
	return org.Slug == selector || strconv.FormatInt(org.ID, 10) == selector
}

// RequireOrganization rejects requests without a selected organization
func RequireOrganization(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := tenant.FromContext(r.Context()).Require(); err != nil {
				httputil.WriteDomainError(w, logger, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermission rejects requests whose tenant context lacks perm
func RequirePermission(perm rbac.Permission, logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc := tenant.FromContext(r.Context())
			if err := tc.Require(); err != nil {
				httputil.WriteDomainError(w, logger, err)
				return
			}
			if !tc.HasPermission(perm) {
				httputil.WriteDomainError(w, logger, orgs.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
