// Package middleware provides HTTP middleware for request identification,
// authentication, tenant resolution, permission checks and rate limiting.
//
// # Middleware Components
//
// A typical chain for organization-scoped routes:
//
//	router.Use(middleware.RequestID)
//	router.Use(middleware.Logging(logger))
//	router.Use(middleware.Recover(logger))
//	router.Use(middleware.Identity(verifier, false, logger))
//	router.Use(middleware.TenantContext(resolver, "X-Organization"))
//
//	members := router.PathPrefix("/orgs/{org}/members").Subrouter()
//	members.Use(middleware.RequirePermission(rbac.PermUserRead, logger))
//
// Identity turns a bearer token into an *auth.Identity. TenantContext
// resolves the organization, role and membership once per request and
// stores the result for tenant.FromContext; it never rejects a request on
// its own. RequireOrganization and RequirePermission reject with the status
// httputil.StatusForError assigns.
//
// # Rate Limiting
//
// RateLimit keys by user id when an identity is present and by client IP
// otherwise. It sets X-RateLimit-Limit and X-RateLimit-Remaining, answers
// 429 with Retry-After when the budget is spent, and lets requests through
// when the limiter backend fails.
//
// # Related Packages
//
//   - pkg/auth: Identity verification
//   - pkg/tenant: Tenant context resolution
//   - pkg/ratelimit: Limiter backends
package middleware
