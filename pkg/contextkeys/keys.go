// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here so that
// producers and consumers agree on key and value type.
//
// USAGE PATTERN:
//
//	ctx = contextkeys.WithIdentity(ctx, identity)
//	identity, _ := ctx.Value(contextkeys.IdentityKey).(*auth.Identity)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains *auth.Identity
	// Set by: middleware.Identity (pkg/middleware/identity.go)
	// Required by: tenant resolution, lifecycle handlers
	IdentityKey Key = "identity"

	// TenantKey contains *tenant.Context
	// Set by: middleware.TenantContext (pkg/middleware/tenant.go)
	// Required by: permission middleware, org-scoped handlers
	TenantKey Key = "tenant_context"

	// TenantCacheKey contains the per-request tenant memo
	// Set by: tenant.WithRequestCache
	TenantCacheKey Key = "tenant_cache"

	// RequestIDKey contains request ID string (UUID)
	// Set by: middleware.RequestID
	// Used by: Logger, distributed tracing
	RequestIDKey Key = "request_id"

	// UserIDKey contains user ID string
	// Set by: middleware.Identity
	// Used by: Logger
	UserIDKey Key = "user_id"

	// OrgIDKey contains the selected organization id (int64)
	// Set by: middleware.TenantContext
	// Used by: Logger
	OrgIDKey Key = "org_id"

	// LoggerKey contains *observability.Logger
	LoggerKey Key = "logger"
)

// WithIdentity adds the authenticated identity to the context
func WithIdentity(ctx context.Context, identity any) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// WithTenant adds the resolved tenant context to the context
func WithTenant(ctx context.Context, tenant any) context.Context {
	return context.WithValue(ctx, TenantKey, tenant)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithOrgID adds the selected organization id to the context
func WithOrgID(ctx context.Context, orgID int64) context.Context {
	return context.WithValue(ctx, OrgIDKey, orgID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger any) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

// GetOrgID retrieves the selected organization id from context
func GetOrgID(ctx context.Context) (int64, bool) {
	orgID, ok := ctx.Value(OrgIDKey).(int64)
	return orgID, ok
}
