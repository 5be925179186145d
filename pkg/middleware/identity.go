package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/auth"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/contextkeys"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/httputil"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/observability"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/orgs"
)

// Identity authenticates the bearer token with verifier and stores the
// resulting *auth.Identity in the request context.
// With optional set, requests without an Authorization header pass through
// anonymously; a present but invalid token is always rejected.
func Identity(verifier auth.Verifier, optional bool, logger *observability.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				if optional {
					next.ServeHTTP(w, r)
					return
				}
				httputil.WriteDomainError(w, logger, orgs.ErrUnauthenticated)
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				httputil.WriteDomainError(w, logger, orgs.ErrUnauthenticated)
				return
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				logger.FromContext(r.Context()).WithError(err).Debug("Rejected bearer token")
				httputil.WriteDomainError(w, logger, orgs.ErrUnauthenticated)
				return
			}

			ctx := contextkeys.WithIdentity(r.Context(), identity)
			ctx = contextkeys.WithUserID(ctx, identity.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext returns the authenticated identity, or nil
func IdentityFromContext(ctx context.Context) *auth.Identity {
	identity, _ := ctx.Value(contextkeys.IdentityKey).(*auth.Identity)
	return identity
}
