package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/httputil"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/observability"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/orgs"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/ratelimit"
)

// RateLimit limits requests per authenticated user, or per client IP for
// anonymous requests. Limiter faults fail open.
func RateLimit(limiter ratelimit.Limiter, logger *observability.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + clientIP(r)
			if identity := IdentityFromContext(r.Context()); identity != nil {
				key = "user:" + identity.UserID
			}

			res, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.FromContext(r.Context()).WithError(err).Warn("Rate limiter unavailable, allowing request")
				metrics.RecordLimiterError()
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if !res.Allowed {
				metrics.RecordRequestRateLimited()
				w.Header().Set("Retry-After", fmt.Sprintf("%.0f", res.ResetAfter.Seconds()))
				httputil.WriteDomainError(w, logger, orgs.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
