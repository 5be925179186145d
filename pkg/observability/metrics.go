package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Transition outcomes
const (
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"
)

// Tenant resolution results
const (
	ResolutionAnonymous = "anonymous"
	ResolutionUserOnly  = "user_only"
	ResolutionResolved  = "resolved"
	ResolutionError     = "error"
)

// Metrics holds all Prometheus metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	TransitionsTotal     *prometheus.CounterVec
	OperationDuration    *prometheus.HistogramVec
	TenantResolutions    *prometheus.CounterVec
	InvitesRateLimited   prometheus.Counter
	RequestsRateLimited  prometheus.Counter
	LimiterErrorsTotal   prometheus.Counter
	ExpiredInvitesPurged prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "affiliate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "affiliate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "affiliate_membership_transitions_total",
				Help: "Membership and organization lifecycle operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "affiliate_membership_operation_duration_seconds",
				Help:    "Lifecycle operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		TenantResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "affiliate_tenant_resolutions_total",
				Help: "Tenant context resolutions by result",
			},
			[]string{"result"},
		),
		InvitesRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "affiliate_invites_rate_limited_total",
			Help: "Invitations rejected by the issuance rate limit",
		}),
		RequestsRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "affiliate_http_requests_rate_limited_total",
			Help: "HTTP requests rejected by the per-client rate limit",
		}),
		LimiterErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "affiliate_rate_limiter_errors_total",
			Help: "Rate limiter backend failures (requests were allowed)",
		}),
		ExpiredInvitesPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "affiliate_expired_invites_purged_total",
			Help: "Pending memberships deleted after their invitation expired",
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.TransitionsTotal,
		m.OperationDuration,
		m.TenantResolutions,
		m.InvitesRateLimited,
		m.RequestsRateLimited,
		m.LimiterErrorsTotal,
		m.ExpiredInvitesPurged,
	)

	return m
}

// RecordTransition counts a lifecycle operation and observes its duration
func (m *Metrics) RecordTransition(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordResolution counts a tenant context resolution
func (m *Metrics) RecordResolution(result string) {
	if m == nil {
		return
	}
	m.TenantResolutions.WithLabelValues(result).Inc()
}

// RecordRateLimited counts an invitation rejected by the rate limit
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.InvitesRateLimited.Inc()
}

// RecordRequestRateLimited counts an HTTP request rejected by RateLimit
func (m *Metrics) RecordRequestRateLimited() {
	if m == nil {
		return
	}
	m.RequestsRateLimited.Inc()
}

// RecordLimiterError counts a limiter backend failure
func (m *Metrics) RecordLimiterError() {
	if m == nil {
		return
	}
	m.LimiterErrorsTotal.Inc()
}

// RecordPurged counts purged expired invitations
func (m *Metrics) RecordPurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.ExpiredInvitesPurged.Add(float64(n))
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routeLabel uses the mux route template so ids do not explode cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, gatherer prometheus.Gatherer) {
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
