package api

import (
	"net/http"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/auth"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/httputil"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/membership"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/middleware"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/observability"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/ratelimit"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/rbac"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/tenant"
	"github.com/gorilla/mux"
)

// Server exposes the membership service over HTTP
type Server struct {
	svc            *membership.Service
	resolver       *tenant.Resolver
	verifier       auth.Verifier
	acceptLimiter  ratelimit.Limiter
	logger         *observability.Logger
	metrics        *observability.Metrics
	selectorHeader string
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the request logger
func WithLogger(logger *observability.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics enables HTTP and rate limit metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithAcceptLimiter limits invitation accept attempts per user
func WithAcceptLimiter(l ratelimit.Limiter) Option {
	return func(s *Server) { s.acceptLimiter = l }
}

// WithSelectorHeader names the header that selects an organization on
// routes without {org}
func WithSelectorHeader(header string) Option {
	return func(s *Server) { s.selectorHeader = header }
}

// NewServer creates the API server
func NewServer(svc *membership.Service, resolver *tenant.Resolver, verifier auth.Verifier, opts ...Option) *Server {
	s := &Server{
		svc:            svc,
		resolver:       resolver,
		verifier:       verifier,
		acceptLimiter:  ratelimit.Unlimited{},
		logger:         observability.NopLogger(),
		selectorHeader: "X-Organization",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the route table with the full middleware chain
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(s.logger))
	router.Use(middleware.Recover(s.logger))
	if s.metrics != nil {
		router.Use(observability.HTTPMetricsMiddleware(s.metrics))
	}

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.Use(middleware.Identity(s.verifier, false, s.logger))
	v1.Use(middleware.TenantContext(s.resolver, s.selectorHeader))
	s.RegisterRoutes(v1)
	return router
}

// RegisterRoutes registers the API on router. Identity and TenantContext
// must already be installed.
func (s *Server) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/context", s.getContext).Methods(http.MethodGet)
	router.HandleFunc("/orgs", s.createOrganization).Methods(http.MethodPost)

	accept := router.PathPrefix("/invitations/{id:[0-9]+}/accept").Subrouter()
	accept.Use(middleware.RateLimit(s.acceptLimiter, s.logger, s.metrics))
	accept.HandleFunc("", s.acceptInvitation).Methods(http.MethodPost)

	org := router.PathPrefix("/orgs/{" + middleware.OrgRouteVar + "}").Subrouter()
	org.Use(middleware.RequireOrganization(s.logger))

	org.Handle("", middleware.RequirePermission(rbac.PermOrgRead, s.logger)(http.HandlerFunc(s.getOrganization))).
		Methods(http.MethodGet)
	org.HandleFunc("", s.updateOrganization).Methods(http.MethodPatch)
	org.HandleFunc("", s.deleteOrganization).Methods(http.MethodDelete)

	org.HandleFunc("/members", s.listMembers).Methods(http.MethodGet)
	org.HandleFunc("/members/{id:[0-9]+}", s.changeRole).Methods(http.MethodPatch)
	org.HandleFunc("/members/{id:[0-9]+}", s.removeMember).Methods(http.MethodDelete)

	org.HandleFunc("/invitations", s.createInvitation).Methods(http.MethodPost)
	org.HandleFunc("/invitations/{id:[0-9]+}", s.revokeInvitation).Methods(http.MethodDelete)

	org.HandleFunc("/audit", s.listAudit).Methods(http.MethodGet)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteDomainError(w, s.logger.FromContext(r.Context()), err)
}
