package membership

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/invites"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/observability"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/orgs"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/ratelimit"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/rbac"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/tenant"
	"go.opentelemetry.io/otel/trace"
)

// Service runs every membership and organization transition. Each
// transition commits its state change and exactly one audit entry in a
// single store transaction.
type Service struct {
	store   orgs.Store
	tokens  *invites.Manager
	limiter ratelimit.Limiter
	logger  *observability.Logger
	metrics *observability.Metrics
	otel    *observability.OTelMetrics
	tracer  trace.Tracer
}

// Option configures a Service
type Option func(*Service)

// WithLogger sets the logger for committed transitions and faults
func WithLogger(logger *observability.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics records transitions in prometheus
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithOTelMetrics mirrors transition metrics to OpenTelemetry
func WithOTelMetrics(m *observability.OTelMetrics) Option {
	return func(s *Service) { s.otel = m }
}

// WithTracerProvider sets where operation spans are exported
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = observability.Tracer(tp) }
}

// WithInviteLimiter bounds invitation issuance per organization
func WithInviteLimiter(l ratelimit.Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

// NewService creates a lifecycle service
func NewService(store orgs.Store, tokens *invites.Manager, opts ...Option) *Service {
	s := &Service{
		store:   store,
		tokens:  tokens,
		limiter: ratelimit.Unlimited{},
		logger:  observability.NopLogger(),
		tracer:  observability.Tracer(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// begin opens a span for operation and returns the function that closes
// it, records metrics and logs infrastructure failures
func (s *Service) begin(ctx context.Context, operation string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "membership."+operation)
	return ctx, func(err error) {
		outcome := observability.OutcomeSuccess
		switch {
		case err == nil:
		case orgs.IsDomainError(err):
			outcome = observability.OutcomeDenied
		default:
			outcome = observability.OutcomeError
			s.logger.FromContext(ctx).WithError(err).WithField("operation", operation).
				Error("Membership operation failed")
		}
		elapsed := time.Since(start)
		s.metrics.RecordTransition(operation, outcome, elapsed)
		s.otel.RecordTransition(ctx, operation, outcome, elapsed)
		observability.EndSpan(span, err)
	}
}

// requirePermission checks the actor's resolved context and permission
func requirePermission(actor *tenant.Context, perm rbac.Permission) error {
	if err := actor.Require(); err != nil {
		return err
	}
	if !actor.HasPermission(perm) {
		return fmt.Errorf("%w: role %s lacks %s", orgs.ErrForbidden, actor.Role, perm)
	}
	return nil
}

// currentActorRole re-reads the actor's membership inside the transaction
// so a role changed since the request was resolved is honored
func currentActorRole(ctx context.Context, tx orgs.Tx, actor *tenant.Context, perm rbac.Permission) (rbac.Role, error) {
	m, err := tx.GetMembership(ctx, actor.Membership.ID)
	if err != nil {
		if orgs.IsDomainError(err) {
			return "", fmt.Errorf("%w: actor membership no longer exists", orgs.ErrForbidden)
		}
		return "", err
	}
	if !m.IsActive() || m.OrganizationID != actor.OrganizationID() || !m.BelongsTo(actor.UserID()) {
		return "", fmt.Errorf("%w: actor membership is not active", orgs.ErrForbidden)
	}
	if perm != "" && !rbac.HasPermission(m.Role, perm) {
		return "", fmt.Errorf("%w: role %s lacks %s", orgs.ErrForbidden, m.Role, perm)
	}
	return m.Role, nil
}

// reloadTarget re-reads target inside tx. A row that moved to another
// organization reports ErrNotFound.
func reloadTarget(ctx context.Context, tx orgs.Tx, target *orgs.Membership) (*orgs.Membership, error) {
	m, err := tx.GetMembership(ctx, target.ID)
	if err != nil {
		return nil, err
	}
	if m.OrganizationID != target.OrganizationID {
		return nil, fmt.Errorf("%w: membership %d", orgs.ErrNotFound, target.ID)
	}
	return m, nil
}

// now is the token manager's clock so timestamps and expiry agree
func (s *Service) now() time.Time {
	return s.tokens.Now()
}

// loadTarget fetches a membership of the actor's organization
func (s *Service) loadTarget(ctx context.Context, actor *tenant.Context, id int64) (*orgs.Membership, error) {
	m, err := s.store.GetMembership(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.OrganizationID != actor.OrganizationID() {
		return nil, fmt.Errorf("%w: membership %d", orgs.ErrNotFound, id)
	}
	return m, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (s *Service) logTransition(ctx context.Context, msg string, fields map[string]any) {
	s.logger.FromContext(ctx).WithFields(fields).Info(msg)
}
