package tenant

import (
	"context"
	"strconv"
	"strings"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/auth"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/observability"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/orgs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MembershipLister is the read the resolver needs from persistence
type MembershipLister interface {
	// ListMembershipsForUser returns active memberships ordered by
	// membership creation time, then id
	ListMembershipsForUser(ctx context.Context, userID string) ([]*orgs.MembershipWithOrg, error)
}

// Resolver computes the tenant context of a request
type Resolver struct {
	store   MembershipLister
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
	strict  bool
}

// Option configures a Resolver
type Option func(*Resolver)

// WithLogger sets the logger used for persistence faults
func WithLogger(logger *observability.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithMetrics records resolution outcomes
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithTracerProvider sets the tracer provider; the global one is used otherwise
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Resolver) { r.tracer = observability.Tracer(tp) }
}

// WithStrictSelection disables the default-to-first fallback. A user with
// several memberships must name one, and an unknown selector yields a
// user-only context.
func WithStrictSelection(strict bool) Option {
	return func(r *Resolver) { r.strict = strict }
}

// NewResolver creates a resolver over store
func NewResolver(store MembershipLister, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		logger: observability.NopLogger(),
		tracer: observability.Tracer(nil),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve never fails: a missing identity gives the empty context, a
// persistence fault gives the empty context and a warning log, and a
// user without a usable membership gives a user-only context.
// selector is an organization slug or numeric id, and may be empty.
func (r *Resolver) Resolve(ctx context.Context, identity *auth.Identity, selector string) *Context {
	if identity == nil || identity.UserID == "" {
		r.metrics.RecordResolution(observability.ResolutionAnonymous)
		return Empty()
	}

	ctx, span := r.tracer.Start(ctx, "tenant.Resolve")
	defer span.End()

	memberships, err := r.store.ListMembershipsForUser(ctx, identity.UserID)
	if err != nil {
		r.logger.FromContext(ctx).WithError(err).WithField("user_id", identity.UserID).
			Warn("Failed to list memberships, resolving empty tenant context")
		r.metrics.RecordResolution(observability.ResolutionError)
		span.RecordError(err)
		return Empty()
	}

	user := &auth.Identity{UserID: identity.UserID, Email: identity.Email}
	selected := r.selectMembership(memberships, strings.TrimSpace(selector))
	if selected == nil {
		r.metrics.RecordResolution(observability.ResolutionUserOnly)
		return &Context{User: user}
	}

	org := selected.Organization
	span.SetAttributes(
		attribute.Int64("org.id", org.ID),
		attribute.String("org.role", selected.Role.String()),
	)
	r.metrics.RecordResolution(observability.ResolutionResolved)
	return &Context{
		User:         user,
		Organization: &orgs.OrganizationSummary{ID: org.ID, Name: org.Name, Slug: org.Slug},
		Role:         selected.Role,
		Membership: &MembershipRef{
			ID:       selected.ID,
			JoinedAt: selected.JoinedAt(),
		},
	}
}

func (r *Resolver) selectMembership(all []*orgs.MembershipWithOrg, selector string) *orgs.MembershipWithOrg {
	memberships := make([]*orgs.MembershipWithOrg, 0, len(all))
	for _, m := range all {
		if m != nil && m.IsActive() {
			memberships = append(memberships, m)
		}
	}
	if len(memberships) == 0 {
		return nil
	}
	if selector != "" {
		if m := matchSelector(memberships, selector); m != nil {
			return m
		}
		if r.strict {
			return nil
		}
		return memberships[0]
	}
	if r.strict && len(memberships) > 1 {
		return nil
	}
	return memberships[0]
}

func matchSelector(memberships []*orgs.MembershipWithOrg, selector string) *orgs.MembershipWithOrg {
	id, idErr := strconv.ParseInt(selector, 10, 64)
	for _, m := range memberships {
		if m.Organization.Slug == selector {
			return m
		}
		if idErr == nil && m.Organization.ID == id {
			return m
		}
	}
	return nil
}
