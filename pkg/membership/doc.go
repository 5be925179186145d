// Package membership implements the organization membership lifecycle.
//
// Invitations create pending memberships that become active exactly once
// when accepted before they expire. Members can have their role changed
// or be removed by someone who outranks them, and owners are protected.
// Every committed transition writes one audit entry in the same
// transaction as the state change.
//
// Example:
//
//	svc := membership.NewService(store, invites.NewManager(baseURL),
//		membership.WithInviteLimiter(limiter),
//		membership.WithLogger(logger),
//	)
//
//	inv, err := svc.Invite(ctx, tenant.FromContext(ctx), "new@example.com", rbac.RoleMember)
//	if err != nil {
//		return err
//	}
//	// deliver inv.URL to the invitee
package membership
