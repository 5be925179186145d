// Package tenant resolves the per-request tenant context: the acting
// user, the selected organization, the user's role there and the backing
// membership.
//
// Resolution is fail-closed. Storage faults produce the empty context,
// which grants nothing, instead of an error:
//
//	tc := resolver.ResolveForRequest(ctx, identity, r.Header.Get("X-Organization"))
//	if err := tc.Require(); err != nil {
//		return err
//	}
//	if !tc.HasPermission(rbac.PermUserInvite) {
//		return orgs.ErrForbidden
//	}
//
// Without a selector the oldest membership is used, unless the resolver
// was built WithStrictSelection.
package tenant
