// Package httputil provides HTTP utilities for JSON request and response
// handling and the mapping of domain errors to status codes.
//
// # Error Mapping
//
// Handlers return service errors unchanged to WriteDomainError:
//
//	m, err := svc.AcceptInvite(ctx, identity, id, req.Token)
//	if err != nil {
//		httputil.WriteDomainError(w, logger, err)
//		return
//	}
//
// StatusForError gives the status and a stable machine-readable code:
//
//	unauthenticated                      401
//	no organization, forbidden,
//	email mismatch                       403
//	not found                            404
//	invite expired                       410
//	invalid role, invalid input          400
//	owner protected, already member,
//	slug taken                           409
//	rate limited                         429
//
// Any other error is logged and answered with a generic 500 body.
//
// # Request Parsing
//
//	var req InviteRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
//
// # Related Packages
//
//   - pkg/middleware: identity, tenant and permission middleware
package httputil
