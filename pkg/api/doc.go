// Package api exposes organization membership management over HTTP.
//
// All routes live under /v1 and require a bearer token. The tenant
// context is resolved once per request from the {org} route variable,
// or the selector header on routes without one.
//
//	GET    /v1/context                          resolved tenant context
//	POST   /v1/orgs                             create an organization
//	POST   /v1/invitations/{id}/accept          accept an invitation
//	GET    /v1/orgs/{org}                       organization and caller role
//	PATCH  /v1/orgs/{org}                       rename or change slug
//	DELETE /v1/orgs/{org}                       soft delete
//	GET    /v1/orgs/{org}/members               list members and invitations
//	PATCH  /v1/orgs/{org}/members/{id}          change role
//	DELETE /v1/orgs/{org}/members/{id}          remove member
//	POST   /v1/orgs/{org}/invitations           invite by email
//	DELETE /v1/orgs/{org}/invitations/{id}      revoke invitation
//	GET    /v1/orgs/{org}/audit                 audit log, json csv or ndjson
//
// Accept attempts are rate limited per caller so invite tokens cannot be
// guessed online. Errors use the httputil error body with a stable code.
package api
