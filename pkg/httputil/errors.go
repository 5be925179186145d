package httputil

import (
	"errors"
	"net/http"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/observability"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/orgs"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{orgs.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{orgs.ErrNoOrganizationContext, http.StatusForbidden, "no_organization"},
	{orgs.ErrForbidden, http.StatusForbidden, "forbidden"},
	{orgs.ErrEmailMismatch, http.StatusForbidden, "email_mismatch"},
	{orgs.ErrNotFound, http.StatusNotFound, "not_found"},
	{orgs.ErrInviteExpired, http.StatusGone, "invite_expired"},
	{orgs.ErrInvalidRole, http.StatusBadRequest, "invalid_role"},
	{orgs.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{orgs.ErrOwnerProtected, http.StatusConflict, "owner_protected"},
	{orgs.ErrAlreadyMember, http.StatusConflict, "already_member"},
	{orgs.ErrSlugTaken, http.StatusConflict, "slug_taken"},
	{orgs.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
}

// StatusForError maps a domain error to its HTTP status and a stable code.
// Anything else is a 500.
func StatusForError(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// WriteDomainError writes err with its mapped status. Internal errors are
// logged and replaced by a generic message.
func WriteDomainError(w http.ResponseWriter, logger *observability.Logger, err error) {
	status, code := StatusForError(err)
	if status == http.StatusInternalServerError {
		if logger != nil {
			logger.WithError(err).Error("Request failed")
		}
		WriteJSON(w, status, ErrorResponse{Error: "internal server error", Code: code})
		return
	}
	WriteJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}
