package orgs

import (
	"errors"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/rbac"
)

var (
	// ErrUnauthenticated means no identity was presented
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNoOrganizationContext means the identity has no selected organization
	ErrNoOrganizationContext = errors.New("no organization context")

	// ErrForbidden means the actor lacks the permission or hierarchy level
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound covers missing rows, token mismatches and invitations
	// that are no longer pending
	ErrNotFound = errors.New("not found")

	ErrInviteExpired = errors.New("invitation expired")
	ErrEmailMismatch = errors.New("invitation was sent to a different email")

	// ErrInvalidRole is the rbac sentinel so both packages match with errors.Is
	ErrInvalidRole = rbac.ErrInvalidRole

	ErrOwnerProtected = errors.New("owner membership is protected")
	ErrInvalidInput   = errors.New("invalid input")
	ErrAlreadyMember  = errors.New("already a member")
	ErrSlugTaken      = errors.New("organization slug already taken")
	ErrRateLimited    = errors.New("rate limit exceeded")
)

var domainErrors = []error{
	ErrUnauthenticated, ErrNoOrganizationContext, ErrForbidden, ErrNotFound,
	ErrInviteExpired, ErrEmailMismatch, ErrInvalidRole, ErrOwnerProtected,
	ErrInvalidInput, ErrAlreadyMember, ErrSlugTaken, ErrRateLimited,
}

// IsDomainError reports whether err is an expected business outcome
// rather than an infrastructure failure
func IsDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
