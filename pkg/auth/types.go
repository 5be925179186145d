package auth

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// ErrInvalidIdentity is returned when an identity lacks a subject or a
// usable email address
var ErrInvalidIdentity = errors.New("invalid identity")

// Identity is an already-authenticated user as asserted by the identity
// provider. Email is expected to be verified by the provider.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Validate checks that the identity can be used by the core
func (i *Identity) Validate() error {
	if i == nil || strings.TrimSpace(i.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidIdentity)
	}
	if _, err := mail.ParseAddress(i.Email); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	return nil
}

// Verifier turns a bearer credential into an identity
type Verifier interface {
	Verify(token string) (*Identity, error)
}
