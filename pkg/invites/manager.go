package invites

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// TokenBytes is the amount of randomness in a token (256 bits)
	TokenBytes = 32
	// TokenLength is the hex-encoded token length
	TokenLength = TokenBytes * 2
	// InviteTTL is how long an invitation can be accepted
	InviteTTL = 7 * 24 * time.Hour
)

// Manager generates invite tokens and evaluates invitation expiry.
// Expiry is always derived from the invitation time, never stored.
type Manager struct {
	baseURL string
	now     func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a manager that builds accept links under baseURL
func NewManager(baseURL string, opts ...Option) *Manager {
	m := &Manager{
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GenerateToken returns 64 hex characters of cryptographic randomness
func (m *Manager) GenerateToken() string {
	b := make([]byte, TokenBytes)
	// crypto/rand.Read never returns an error
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// HashToken computes the SHA-256 hash stored in place of the token
func (m *Manager) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// VerifyToken compares a presented token with a stored hash in constant time
func (m *Manager) VerifyToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(m.HashToken(token)), []byte(hash)) == 1
}

// CreateInviteURL builds the accept link for a pending membership
func (m *Manager) CreateInviteURL(memberID int64, token string) string {
	return m.baseURL + "/invite/" + token + "?member=" + strconv.FormatInt(memberID, 10)
}

// ExpiresAt is the derived expiry of an invitation sent at invitedAt
func (m *Manager) ExpiresAt(invitedAt time.Time) time.Time {
	return invitedAt.Add(InviteTTL)
}

// IsExpired reports whether at least InviteTTL has passed since invitedAt
func (m *Manager) IsExpired(invitedAt time.Time) bool {
	return m.now().Sub(invitedAt) >= InviteTTL
}

// DaysRemaining rounds the time left up to whole days. The result is zero
// or negative once expired, and above 7 for clock-skewed future timestamps.
func (m *Manager) DaysRemaining(invitedAt time.Time) int {
	left := m.ExpiresAt(invitedAt).Sub(m.now())
	return int(math.Ceil(left.Hours() / 24))
}

// Now returns the manager's current time
func (m *Manager) Now() time.Time {
	return m.now()
}
