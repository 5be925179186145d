package invites

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGenerateToken(t *testing.T) {
	m := NewManager("https://app.example.com")

	t.Run("format", func(t *testing.T) {
		token := m.GenerateToken()
		assert.Len(t, token, TokenLength)
		_, err := hex.DecodeString(token)
		assert.NoError(t, err)
	})

	t.Run("unique across 10000 tokens", func(t *testing.T) {
		seen := make(map[string]struct{}, 10000)
		for i := 0; i < 10000; i++ {
			token := m.GenerateToken()
			_, dup := seen[token]
			require.False(t, dup, "duplicate token %s", token)
			seen[token] = struct{}{}
		}
	})
}

func TestHashAndVerify(t *testing.T) {
	m := NewManager("https://app.example.com")
	token := m.GenerateToken()
	hash := m.HashToken(token)

	assert.Len(t, hash, 64)
	assert.NotEqual(t, token, hash)
	assert.Equal(t, hash, m.HashToken(token))
	assert.True(t, m.VerifyToken(token, hash))
	assert.False(t, m.VerifyToken(m.GenerateToken(), hash))
	assert.False(t, m.VerifyToken("", hash))
	assert.False(t, m.VerifyToken(token, ""))
}

func TestCreateInviteURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"https://app.example.com", "https://app.example.com/invite/abc123?member=42"},
		{"https://app.example.com/", "https://app.example.com/invite/abc123?member=42"},
		{"http://localhost:3000/dashboard", "http://localhost:3000/dashboard/invite/abc123?member=42"},
	}

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			assert.Equal(t, tt.want, NewManager(tt.base).CreateInviteURL(42, "abc123"))
		})
	}
}

func TestExpiryRoundTrip(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)
	m := NewManager("https://app.example.com", WithClock(fixedClock(now)))

	for k := 0; k <= 10; k++ {
		invitedAt := now.Add(-time.Duration(k) * 24 * time.Hour)
		assert.Equal(t, 7-k, m.DaysRemaining(invitedAt), "k=%d", k)
		assert.Equal(t, k >= 7, m.IsExpired(invitedAt), "k=%d", k)
	}
}

func TestExpiryBoundaries(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)
	m := NewManager("https://app.example.com", WithClock(fixedClock(now)))

	t.Run("one second before expiry", func(t *testing.T) {
		invitedAt := now.Add(-InviteTTL + time.Second)
		assert.False(t, m.IsExpired(invitedAt))
		assert.Equal(t, 1, m.DaysRemaining(invitedAt))
	})

	t.Run("exactly at expiry", func(t *testing.T) {
		invitedAt := now.Add(-InviteTTL)
		assert.True(t, m.IsExpired(invitedAt))
		assert.Equal(t, 0, m.DaysRemaining(invitedAt))
	})

	t.Run("partial days round up", func(t *testing.T) {
		invitedAt := now.Add(-36 * time.Hour)
		assert.Equal(t, 6, m.DaysRemaining(invitedAt))
	})

	t.Run("future invitation", func(t *testing.T) {
		invitedAt := now.Add(48 * time.Hour)
		assert.False(t, m.IsExpired(invitedAt))
		assert.Equal(t, 9, m.DaysRemaining(invitedAt))
	})

	t.Run("expires at", func(t *testing.T) {
		assert.Equal(t, now.Add(7*24*time.Hour), m.ExpiresAt(now))
	})
}
