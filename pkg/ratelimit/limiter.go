package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of one Allow call
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
}

// Limiter admits or rejects events per key.
// A non-nil error means the backend failed; callers decide whether to
// fail open.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Config describes a fixed budget per window
type Config struct {
	Limit  int
	Window time.Duration
	Prefix string
}

// DefaultInviteConfig allows 50 invitations per organization per hour
func DefaultInviteConfig() Config {
	return Config{Limit: 50, Window: time.Hour, Prefix: "ratelimit:invites"}
}

func (c Config) withDefaults() Config {
	def := DefaultInviteConfig()
	if c.Limit <= 0 {
		c.Limit = def.Limit
	}
	if c.Window <= 0 {
		c.Window = def.Window
	}
	if c.Prefix == "" {
		c.Prefix = def.Prefix
	}
	return c
}

// Unlimited admits everything
type Unlimited struct{}

// Allow always admits
func (Unlimited) Allow(context.Context, string) (Result, error) {
	return Result{Allowed: true, Limit: -1, Remaining: -1}, nil
}
