// Package ratelimit limits invitation issuance per organization.
//
// RedisLimiter keeps a fixed-window counter in Redis so the budget is
// shared across instances. LocalLimiter is an in-process token bucket for
// single-instance deployments and tests.
//
// Backend failures are returned alongside an allowed Result; the
// membership service logs them and lets the invitation through.
package ratelimit
