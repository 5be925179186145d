package tenant

import (
	"context"
	"sync"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/auth"
	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/contextkeys"
	lru "github.com/hashicorp/golang-lru/v2"
)

// requestCacheSize bounds the memo when a request probes many selectors
const requestCacheSize = 16

type cacheKey struct {
	userID   string
	selector string
}

// requestCache memoizes resolutions for the lifetime of one request. mu
// serializes misses so a key resolves once.
type requestCache struct {
	mu      sync.Mutex
	entries *lru.Cache[cacheKey, *Context]
}

// WithRequestCache installs an empty memo in ctx. Call it once per request;
// the memo is discarded with the request context.
func WithRequestCache(ctx context.Context) context.Context {
	entries, _ := lru.New[cacheKey, *Context](requestCacheSize)
	return context.WithValue(ctx, contextkeys.TenantCacheKey, &requestCache{entries: entries})
}

// ResolveForRequest resolves once per identity and selector within a
// request. Without a memo in ctx it behaves like Resolve.
func (r *Resolver) ResolveForRequest(ctx context.Context, identity *auth.Identity, selector string) *Context {
	cache, ok := ctx.Value(contextkeys.TenantCacheKey).(*requestCache)
	if !ok || identity == nil {
		return r.Resolve(ctx, identity, selector)
	}

	key := cacheKey{userID: identity.UserID, selector: selector}
	cache.mu.Lock()
	defer cache.mu.Unlock()
	if tc, found := cache.entries.Get(key); found {
		return tc
	}
	tc := r.Resolve(ctx, identity, selector)
	cache.entries.Add(key, tc)
	return tc
}

// FromContext returns the tenant context stored by the HTTP middleware,
// or the empty context
func FromContext(ctx context.Context) *Context {
	if tc, ok := ctx.Value(contextkeys.TenantKey).(*Context); ok && tc != nil {
		return tc
	}
	return Empty()
}

// NewContext stores tc in ctx
func NewContext(ctx context.Context, tc *Context) context.Context {
	return contextkeys.WithTenant(ctx, tc)
}
