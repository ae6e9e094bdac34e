package storage

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/tmercier/keepsake/pkg/auth"
)

// CachedUserLookup memoizes user lookups behind a short-TTL LRU. Auto-login
// runs on every request, so hot sessions would otherwise hit the user store
// each time. The TTL bounds how long a password change can go unnoticed by
// cached entries; keep it small.
type CachedUserLookup struct {
	next  auth.UserLookup
	cache *expirable.LRU[string, auth.User]
}

// NewCachedUserLookup wraps a lookup with an LRU of the given size and TTL.
func NewCachedUserLookup(next auth.UserLookup, size int, ttl time.Duration) *CachedUserLookup {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedUserLookup{
		next:  next,
		cache: expirable.NewLRU[string, auth.User](size, nil, ttl),
	}
}

// GetUser serves from cache when possible. Misses and negative results are
// delegated; only positive results are cached, so a missing user never
// lingers as a stale negative entry.
func (l *CachedUserLookup) GetUser(ctx context.Context, field, value string) (auth.User, error) {
	key := field + "\x00" + value
	if user, ok := l.cache.Get(key); ok {
		return user, nil
	}
	user, err := l.next.GetUser(ctx, field, value)
	if err != nil {
		return nil, err
	}
	if user != nil {
		l.cache.Add(key, user)
	}
	return user, nil
}

// Invalidate drops the cached entry for a field/value pair. Call it after
// password changes so the next auto-login sees the new hash immediately.
func (l *CachedUserLookup) Invalidate(field, value string) {
	l.cache.Remove(field + "\x00" + value)
}
