package roster

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedProvider memoizes class lookups and rosters of another provider.
// Errors are never cached.
type CachedProvider struct {
	next  Provider
	cache *cache.Cache
}

// NewCachedProvider wraps next with a TTL cache.
func NewCachedProvider(next Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func cacheKey(kind, subjectID, sectionID string) string {
	return kind + "\x00" + subjectID + "\x00" + sectionID
}

// Class returns the class, served from cache when possible
func (c *CachedProvider) Class(ctx context.Context, subjectID, sectionID string) (*Class, error) {
	key := cacheKey("class", subjectID, sectionID)
	if v, ok := c.cache.Get(key); ok {
		cls := v.(Class)
		return &cls, nil
	}
	cls, err := c.next.Class(ctx, subjectID, sectionID)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, *cls)
	return cls, nil
}

// Roster returns the roster, served from cache when possible
func (c *CachedProvider) Roster(ctx context.Context, subjectID, sectionID string) ([]Person, error) {
	key := cacheKey("roster", subjectID, sectionID)
	if v, ok := c.cache.Get(key); ok {
		return append([]Person(nil), v.([]Person)...), nil
	}
	people, err := c.next.Roster(ctx, subjectID, sectionID)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, append([]Person(nil), people...))
	return people, nil
}

// Flush drops all cached entries.
func (c *CachedProvider) Flush() {
	c.cache.Flush()
}
