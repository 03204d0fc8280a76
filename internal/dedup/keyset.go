package dedup

import (
	"net/url"
	"time"

	"sjsage522/orbscreener/services/cache"
)

// KeySet records identity keys
type KeySet interface {
	// Add records key and reports whether it was new
	Add(key string) (bool, error)
	// Forget removes key
	Forget(key string) error
}

// MemorySet is a KeySet local to the process
type MemorySet struct {
	seen map[string]struct{}
}

// NewMemorySet creates an empty set
func NewMemorySet() *MemorySet {
	return &MemorySet{seen: make(map[string]struct{})}
}

// Add implements KeySet
func (s *MemorySet) Add(key string) (bool, error) {
	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	s.seen[key] = struct{}{}
	return true, nil
}

// Forget implements KeySet
func (s *MemorySet) Forget(key string) error {
	delete(s.seen, key)
	return nil
}

// CacheSet is a KeySet in a shared cache, namespaced by run id so that
// executions of different runs never see each other's keys
type CacheSet struct {
	cache  cache.CacheService
	prefix string
	ttl    time.Duration
}

// NewCacheSet creates a key set for runID. Keys expire after ttl.
func NewCacheSet(c cache.CacheService, runID string, ttl time.Duration) *CacheSet {
	return &CacheSet{
		cache:  c,
		prefix: "orb:seen:" + url.PathEscape(runID) + ":",
		ttl:    ttl,
	}
}

// Add implements KeySet
func (s *CacheSet) Add(key string) (bool, error) {
	return s.cache.Add(s.cacheKey(key), []byte{1}, s.ttl)
}

// Forget implements KeySet
func (s *CacheSet) Forget(key string) error {
	return s.cache.Delete(s.cacheKey(key))
}

// memcache keys may not contain whitespace or control characters
func (s *CacheSet) cacheKey(key string) string {
	return s.prefix + url.PathEscape(key)
}
