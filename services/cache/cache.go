package cache

import (
	"time"
)

// CacheService represents a generic cache service
type CacheService interface {
	// Add stores a value only if the key is not present yet and reports
	// whether it did
	Add(key string, value []byte, expiration time.Duration) (bool, error)

	// Delete removes a value from the cache
	Delete(key string) error
}
